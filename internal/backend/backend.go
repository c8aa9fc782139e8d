// Package backend defines the execution-backend contract consumed by the
// mitigation pipeline and the polling loop used to wait on jobs.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/qlbm/internal/domain"
)

// Status is the lifecycle state of a submitted job.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// ErrJobFailed is returned when a job reaches the FAILED state.
var ErrJobFailed = errors.New("job failed")

// JobError carries the reason a backend gave for a failed job. It matches
// ErrJobFailed under errors.Is.
type JobError struct {
	JobID  string
	Reason string
}

func (e *JobError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", ErrJobFailed, e.JobID)
	}
	return fmt.Sprintf("%s: %s: %s", ErrJobFailed, e.JobID, e.Reason)
}

func (e *JobError) Unwrap() error { return ErrJobFailed }

// QubitProperties holds the per-qubit readout assignment errors reported by a backend.
type QubitProperties struct {
	ProbMeas1Prep0 float64 `json:"prob_meas1_prep0"`
	ProbMeas0Prep1 float64 `json:"prob_meas0_prep1"`
}

// Properties is the backend calibration snapshot.
type Properties struct {
	Name      string                  `json:"name"`
	UpdatedAt time.Time               `json:"updated_at"`
	Qubits    map[int]QubitProperties `json:"qubits"`
}

// Qubit returns the readout properties of a physical qubit.
func (p *Properties) Qubit(q int) (QubitProperties, error) {
	qp, ok := p.Qubits[q]
	if !ok {
		return QubitProperties{}, fmt.Errorf("backend %s reports no properties for qubit %d", p.Name, q)
	}
	return qp, nil
}

// SubmitOptions controls how circuits are prepared before execution.
type SubmitOptions struct {
	// PreserveStructure disables every optimizing transformation so that
	// gate-folded circuits reach the device unchanged.
	PreserveStructure bool
}

// Job is a submitted batch of circuits.
type Job interface {
	ID() string
	// Status may report FAILED together with a *JobError naming the cause.
	Status(ctx context.Context) (Status, error)
	// Result returns one histogram per submitted circuit, in submission order.
	Result(ctx context.Context) ([]domain.Histogram, error)
}

// Backend executes circuits on a simulator or a remote processor.
type Backend interface {
	Name() string
	Properties(ctx context.Context) (*Properties, error)
	Submit(ctx context.Context, circuits []domain.Circuit, shots int, opts SubmitOptions) (Job, error)
	// Job re-attaches to a previously submitted job.
	Job(ctx context.Context, id string) (Job, error)
}
