package readout

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/circuits"
	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/modules/calibration"
)

// DefaultCalibrationShots is the shot count per prepared basis state.
const DefaultCalibrationShots = 512

// Experiment produces raw readout calibration data for qubits on a backend.
type Experiment interface {
	Run(ctx context.Context, qubits []int, b backend.Backend) (*calibration.Record, error)
}

// CorrelatedExperiment prepares every one of the 2^k basis states on the
// measured qubits and records what is read out, so correlated readout errors
// are captured in the full assignment matrix.
type CorrelatedExperiment struct {
	Shots int
	Await backend.AwaitOptions
	log   zerolog.Logger
}

// NewCorrelatedExperiment returns an experiment running shots per basis state.
func NewCorrelatedExperiment(shots int, await backend.AwaitOptions, log zerolog.Logger) *CorrelatedExperiment {
	if shots <= 0 {
		shots = DefaultCalibrationShots
	}
	return &CorrelatedExperiment{
		Shots: shots,
		Await: await,
		log:   log.With().Str("component", "readout_calibration").Logger(),
	}
}

func (e *CorrelatedExperiment) Run(ctx context.Context, qubits []int, b backend.Backend) (*calibration.Record, error) {
	cs, err := circuits.BasisStates(qubits)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("backend", b.Name()).
		Ints("qubits", qubits).
		Int("circuits", len(cs)).
		Int("shots", e.Shots).
		Msg("Running readout calibration experiment")

	job, err := b.Submit(ctx, cs, e.Shots, backend.SubmitOptions{})
	if err != nil {
		return nil, err
	}
	results, err := backend.Await(ctx, job, e.Await, e.log)
	if err != nil {
		return nil, err
	}
	if len(results) != len(cs) {
		return nil, fmt.Errorf("calibration job %s returned %d results for %d circuits", job.ID(), len(results), len(cs))
	}

	counts := make(map[string]domain.Histogram, len(results))
	for state, h := range results {
		counts[domain.Bitstring(state, len(qubits))] = h
	}

	record := &calibration.Record{
		Payload: calibration.RawCalibration{
			Qubits: append([]int(nil), qubits...),
			Shots:  e.Shots,
			Counts: counts,
		},
		ExperimentID: job.ID(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("calibration job %s: %w", job.ID(), err)
	}
	return record, nil
}
