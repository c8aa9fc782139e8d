// Package simulator is an in-process execution backend that samples circuits
// from the circuits package under configurable gate and readout noise.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/circuits"
	"github.com/aristath/qlbm/internal/domain"
)

// Config describes the simulated device.
type Config struct {
	Name string
	// GateError is the depolarizing probability applied per gate.
	GateError float64
	// Readout holds the assignment errors of each physical qubit. Qubits
	// without an entry are read out perfectly.
	Readout map[int]backend.QubitProperties
	Seed    int64
	// Latency is how long a job stays RUNNING after submission.
	Latency time.Duration
}

// Simulator implements backend.Backend.
type Simulator struct {
	cfg       Config
	updatedAt time.Time
	log       zerolog.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	jobs map[string]*job
}

// New creates a simulator.
func New(cfg Config, log zerolog.Logger) *Simulator {
	if cfg.Name == "" {
		cfg.Name = "simulator"
	}
	return &Simulator{
		cfg:       cfg,
		updatedAt: time.Now().UTC(),
		log:       log.With().Str("component", "simulator").Str("backend", cfg.Name).Logger(),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		jobs:      make(map[string]*job),
	}
}

func (s *Simulator) Name() string { return s.cfg.Name }

// Properties reports the configured readout errors.
func (s *Simulator) Properties(ctx context.Context) (*backend.Properties, error) {
	qubits := make(map[int]backend.QubitProperties, len(s.cfg.Readout))
	for q, p := range s.cfg.Readout {
		qubits[q] = p
	}
	return &backend.Properties{Name: s.cfg.Name, UpdatedAt: s.updatedAt, Qubits: qubits}, nil
}

// Submit samples every circuit immediately; the job only reports DONE once
// the configured latency has passed. Without PreserveStructure the simulator
// cancels adjacent inverse pairs first, as an optimizing transpiler would.
func (s *Simulator) Submit(ctx context.Context, cs []domain.Circuit, shots int, opts backend.SubmitOptions) (backend.Job, error) {
	if shots <= 0 {
		return nil, fmt.Errorf("shots must be positive, got %d", shots)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]domain.Histogram, len(cs))
	for i, c := range cs {
		circ, ok := c.(*circuits.Circuit)
		if !ok {
			return nil, fmt.Errorf("simulator cannot run circuit %s of type %T", c.Name(), c)
		}
		gates := circ.Gates()
		if !opts.PreserveStructure {
			gates = circuits.CancelInversePairs(gates)
		}
		dist := s.distribution(circ, len(gates))
		results[i] = s.sample(dist, len(circ.MeasuredQubits()), shots)
	}

	j := &job{
		id:        uuid.NewString(),
		sim:       s,
		submitted: time.Now(),
		results:   results,
	}
	s.jobs[j.id] = j
	s.log.Debug().
		Str("job_id", j.id).
		Int("circuits", len(cs)).
		Int("shots", shots).
		Bool("preserve_structure", opts.PreserveStructure).
		Msg("Job submitted")
	return j, nil
}

// Job re-attaches to a job submitted to this simulator.
func (s *Simulator) Job(ctx context.Context, id string) (backend.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found on %s", id, s.cfg.Name)
	}
	return j, nil
}

// distribution mixes the ideal output with the uniform distribution according
// to the depolarizing survival probability, then applies the readout channel.
func (s *Simulator) distribution(c *circuits.Circuit, gateCount int) []float64 {
	ideal := c.Ideal()
	survive := math.Pow(1-s.cfg.GateError, float64(gateCount))
	uniform := (1 - survive) / float64(len(ideal))

	dist := make([]float64, len(ideal))
	for i, p := range ideal {
		dist[i] = survive*p + uniform
	}

	for j, q := range c.MeasuredQubits() {
		props, ok := s.cfg.Readout[q]
		if !ok {
			continue
		}
		dist = flipChannel(dist, j, props)
	}
	return dist
}

func flipChannel(dist []float64, bit int, props backend.QubitProperties) []float64 {
	mask := 1 << bit
	out := make([]float64, len(dist))
	for i, v := range dist {
		if i&mask == 0 {
			out[i] += v * (1 - props.ProbMeas1Prep0)
			out[i|mask] += v * props.ProbMeas1Prep0
		} else {
			out[i] += v * (1 - props.ProbMeas0Prep1)
			out[i&^mask] += v * props.ProbMeas0Prep1
		}
	}
	return out
}

func (s *Simulator) sample(dist []float64, width, shots int) domain.Histogram {
	cdf := floats.CumSum(make([]float64, len(dist)), dist)
	total := cdf[len(cdf)-1]

	h := make(domain.Histogram)
	for n := 0; n < shots; n++ {
		r := s.rng.Float64() * total
		idx := sort.Search(len(cdf), func(i int) bool { return cdf[i] > r })
		if idx >= len(cdf) {
			idx = len(cdf) - 1
		}
		h[domain.Bitstring(idx, width)]++
	}
	return h
}

type job struct {
	id        string
	sim       *Simulator
	submitted time.Time
	results   []domain.Histogram
}

func (j *job) ID() string { return j.id }

func (j *job) Status(ctx context.Context) (backend.Status, error) {
	if time.Since(j.submitted) < j.sim.cfg.Latency {
		return backend.StatusRunning, nil
	}
	return backend.StatusDone, nil
}

func (j *job) Result(ctx context.Context) ([]domain.Histogram, error) {
	status, err := j.Status(ctx)
	if err != nil {
		return nil, err
	}
	if status != backend.StatusDone {
		return nil, fmt.Errorf("job %s is %s", j.id, status)
	}
	return domain.Copies(j.results), nil
}
