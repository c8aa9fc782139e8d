// Package extrapolation implements zero-noise extrapolation: every timestep
// after the first is run at several gate-folded noise levels and each
// outcome's probability is fitted back to the zero-noise limit.
package extrapolation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/equalization"
	"github.com/aristath/qlbm/internal/modules/readout"
	"github.com/aristath/qlbm/internal/modules/unfolding"
	"github.com/aristath/qlbm/internal/utils"
)

// Folder amplifies the noise of a circuit without changing its ideal output.
type Folder interface {
	Fold(c domain.Circuit, scale float64) (domain.Circuit, error)
}

// DefaultScaleFactors returns the canonical noise scale factors.
func DefaultScaleFactors() []float64 {
	return []float64{1.0, 1.5, 2.0, 2.5, 3.0, 3.5, 4.0}
}

// ValidateScaleFactors requires at least three strictly ascending factors, all ≥ 1.
func ValidateScaleFactors(scales []float64) error {
	if len(scales) < 3 {
		return fmt.Errorf("a degree-2 fit needs at least 3 scale factors, got %d", len(scales))
	}
	for i, s := range scales {
		if s < 1 {
			return fmt.Errorf("scale factor %g is below 1", s)
		}
		if i > 0 && s <= scales[i-1] {
			return fmt.Errorf("scale factors must be strictly ascending: %g follows %g", s, scales[i-1])
		}
	}
	return nil
}

// Config holds the settings fixed for the extrapolator's lifetime.
type Config struct {
	ScaleFactors []float64
	Target       string
	Await        backend.AwaitOptions
}

// Options are the per-call switches.
type Options struct {
	Equalize            bool
	UseCalibrationCache bool
}

// Extrapolator runs the zero-noise extrapolation protocol.
type Extrapolator struct {
	cfg      Config
	builder  domain.CircuitBuilder
	backend  backend.Backend
	folder   Folder
	readout  *readout.Mitigator
	unfolder *unfolding.Unfolder
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New validates cfg and returns an extrapolator.
func New(
	cfg Config,
	builder domain.CircuitBuilder,
	b backend.Backend,
	folder Folder,
	rm *readout.Mitigator,
	uf *unfolding.Unfolder,
	m *metrics.Metrics,
	log zerolog.Logger,
) (*Extrapolator, error) {
	if cfg.ScaleFactors == nil {
		cfg.ScaleFactors = DefaultScaleFactors()
	}
	if err := ValidateScaleFactors(cfg.ScaleFactors); err != nil {
		return nil, err
	}
	cfg.ScaleFactors = append([]float64(nil), cfg.ScaleFactors...)
	if cfg.Target == "" {
		cfg.Target = domain.DefaultTarget
	}
	return &Extrapolator{
		cfg:      cfg,
		builder:  builder,
		backend:  b,
		folder:   folder,
		readout:  rm,
		unfolder: uf,
		metrics:  m,
		log:      log.With().Str("component", "extrapolation").Logger(),
	}, nil
}

// ScaleFactors returns a copy of the configured factors.
func (e *Extrapolator) ScaleFactors() []float64 {
	return append([]float64(nil), e.cfg.ScaleFactors...)
}

// Label returns the result label for lattice.
func Label(lattice domain.Lattice, equalize bool, target string) string {
	method := "zne"
	if equalize {
		method = "zne-eq"
	}
	return domain.Label(method, lattice, target)
}

// Extrapolate builds the circuits for steps 0..steps and extrapolates them.
func (e *Extrapolator) Extrapolate(ctx context.Context, lattice domain.Lattice, steps, shots int, opts Options) ([]domain.Histogram, string, error) {
	if e.builder == nil {
		return nil, "", fmt.Errorf("no circuit builder configured")
	}
	cs, err := domain.BuildSteps(e.builder, lattice, steps)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build circuits: %w", err)
	}
	hs, err := e.ExtrapolateCircuits(ctx, lattice.Dims(), cs, shots, opts)
	if err != nil {
		return nil, "", err
	}
	return hs, Label(lattice, opts.Equalize, e.cfg.Target), nil
}

// ExtrapolateCircuits runs the protocol on prebuilt circuits, where
// circuits[t] is timestep t. Timestep 0 runs once without folding.
func (e *Extrapolator) ExtrapolateCircuits(ctx context.Context, dims domain.Dims, circuits []domain.Circuit, shots int, opts Options) ([]domain.Histogram, error) {
	job, err := e.Submit(ctx, circuits, shots)
	if err != nil {
		return nil, err
	}
	return e.Collect(ctx, job, dims, circuits, shots, opts)
}

// Submit folds circuits and submits the noise-scaled batch as one job.
func (e *Extrapolator) Submit(ctx context.Context, circuits []domain.Circuit, shots int) (backend.Job, error) {
	if _, err := measuredQubits(circuits); err != nil {
		return nil, err
	}
	batch, err := e.foldAll(circuits)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Int("timesteps", len(circuits)).
		Floats64("scale_factors", e.cfg.ScaleFactors).
		Int("circuits", len(batch)).
		Int("shots", shots).
		Msg("Submitting noise-scaled circuits")

	return e.backend.Submit(ctx, batch, shots, backend.SubmitOptions{PreserveStructure: true})
}

// Collect waits for a batch job started by Submit for the same circuits and
// extrapolates its results. It also serves to re-attach to an earlier job.
func (e *Extrapolator) Collect(ctx context.Context, job backend.Job, dims domain.Dims, circuits []domain.Circuit, shots int, opts Options) ([]domain.Histogram, error) {
	qubits, err := measuredQubits(circuits)
	if err != nil {
		return nil, err
	}
	layout := e.layout(circuits)

	raw, err := backend.Await(ctx, job, e.cfg.Await, e.log)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(layout) {
		return nil, fmt.Errorf("job %s returned %d results for %d circuits", job.ID(), len(raw), len(layout))
	}

	stop := utils.OperationTimer("zne_readout", e.log, e.metrics.ObserveStage)
	corrected, err := e.readout.Correct(ctx, e.backend, dims, qubits, raw, shots, opts.UseCalibrationCache)
	stop()
	if err != nil {
		return nil, err
	}
	stop = utils.OperationTimer("zne_unfolding", e.log, e.metrics.ObserveStage)
	unfolded, err := e.unfolder.Unfold(ctx, layout, shots, corrected)
	stop()
	if err != nil {
		return nil, err
	}

	out, err := e.fit(unfolded, len(circuits), len(qubits), shots)
	if err != nil {
		return nil, err
	}
	if opts.Equalize {
		out = equalization.Equalize(out, shots, dims)
	}
	return out, nil
}

// BatchSize is the number of circuits Submit sends for the given timestep count.
func (e *Extrapolator) BatchSize(timesteps int) int {
	if timesteps == 0 {
		return 0
	}
	return 1 + (timesteps-1)*len(e.cfg.ScaleFactors)
}

// layout mirrors the batch order of foldAll with the unfolded circuits. Folding
// keeps the measured qubits, which is all unfolding reads from a circuit.
func (e *Extrapolator) layout(circuits []domain.Circuit) []domain.Circuit {
	out := make([]domain.Circuit, 0, e.BatchSize(len(circuits)))
	out = append(out, circuits[0])
	for _, c := range circuits[1:] {
		for range e.cfg.ScaleFactors {
			out = append(out, c)
		}
	}
	return out
}

func measuredQubits(circuits []domain.Circuit) ([]int, error) {
	if len(circuits) == 0 {
		return nil, fmt.Errorf("no circuits to extrapolate")
	}
	qubits := circuits[0].MeasuredQubits()
	for _, c := range circuits[1:] {
		if !sameQubits(qubits, c.MeasuredQubits()) {
			return nil, fmt.Errorf("circuit %s measures different qubits than %s", c.Name(), circuits[0].Name())
		}
	}
	return qubits, nil
}

// foldAll returns timestep 0 followed by every later timestep at each scale
// factor, in ascending scale order.
func (e *Extrapolator) foldAll(circuits []domain.Circuit) ([]domain.Circuit, error) {
	if len(circuits) > 1 && e.folder == nil {
		return nil, fmt.Errorf("no circuit folder configured")
	}
	batch := make([]domain.Circuit, 0, e.BatchSize(len(circuits)))
	batch = append(batch, circuits[0])
	for _, c := range circuits[1:] {
		for _, s := range e.cfg.ScaleFactors {
			folded, err := e.folder.Fold(c, s)
			if err != nil {
				return nil, fmt.Errorf("failed to fold %s at scale %g: %w", c.Name(), s, err)
			}
			batch = append(batch, folded)
		}
	}
	return batch, nil
}

// fit turns the mitigated batch into one histogram per timestep. Extrapolated
// timesteps carry every outcome of the 2^k space, including zeros.
func (e *Extrapolator) fit(batch []domain.Histogram, timesteps, width, shots int) ([]domain.Histogram, error) {
	nScales := len(e.cfg.ScaleFactors)
	outcomes := domain.Outcomes(width)

	out := make([]domain.Histogram, 0, timesteps)
	out = append(out, batch[0].Clone())

	clamped := 0
	ys := make([]float64, nScales)
	for t := 1; t < timesteps; t++ {
		variants := batch[1+(t-1)*nScales : 1+t*nScales]
		h := make(domain.Histogram, len(outcomes))
		for _, bits := range outcomes {
			for j, v := range variants {
				ys[j] = float64(v[bits]) / float64(shots)
			}
			est, err := ZeroNoiseEstimate(e.cfg.ScaleFactors, ys)
			if err != nil {
				return nil, fmt.Errorf("timestep %d outcome %s: %w", t, bits, err)
			}
			if est < 0 {
				clamped++
				est = 0
			}
			h[bits] = domain.TruncCount(est, shots)
		}
		out = append(out, h)
	}

	e.metrics.Clamped(clamped)
	if clamped > 0 {
		e.log.Debug().Int("clamped", clamped).Msg("Clamped negative zero-noise estimates")
	}
	return out, nil
}

func sameQubits(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
