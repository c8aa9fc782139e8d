// Package mitigation composes the readout, unfolding and extrapolation
// stages into a single labelled result.
package mitigation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/extrapolation"
	"github.com/aristath/qlbm/internal/modules/readout"
	"github.com/aristath/qlbm/internal/modules/unfolding"
	"github.com/aristath/qlbm/internal/utils"
)

// Result is the mitigated data of one experiment.
type Result struct {
	Histograms []domain.Histogram
	Label      string
}

// Pipeline runs the stages a Config selects against one backend.
type Pipeline struct {
	backend      backend.Backend
	readout      *readout.Mitigator
	unfolder     *unfolding.Unfolder
	extrapolator *extrapolation.Extrapolator
	target       string
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// Stages bundles the stage implementations a pipeline dispatches to. Any of
// them may be nil if the configs it is used with never select that stage.
type Stages struct {
	Readout      *readout.Mitigator
	Unfolder     *unfolding.Unfolder
	Extrapolator *extrapolation.Extrapolator
}

// NewPipeline creates a pipeline. An empty target uses domain.DefaultTarget.
func NewPipeline(b backend.Backend, stages Stages, target string, m *metrics.Metrics, log zerolog.Logger) *Pipeline {
	if target == "" {
		target = domain.DefaultTarget
	}
	return &Pipeline{
		backend:      b,
		readout:      stages.Readout,
		unfolder:     stages.Unfolder,
		extrapolator: stages.Extrapolator,
		target:       target,
		metrics:      m,
		log:          log.With().Str("component", "mitigation").Logger(),
	}
}

// Label returns the result label cfg produces for lattice.
func (p *Pipeline) Label(lattice domain.Lattice, cfg Config) string {
	return domain.Label(cfg.Method(), lattice, p.target)
}

// Mitigate applies the stages selected by cfg to raw, where raw[i] was
// measured from circuits[i]. When extrapolation is selected the circuits are
// re-run at amplified noise and raw is not used; the readout and unfolding
// flags are then ignored. raw is never modified.
func (p *Pipeline) Mitigate(ctx context.Context, lattice domain.Lattice, circuits []domain.Circuit, shots int, raw []domain.Histogram, cfg Config) (*Result, error) {
	if len(circuits) == 0 {
		return nil, fmt.Errorf("no circuits to mitigate")
	}
	method := cfg.Method()
	log := p.log.With().Str("method", method).Str("lattice", lattice.Dims().String()).Logger()
	log.Info().Int("histograms", len(raw)).Int("shots", shots).Msg("Mitigating results")

	var (
		hs  []domain.Histogram
		err error
	)
	if cfg.Extrapolation {
		hs, err = p.extrapolate(ctx, lattice, circuits, shots, cfg)
	} else {
		hs, err = p.correct(ctx, lattice.Dims(), circuits, shots, raw, cfg)
	}
	if err != nil {
		return nil, err
	}

	p.metrics.Mitigated(method, len(hs))
	return &Result{Histograms: hs, Label: p.Label(lattice, cfg)}, nil
}

func (p *Pipeline) extrapolate(ctx context.Context, lattice domain.Lattice, circuits []domain.Circuit, shots int, cfg Config) ([]domain.Histogram, error) {
	if p.extrapolator == nil {
		return nil, fmt.Errorf("zero-noise extrapolation requested but not configured")
	}
	defer utils.OperationTimer("extrapolation", p.log, p.metrics.ObserveStage)()
	return p.extrapolator.ExtrapolateCircuits(ctx, lattice.Dims(), circuits, shots, extrapolationOptions(cfg))
}

// Submit starts the job whose results cfg mitigates: the circuits as built,
// or the noise-scaled batch when extrapolation is selected. Finish such a job
// with Mitigate or CollectExtrapolation respectively.
func (p *Pipeline) Submit(ctx context.Context, circuits []domain.Circuit, shots int, cfg Config) (backend.Job, error) {
	if !cfg.Extrapolation {
		return p.backend.Submit(ctx, circuits, shots, backend.SubmitOptions{})
	}
	if p.extrapolator == nil {
		return nil, fmt.Errorf("zero-noise extrapolation requested but not configured")
	}
	return p.extrapolator.Submit(ctx, circuits, shots)
}

// CollectExtrapolation waits for a noise-scaled batch job submitted for
// circuits and returns the extrapolated result.
func (p *Pipeline) CollectExtrapolation(ctx context.Context, job backend.Job, lattice domain.Lattice, circuits []domain.Circuit, shots int, cfg Config) (*Result, error) {
	if !cfg.Extrapolation {
		return nil, fmt.Errorf("extrapolation is not selected")
	}
	if p.extrapolator == nil {
		return nil, fmt.Errorf("zero-noise extrapolation requested but not configured")
	}
	method := cfg.Method()
	p.log.Info().
		Str("method", method).
		Str("lattice", lattice.Dims().String()).
		Str("job_id", job.ID()).
		Msg("Collecting noise-scaled results")

	stop := utils.OperationTimer("extrapolation", p.log, p.metrics.ObserveStage)
	hs, err := p.extrapolator.Collect(ctx, job, lattice.Dims(), circuits, shots, extrapolationOptions(cfg))
	stop()
	if err != nil {
		return nil, err
	}
	p.metrics.Mitigated(method, len(hs))
	return &Result{Histograms: hs, Label: p.Label(lattice, cfg)}, nil
}

func extrapolationOptions(cfg Config) extrapolation.Options {
	return extrapolation.Options{
		Equalize:            cfg.Equalization,
		UseCalibrationCache: cfg.UseCalibrationCache,
	}
}

func (p *Pipeline) correct(ctx context.Context, dims domain.Dims, circuits []domain.Circuit, shots int, raw []domain.Histogram, cfg Config) ([]domain.Histogram, error) {
	if len(raw) != len(circuits) {
		return nil, fmt.Errorf("%d histograms for %d circuits", len(raw), len(circuits))
	}
	hs := domain.Copies(raw)

	if cfg.Readout {
		if p.readout == nil {
			return nil, fmt.Errorf("readout mitigation requested but not configured")
		}
		qubits := circuits[0].MeasuredQubits()
		for _, c := range circuits[1:] {
			if !equalInts(qubits, c.MeasuredQubits()) {
				return nil, fmt.Errorf("circuit %s measures different qubits than %s", c.Name(), circuits[0].Name())
			}
		}

		stop := utils.OperationTimer("readout", p.log, p.metrics.ObserveStage)
		var err error
		hs, err = p.readout.Correct(ctx, p.backend, dims, qubits, hs, shots, cfg.UseCalibrationCache)
		stop()
		if err != nil {
			return nil, err
		}
	}

	if cfg.Unfolding {
		if p.unfolder == nil {
			return nil, fmt.Errorf("iterative unfolding requested but not configured")
		}
		stop := utils.OperationTimer("unfolding", p.log, p.metrics.ObserveStage)
		var err error
		hs, err = p.unfolder.Unfold(ctx, circuits, shots, hs)
		stop()
		if err != nil {
			return nil, err
		}
	}
	return hs, nil
}

func equalInts(a, b []int) bool {
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
