// Package runner executes a lattice experiment end to end: build, submit,
// wait, mitigate and write per-timestep counts for the visualizer.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/modules/mitigation"
)

// Experiment describes one run.
type Experiment struct {
	Lattice    domain.Lattice
	Steps      int
	Shots      int
	Mitigation mitigation.Config
}

// Report summarizes a finished run.
type Report struct {
	JobID      string
	Label      string
	Dir        string
	Files      []string
	Histograms []domain.Histogram
	// ArchiveKey is set when the results were uploaded.
	ArchiveKey string
}

// Archiver uploads a results directory.
type Archiver interface {
	Archive(ctx context.Context, dir, label string) (string, error)
}

// Runner ties a circuit builder, a backend and a mitigation pipeline together.
type Runner struct {
	backend   backend.Backend
	builder   domain.CircuitBuilder
	pipeline  *mitigation.Pipeline
	outputDir string
	await     backend.AwaitOptions
	archiver  Archiver
	log       zerolog.Logger
}

// New creates a runner writing results below outputDir.
func New(b backend.Backend, builder domain.CircuitBuilder, pipeline *mitigation.Pipeline, outputDir string, await backend.AwaitOptions, log zerolog.Logger) *Runner {
	return &Runner{
		backend:   b,
		builder:   builder,
		pipeline:  pipeline,
		outputDir: outputDir,
		await:     await,
		log:       log.With().Str("component", "runner").Logger(),
	}
}

// SetArchiver makes the runner upload every results directory it writes.
func (r *Runner) SetArchiver(a Archiver) {
	r.archiver = a
}

// Run builds the circuits for timesteps 0..Steps, executes them and writes
// the mitigated counts.
func (r *Runner) Run(ctx context.Context, exp Experiment) (*Report, error) {
	cs, err := r.build(exp)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("backend", r.backend.Name()).
		Str("lattice", exp.Lattice.Dims().String()).
		Str("kind", exp.Lattice.Kind()).
		Str("method", exp.Mitigation.Method()).
		Int("timesteps", len(cs)).
		Int("shots", exp.Shots).
		Msg("Submitting experiment")

	job, err := r.pipeline.Submit(ctx, cs, exp.Shots, exp.Mitigation)
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("job_id", job.ID()).Msg("Job submitted")
	return r.finish(ctx, job, cs, exp)
}

// Recover re-attaches to a job submitted earlier and finishes it as Run
// would. exp must describe the experiment the job was submitted for; with
// extrapolation selected the job is the noise-scaled batch.
func (r *Runner) Recover(ctx context.Context, jobID string, exp Experiment) (*Report, error) {
	cs, err := r.build(exp)
	if err != nil {
		return nil, err
	}
	job, err := r.backend.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("job_id", jobID).Msg("Recovering job")
	return r.finish(ctx, job, cs, exp)
}

func (r *Runner) build(exp Experiment) ([]domain.Circuit, error) {
	if exp.Shots <= 0 {
		return nil, fmt.Errorf("shots must be positive, got %d", exp.Shots)
	}
	cs, err := domain.BuildSteps(r.builder, exp.Lattice, exp.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to build circuits: %w", err)
	}
	return cs, nil
}

func (r *Runner) finish(ctx context.Context, job backend.Job, cs []domain.Circuit, exp Experiment) (*Report, error) {
	res, err := r.collect(ctx, job, cs, exp)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(r.outputDir, res.Label)
	files, err := WriteCounts(dir, res.Histograms)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("job_id", job.ID()).
		Str("label", res.Label).
		Str("dir", dir).
		Int("timesteps", len(res.Histograms)).
		Msg("Experiment results written")

	report := &Report{
		JobID:      job.ID(),
		Label:      res.Label,
		Dir:        dir,
		Files:      files,
		Histograms: res.Histograms,
	}
	if r.archiver != nil {
		// The local copy is already complete, so a failed upload is not fatal
		key, err := r.archiver.Archive(ctx, dir, res.Label)
		if err != nil {
			r.log.Warn().Err(err).Str("dir", dir).Msg("Failed to archive results")
		} else {
			report.ArchiveKey = key
		}
	}
	return report, nil
}

func (r *Runner) collect(ctx context.Context, job backend.Job, cs []domain.Circuit, exp Experiment) (*mitigation.Result, error) {
	if exp.Mitigation.Extrapolation {
		return r.pipeline.CollectExtrapolation(ctx, job, exp.Lattice, cs, exp.Shots, exp.Mitigation)
	}

	raw, err := backend.Await(ctx, job, r.await, r.log)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(cs) {
		return nil, fmt.Errorf("job %s returned %d results for %d circuits", job.ID(), len(raw), len(cs))
	}
	return r.pipeline.Mitigate(ctx, exp.Lattice, cs, exp.Shots, raw, exp.Mitigation)
}

// WriteCounts writes histograms[t] to dir/counts_<t>.json and returns the
// paths written.
func WriteCounts(dir string, histograms []domain.Histogram) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	files := make([]string, 0, len(histograms))
	for t, h := range histograms {
		data, err := json.MarshalIndent(h, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode timestep %d: %w", t, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("counts_%d.json", t))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

// ReadCounts loads the histograms WriteCounts wrote to dir, in timestep order.
func ReadCounts(dir string) ([]domain.Histogram, error) {
	var out []domain.Histogram
	for t := 0; ; t++ {
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("counts_%d.json", t)))
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		var h domain.Histogram
		if err := json.Unmarshal(data, &h); err != nil {
			return nil, fmt.Errorf("timestep %d: %w", t, err)
		}
		out = append(out, h)
	}
	return out, nil
}
