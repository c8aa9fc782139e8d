// Package di provides dependency injection for backends and pipeline services.
package di

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/backend/runtime"
	"github.com/aristath/qlbm/internal/backend/simulator"
	"github.com/aristath/qlbm/internal/circuits"
	"github.com/aristath/qlbm/internal/config"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/extrapolation"
	"github.com/aristath/qlbm/internal/modules/mitigation"
	"github.com/aristath/qlbm/internal/modules/readout"
	"github.com/aristath/qlbm/internal/modules/runner"
	"github.com/aristath/qlbm/internal/modules/unfolding"
	"github.com/aristath/qlbm/internal/scheduler"
)

// simulatorQubits is the register size given readout errors on the simulator.
const simulatorQubits = 16

// InitializeBackend creates the execution backend selected by cfg.
func InitializeBackend(container *Container, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.Backend {
	case config.BackendSimulator:
		ro := make(map[int]backend.QubitProperties, simulatorQubits)
		for q := 0; q < simulatorQubits; q++ {
			ro[q] = backend.QubitProperties{ProbMeas1Prep0: cfg.SimReadoutError, ProbMeas0Prep1: cfg.SimReadoutError}
		}
		container.Backend = simulator.New(simulator.Config{
			Name:      cfg.BackendName,
			GateError: cfg.SimGateError,
			Readout:   ro,
			Seed:      cfg.SimSeed,
		}, log)
	case config.BackendRuntime:
		container.Backend = runtime.NewClient(cfg.RuntimeURL, cfg.RuntimeToken, cfg.BackendName, log)
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	log.Info().Str("backend", container.Backend.Name()).Str("kind", cfg.Backend).Msg("Execution backend initialized")
	return nil
}

// InitializeServices wires the mitigation stages, pipeline and runner.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Registry = prometheus.NewRegistry()
	container.Metrics = metrics.New(container.Registry)

	await := backend.AwaitOptions{PollInterval: cfg.PollInterval}
	container.Builder = circuits.NewReferenceBuilder()
	container.Folder = circuits.NewRandomFolder(cfg.SimSeed)

	container.Experiment = readout.NewCorrelatedExperiment(cfg.CalibrationShots, await, log)
	container.Readout = readout.NewMitigator(container.Store, container.Experiment, container.Metrics, log)
	container.Unfolder = unfolding.NewUnfolder(container.Backend, unfolding.DefaultParams(), container.Metrics, log)

	ex, err := extrapolation.New(extrapolation.Config{
		ScaleFactors: cfg.ScaleFactors,
		Target:       cfg.Target,
		Await:        await,
	}, container.Builder, container.Backend, container.Folder, container.Readout, container.Unfolder, container.Metrics, log)
	if err != nil {
		return fmt.Errorf("failed to create extrapolator: %w", err)
	}
	container.Extrapolator = ex

	container.Pipeline = mitigation.NewPipeline(container.Backend, mitigation.Stages{
		Readout:      container.Readout,
		Unfolder:     container.Unfolder,
		Extrapolator: container.Extrapolator,
	}, cfg.Target, container.Metrics, log)

	container.Runner = runner.New(container.Backend, container.Builder, container.Pipeline, cfg.OutputDir, await, log)
	if container.Archive != nil {
		container.Runner.SetArchiver(container.Archive)
	}

	container.RefreshJob = scheduler.NewCalibrationRefreshJob(container.Store, container.Experiment, container.Backend, container.Metrics, log)
	return nil
}
