package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/calibration"
	"github.com/aristath/qlbm/internal/modules/readout"
)

// CalibrationRefreshJob re-runs the readout calibration for every record the
// store holds for one backend, so cached calibrations track the device.
type CalibrationRefreshJob struct {
	store      calibration.Store
	experiment readout.Experiment
	backend    backend.Backend
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewCalibrationRefreshJob creates a refresh job for b.
func NewCalibrationRefreshJob(store calibration.Store, experiment readout.Experiment, b backend.Backend, m *metrics.Metrics, log zerolog.Logger) *CalibrationRefreshJob {
	return &CalibrationRefreshJob{
		store:      store,
		experiment: experiment,
		backend:    b,
		metrics:    m,
		log:        log.With().Str("job", "calibration_refresh").Logger(),
	}
}

func (j *CalibrationRefreshJob) Name() string { return "calibration_refresh" }

// Run refreshes each stored key of the backend in turn. A failed key does not
// stop the others; all failures are returned together.
func (j *CalibrationRefreshJob) Run(ctx context.Context) error {
	keys, err := j.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list calibrations: %w", err)
	}

	var errs []error
	refreshed := 0
	for _, key := range keys {
		if key.Backend != j.backend.Name() {
			continue
		}
		if err := j.refresh(ctx, key); err != nil {
			j.log.Error().Err(err).Str("key", key.String()).Msg("Failed to refresh calibration")
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		refreshed++
	}

	j.log.Info().
		Int("refreshed", refreshed).
		Int("failed", len(errs)).
		Msg("Calibration refresh completed")
	return errors.Join(errs...)
}

func (j *CalibrationRefreshJob) refresh(ctx context.Context, key calibration.Key) error {
	old, ok, err := j.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		// Deleted or corrupt since listing; the next mitigation recalibrates it
		return nil
	}

	j.metrics.CalibrationRun()
	record, err := j.experiment.Run(ctx, old.Payload.Qubits, j.backend)
	if err != nil {
		return err
	}
	if err := j.store.Put(ctx, key, record); err != nil {
		return err
	}

	j.log.Info().
		Str("key", key.String()).
		Str("previous_experiment_id", old.ExperimentID).
		Str("experiment_id", record.ExperimentID).
		Msg("Calibration refreshed")
	return nil
}
