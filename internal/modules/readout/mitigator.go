// Package readout corrects measurement histograms for readout assignment
// errors using a full (correlated) calibration of the measured qubits.
package readout

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/calibration"
	"github.com/aristath/qlbm/internal/utils"
)

// ErrCalibrationUnavailable means no correction operator could be obtained.
// Mitigation never falls back to raw counts in that case.
var ErrCalibrationUnavailable = errors.New("readout calibration unavailable")

// Mitigator resolves correction operators from the calibration store or a
// fresh experiment and applies them.
type Mitigator struct {
	store      calibration.Store
	experiment Experiment
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewMitigator creates a mitigator. store may be nil, which disables caching.
func NewMitigator(store calibration.Store, experiment Experiment, m *metrics.Metrics, log zerolog.Logger) *Mitigator {
	return &Mitigator{
		store:      store,
		experiment: experiment,
		metrics:    m,
		log:        log.With().Str("component", "readout").Logger(),
	}
}

// Correct returns readout-corrected copies of raw. Every histogram must be
// measured on qubits, in that bit order.
func (m *Mitigator) Correct(ctx context.Context, b backend.Backend, dims domain.Dims, qubits []int, raw []domain.Histogram, shots int, useCache bool) ([]domain.Histogram, error) {
	op, err := m.Operator(ctx, b, dims, qubits, useCache)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Histogram, len(raw))
	g, _ := errgroup.WithContext(ctx)
	for i, h := range raw {
		i, h := i, h
		g.Go(func() error {
			corrected, err := op.Correct(h, shots)
			if err != nil {
				return fmt.Errorf("histogram %d: %w", i, err)
			}
			out[i] = corrected
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Operator resolves the correction operator for qubits on b.
func (m *Mitigator) Operator(ctx context.Context, b backend.Backend, dims domain.Dims, qubits []int, useCache bool) (*Operator, error) {
	key := calibration.NewKey(b.Name(), dims)

	record := m.cached(ctx, key, qubits, useCache)
	if record == nil {
		var err error
		record, err = m.calibrate(ctx, b, key, qubits)
		if err != nil {
			return nil, err
		}
	}

	// The assignment matrix and its inverse are both dense 2^k × 2^k.
	if err := utils.EnsureMemory(2 * utils.DenseMatrixBytes(1<<len(qubits))); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalibrationUnavailable, err)
	}
	op, err := NewOperator(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalibrationUnavailable, err)
	}
	return op, nil
}

// cached returns a usable stored record or nil.
func (m *Mitigator) cached(ctx context.Context, key calibration.Key, qubits []int, useCache bool) *calibration.Record {
	if !useCache || m.store == nil {
		m.metrics.CalibrationLookup(metrics.LookupDisabled)
		return nil
	}

	record, ok, err := m.store.Get(ctx, key)
	switch {
	case err != nil:
		m.metrics.CalibrationLookup(metrics.LookupError)
		m.log.Warn().Err(err).Str("key", key.String()).Msg("Calibration store unavailable, recalibrating")
		return nil
	case !ok:
		m.metrics.CalibrationLookup(metrics.LookupMiss)
		m.log.Info().Str("key", key.String()).Msg("No cached calibration")
		return nil
	case !record.SameQubits(qubits):
		m.metrics.CalibrationLookup(metrics.LookupMismatch)
		m.log.Warn().
			Str("key", key.String()).
			Ints("cached_qubits", record.Payload.Qubits).
			Ints("qubits", qubits).
			Msg("Cached calibration measured different qubits, recalibrating")
		return nil
	}

	m.metrics.CalibrationLookup(metrics.LookupHit)
	m.log.Info().
		Str("key", key.String()).
		Str("experiment_id", record.ExperimentID).
		Time("created_at", record.CreatedAt).
		Msg("Using cached calibration")
	return record
}

func (m *Mitigator) calibrate(ctx context.Context, b backend.Backend, key calibration.Key, qubits []int) (*calibration.Record, error) {
	if m.experiment == nil {
		return nil, fmt.Errorf("%w: no calibration experiment configured", ErrCalibrationUnavailable)
	}

	m.metrics.CalibrationRun()
	record, err := m.experiment.Run(ctx, qubits, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalibrationUnavailable, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: experiment returned no result", ErrCalibrationUnavailable)
	}

	if m.store != nil {
		if err := m.store.Put(ctx, key, record); err != nil {
			m.log.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache calibration")
		} else {
			m.log.Info().
				Str("key", key.String()).
				Str("experiment_id", record.ExperimentID).
				Msg("Calibration cached")
		}
	}
	return record, nil
}
