/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived component of a qlbm process and is
 * handed to the CLI commands.
 */
package di

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/circuits"
	"github.com/aristath/qlbm/internal/database"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/calibration"
	"github.com/aristath/qlbm/internal/modules/extrapolation"
	"github.com/aristath/qlbm/internal/modules/mitigation"
	"github.com/aristath/qlbm/internal/modules/readout"
	"github.com/aristath/qlbm/internal/modules/runner"
	"github.com/aristath/qlbm/internal/modules/unfolding"
	"github.com/aristath/qlbm/internal/reliability"
	"github.com/aristath/qlbm/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Storage (at most one of DB and Redis is set, depending on the store kind)
	DB    *database.DB
	Redis *redis.Client
	Store calibration.Store

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Backend backend.Backend
	Builder *circuits.ReferenceBuilder
	Folder  *circuits.RandomFolder

	Experiment   readout.Experiment
	Readout      *readout.Mitigator
	Unfolder     *unfolding.Unfolder
	Extrapolator *extrapolation.Extrapolator
	Pipeline     *mitigation.Pipeline
	Runner       *runner.Runner

	// Archive is nil unless a results bucket is configured
	Archive    *reliability.ResultsArchive
	RefreshJob *scheduler.CalibrationRefreshJob
}

// Close releases the database and redis connections.
func (c *Container) Close() error {
	var errs []error
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	return errors.Join(errs...)
}
