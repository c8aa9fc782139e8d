package backend

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/progress"
)

// DefaultPollInterval matches the cadence the hardware queue tolerates.
const DefaultPollInterval = 900 * time.Millisecond

// AwaitOptions configures the polling loop. There is no timeout; cancel ctx
// to stop waiting.
type AwaitOptions struct {
	PollInterval time.Duration
	TickInterval time.Duration
}

// Await polls job until it finishes and returns its histograms. Elapsed time is
// logged while waiting. Errors from the backend are returned as-is.
func Await(ctx context.Context, job Job, opts AwaitOptions, log zerolog.Logger) ([]domain.Histogram, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	log.Info().Str("job_id", job.ID()).Msg("Waiting for backend data")
	ticker := progress.Start(ctx, opts.TickInterval, progress.LogElapsed(log, job.ID()))
	defer ticker.Stop()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		status, err := job.Status(ctx)
		if err != nil {
			return nil, err
		}

		switch status {
		case StatusDone:
			elapsed := ticker.Stop()
			log.Info().
				Str("job_id", job.ID()).
				Dur("elapsed", elapsed).
				Msg("Data received")
			return job.Result(ctx)
		case StatusFailed:
			return nil, &JobError{JobID: job.ID()}
		}

		timer.Reset(opts.PollInterval)
	}
}
