package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowOperationThreshold is the duration above which a timed operation is
// logged at warn level.
const SlowOperationThreshold = 30 * time.Second

// OperationTimer provides a defer-friendly way to measure operation duration.
// The returned func logs the duration, passes it to every observer and
// returns it.
//
// Usage:
//
//	defer utils.OperationTimer("readout", log, m.ObserveStage)()
func OperationTimer(operation string, log zerolog.Logger, observers ...func(string, time.Duration)) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		log.Debug().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")

		if duration > SlowOperationThreshold {
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Slow operation detected")
		}

		for _, observe := range observers {
			observe(operation, duration)
		}
		return duration
	}
}
