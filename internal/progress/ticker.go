// Package progress reports elapsed time while the pipeline blocks on a backend.
// Reporting runs on its own goroutine and never touches pipeline state, so
// removing it entirely changes nothing but the log output.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the time between elapsed-time reports.
const DefaultInterval = time.Second

// Ticker calls a function periodically with the time elapsed since Start.
type Ticker struct {
	start  time.Time
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start begins ticking every interval until Stop is called or ctx is cancelled.
func Start(ctx context.Context, interval time.Duration, onTick func(elapsed time.Duration)) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Ticker{
		start:  time.Now(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tk.C:
				onTick(now.Sub(t.start))
			}
		}
	}()

	return t
}

// Stop halts the ticker, waits for the goroutine to exit and returns the total
// elapsed time. Safe to call more than once.
func (t *Ticker) Stop() time.Duration {
	t.once.Do(func() {
		t.cancel()
		<-t.done
	})
	return time.Since(t.start)
}

// FormatElapsed renders a duration the way operators are used to reading it.
func FormatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("Time elapsed: %d minute(s) and %d second(s).", secs/60, secs%60)
}

// LogElapsed returns a tick function that logs the elapsed time at info level.
func LogElapsed(log zerolog.Logger, what string) func(time.Duration) {
	return func(elapsed time.Duration) {
		log.Info().
			Str("waiting_for", what).
			Dur("elapsed", elapsed).
			Msg(FormatElapsed(elapsed))
	}
}
