package player

import (
	"context"
	"time"
)

// Clock abstracts time for the pacing loop so tests can run it against a
// simulated clock. Implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case. A non-positive d returns immediately.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real-time Clock.
type SystemClock struct{}

// Now returns the current time, which carries a monotonic reading.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits on a timer or the context.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
