package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff describes exponential retry timing. Zero fields take defaults.
type Backoff struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (b Backoff) withDefaults() Backoff {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 3
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = 100 * time.Millisecond
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 10 * time.Second
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2
	}
	if b.JitterFraction < 0 {
		b.JitterFraction = 0
	}
	return b
}

// delay is the wait before attempt+1, jittered by ±JitterFraction.
func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	d += d * b.JitterFraction * (2*rand.Float64() - 1)
	if d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	if d < 0 {
		d = float64(b.InitialDelay)
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, the attempts run out or ctx ends. The
// last error is returned wrapped with the operation name.
func Retry(ctx context.Context, name string, b Backoff, fn func(ctx context.Context) error) error {
	b = b.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)
	var lastErr error
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == b.MaxAttempts {
			break
		}
		d := b.delay(attempt)
		logger.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", b.MaxAttempts,
			"error", lastErr,
			"next_delay", d,
		)
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: retry aborted: %w (last error: %v)", name, ctx.Err(), lastErr)
		}
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", name, b.MaxAttempts, lastErr)
}
