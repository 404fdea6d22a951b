package backoff

import (
	"context"
	"time"
)

// Linear returns base * n. n below 1 is treated as 1.
func Linear(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return base * time.Duration(n)
}

// Exponential returns base * mult^attempt, capped at max when max > 0.
func Exponential(base time.Duration, mult float64, attempt int, max time.Duration) time.Duration {
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(base)
	for i := 0; i < attempt; i++ {
		delay *= mult
		if max > 0 && delay >= float64(max) {
			return max
		}
	}
	return time.Duration(delay)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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
