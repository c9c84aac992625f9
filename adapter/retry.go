package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks a publish failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so Retry stops after it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Backoff is the retry schedule of a publisher.
type Backoff struct {
	// Retries is the number of attempts after the first.
	Retries int
	// Initial is the delay before the first retry; it doubles per retry.
	Initial time.Duration
}

// Delay returns the wait before attempt n (zero-based). The first attempt
// never waits.
func (b Backoff) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * b.Initial
}

// Retry calls attempt until it succeeds, returns a Permanent error, or the
// schedule is exhausted. It returns ctx.Err() wrapped when ctx ends first.
func Retry(ctx context.Context, b Backoff, attempt func(context.Context) error) error {
	attempts := 1 + max(b.Retries, 0)

	var lastErr error
	for i := range attempts {
		if d := b.Delay(i); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("canceled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("canceled: %w", err)
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
