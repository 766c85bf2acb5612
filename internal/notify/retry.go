package notify

import (
	"context"
	"fmt"
	"time"
)

// Retry is a bounded retry policy with a fixed backoff between attempts.
type Retry struct {
	Attempts int
	Backoff  time.Duration

	// sleep waits for d or until ctx is done; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetry makes three attempts ten seconds apart.
func DefaultRetry() Retry {
	return Retry{Attempts: 3, Backoff: 10 * time.Second}
}

// Do calls fn until it succeeds, the attempts are used up or ctx is done.
// onFail is called after each failed attempt and may be nil.
func (r Retry) Do(ctx context.Context, fn func(context.Context) error, onFail func(attempt int, err error)) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if onFail != nil {
			onFail(i, lastErr)
		}
		if i == attempts {
			break
		}
		if err := sleep(ctx, r.Backoff); err != nil {
			return err
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
