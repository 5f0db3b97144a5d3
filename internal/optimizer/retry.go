package optimizer

import (
	"context"
	"time"
)

const maxAttempts = 3

// defaultBackoff gives quadratic pauses between attempts: 1s after the
// first failure, 4s after the second.
func defaultBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * time.Second
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

// callWithRetry runs fn up to maxAttempts times, pausing per Backoff
// between attempts. It returns the last call error once attempts are
// exhausted, or the context error if a wait is interrupted.
func (e *Engine) callWithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < maxAttempts {
			if werr := sleepCtx(ctx, e.Backoff(attempt)); werr != nil {
				return werr
			}
		}
	}
	return err
}
