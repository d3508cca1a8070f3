package extractor

import (
	"context"
	"log/slog"
	"time"
)

// Retry defaults
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// retryPolicy runs an operation up to maxAttempts times with a fixed delay
type retryPolicy struct {
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
}

// do calls fn until it succeeds, attempts run out or ctx is done. It returns
// the number of attempts made and the last error.
func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error) (int, error) {
	attempts := max(p.maxAttempts, 1)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				return attempt, ctx.Err()
			}
			p.logger.Info("retrying", "op", op, "attempt", attempt+1)
		}

		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err
		p.logger.Warn("attempt failed", "op", op, "attempt", attempt+1, "error", err)

		if ctx.Err() != nil {
			return attempt + 1, ctx.Err()
		}
	}

	return attempts, lastErr
}
