package utils

import (
	"context"
	"fmt"
	"time"

	"gastra-system/internal/apperrors"
)

// WithRetry runs fn up to attempts times, doubling the backoff between
// tries, and retries only errors the taxonomy marks retryable. When the
// budget runs out the last error is surfaced wrapped in
// ErrConcurrencyConflict so callers see a single conflict signal.
func WithRetry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		err = fn()
		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", apperrors.ErrConcurrencyConflict, err)
}
