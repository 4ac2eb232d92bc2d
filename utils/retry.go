package utils

import (
	"context"
	"time"
)

// Retry calls fn up to maxAttempts times, sleeping baseDelay (doubled after
// each failure) between attempts. Only errors for which retryable returns true
// are attempted again; any other error is returned immediately. The context is
// checked between attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}
