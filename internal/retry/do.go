package retry

import (
	"context"
	"fmt"
	"time"
)

// Do runs fn until it succeeds, fails permanently, or the policy is
// exhausted. retryable decides whether an error is worth another attempt;
// context cancellation aborts the backoff wait.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func() error) error {
	if p.MaxRetries <= 0 {
		return fn()
	}
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt + 1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", p.MaxRetries, lastErr)
}
