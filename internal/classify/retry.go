package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryPolicy bounds one retry loop: attempts, base delay, and the
// doubling-backoff jitter applied on each wait.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultTransportPolicy covers rate limits and server errors. Five attempts
// with doubling backoff keeps a single classification call bounded by the
// sum of its delays.
func DefaultTransportPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second}
}

// DefaultParsePolicy covers sampling-variance parse failures. Two retries is
// enough: a prompt that fails to parse three times is deterministic.
func DefaultParsePolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// withRetry runs operation under a bounded backoff loop. retryable decides
// which errors re-enter the loop; anything else propagates immediately. The
// delay for attempt n is base·2^n plus up to 50% random jitter.
func withRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, retryable func(error) bool, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy.BaseDelay, attempt-1)
			logger.Warn("retrying after failure",
				"attempt", attempt,
				"max_attempts", policy.MaxAttempts,
				"delay", delay,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, policy.MaxAttempts, lastErr)
}

// backoffDelay returns base·2^attempt plus up to 50% jitter. Jitter keeps
// concurrent batches from hammering the service in lockstep.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

// isParseRetryable gates the outer parse loop: only parse/shape failures
// re-enter it. Transport errors have already been through their own loop by
// the time they reach here.
func isParseRetryable(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
