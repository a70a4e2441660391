package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	// Retries is the number of extra attempts after the first one.
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
	Logger    *zerolog.Logger
}

// PermanentError marks an error that must not be retried.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do executes fn with exponential back-off. It stops early when ctx is
// cancelled or the error is not retryable.
func (r RetryConfig) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	delay := r.BaseDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	attempts := r.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if r.Logger != nil {
			r.Logger.Warn().
				Err(lastErr).
				Str("operation", operation).
				Int("attempt", attempt).
				Int("max_attempts", attempts).
				Dur("backoff", delay).
				Msg("retrying")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if r.MaxDelay > 0 && delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
