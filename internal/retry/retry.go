// Package retry runs an operation again with exponential backoff while its
// error is classified as transient.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config controls the backoff schedule. MaxRetries and InitialBackoff must
// be positive.
type Config struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int
	// InitialBackoff is the wait before the second attempt. It doubles on
	// every further attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps a single wait. Zero means no cap.
	MaxBackoff time.Duration
	// Jitter in [0, 1] lengthens later waits proportionally to the attempt.
	Jitter float64
}

// ShouldRetryFunc classifies an error as transient. A nil func retries
// every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, returns a non-transient error, the attempts
// run out or ctx is done. The last error is wrapped when attempts run out.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(Backoff(cfg, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// Backoff returns the wait before the given attempt (attempt >= 1).
func Backoff(cfg Config, attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1)) * float64(cfg.InitialBackoff))
	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}
	if cfg.Jitter > 0 && cfg.MaxRetries > 0 {
		backoff += time.Duration(float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries))
	}
	return backoff
}
