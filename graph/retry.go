package graph

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior around an external call.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	Jitter          float64          // fraction of the delay, 0 disables jitter
	RetryableErrors func(error) bool // Determines if an error should trigger retry
	OnRetry         func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.25,
		RetryableErrors: func(_ error) bool {
			return true
		},
	}
}

// Delay returns the backoff before the attempt following attempt (1-based).
func (c *RetryConfig) Delay(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	for i := 1; i < attempt; i++ {
		delay *= factor
	}
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		//nolint:gosec // jitter is not security sensitive
		delay += delay * c.Jitter * (2*rand.Float64() - 1)
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// Retry calls fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done. Non-retryable errors are returned unchanged.
func Retry[T any](ctx context.Context, config *RetryConfig, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	maxAttempts := max(config.MaxAttempts, 1)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("retry cancelled after %d attempts (last error: %v): %w", attempt-1, lastErr, err)
			}
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := config.Delay(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry cancelled during backoff (last error: %v): %w", lastErr, ctx.Err())
		}
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}
