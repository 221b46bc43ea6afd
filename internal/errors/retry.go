package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"loom/internal/logging"
)

// RetryConfig configures retry behavior for task attempts.
type RetryConfig struct {
	MaxAttempts  int           // Total attempts, including the first (default: 3)
	BaseDelay    time.Duration // Base delay for exponential backoff (default: 1s)
	MaxDelay     time.Duration // Cap on the delay between attempts (default: 30s)
	JitterFactor float64       // Randomisation factor (default: 0.25 = ±25%)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// Retry executes fn with exponential backoff until it succeeds, the attempt
// budget is exhausted, the context is cancelled, or a fatal error surfaces.
func Retry(ctx context.Context, config RetryConfig, logger logging.Logger, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, config, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult is Retry for functions that return a value.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, logger logging.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	logger = logging.OrNop(logger)
	config = config.normalized()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Attempt %d/%d succeeded", attempt, config.MaxAttempts)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("Attempt %d/%d failed: %v", attempt, config.MaxAttempts, err)

		if IsFatal(err) {
			logger.Debug("Error is fatal, stopping retries")
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := Backoff(attempt, config)
		logger.Debug("Waiting %v before attempt %d", delay, attempt+1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("max attempts (%d) exhausted: %w", config.MaxAttempts, lastErr)
}

// Backoff computes the delay after the given 1-based attempt number using
// exponential growth capped at MaxDelay, with symmetric jitter applied.
func Backoff(attempt int, config RetryConfig) time.Duration {
	config = config.normalized()
	delay := float64(config.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.JitterFactor > 0 {
		jitter := delay * config.JitterFactor * (2*rand.Float64() - 1)
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
