package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestIsFatalClassification(t *testing.T) {
	fatal := []error{
		&CompileError{Node: "a", Message: "bad"},
		&ValidationError{Field: "topic", Message: "required"},
		&RoutingError{Node: "search", Value: "nowhere"},
		fmt.Errorf("wrapped: %w", &ValidationError{Message: "bad payload"}),
	}
	for _, err := range fatal {
		assert.True(t, IsFatal(err), "expected fatal: %v", err)
	}

	transient := []error{
		nil,
		errors.New("transport reset"),
		&MappingError{Task: "search", ResultKey: "output"},
		&InvocationError{Capability: "web_fetch", Err: errors.New("timeout")},
		&RunError{RunID: "run-1", Node: "search", Attempts: 3, Err: errors.New("boom")},
	}
	for _, err := range transient {
		assert.False(t, IsFatal(err), "expected non-fatal: %v", err)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), nil, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnFatalError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), nil, func(context.Context) error {
		calls++
		return &ValidationError{Field: "summary", Message: "wrong type"}
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), nil, func(context.Context) error {
		calls++
		return errors.New("always down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max attempts (3) exhausted")
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, fastConfig(), nil, func(context.Context) error {
		t.Fatal("fn must not run after cancellation")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	config := RetryConfig{
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  40 * time.Millisecond,
	}
	assert.Equal(t, 10*time.Millisecond, Backoff(1, config))
	assert.Equal(t, 20*time.Millisecond, Backoff(2, config))
	assert.Equal(t, 40*time.Millisecond, Backoff(3, config))
	// Past the cap the delay stays put.
	assert.Equal(t, 40*time.Millisecond, Backoff(10, config))
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	config := RetryConfig{
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterFactor: 0.5,
	}
	for i := 0; i < 100; i++ {
		delay := Backoff(1, config)
		assert.GreaterOrEqual(t, delay, 5*time.Millisecond)
		assert.LessOrEqual(t, delay, 15*time.Millisecond)
	}
}
