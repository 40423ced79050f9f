package github

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetryer(maxAttempts int) *Retryer {
	logger := slog.New(slog.DiscardHandler)
	rl := NewRateLimiter(logger)
	rl.minInterval = 0
	return NewRetryer(RetryConfig{
		MaxAttempts:     maxAttempts,
		InitialBackoff:  1 * time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		BackoffMultiple: 2.0,
	}, rl, logger)
}

func TestRetryerSucceedsAfterTransientError(t *testing.T) {
	r := testRetryer(3)
	attempts := 0

	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return WrapError(ghErrorResponse(503, nil), "op", "")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryerStopsOnNonRetryable(t *testing.T) {
	r := testRetryer(5)
	attempts := 0

	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return WrapError(ghErrorResponse(404, nil), "op", "")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetryerExhaustsAttempts(t *testing.T) {
	r := testRetryer(2)
	attempts := 0

	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return WrapError(ghErrorResponse(502, nil), "op", "")
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestRetryerHonorsContextCancel(t *testing.T) {
	r := testRetryer(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, "op", func(ctx context.Context) error {
		return errors.New("should not matter")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithRetryReturnsValue(t *testing.T) {
	r := testRetryer(3)
	got, err := DoWithRetry(context.Background(), r, "op", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCircuitBreaker(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	cb := NewCircuitBreaker(2, 10*time.Millisecond, logger)

	assert.True(t, cb.AllowRequest())
	cb.RecordFailure()
	assert.True(t, cb.AllowRequest())
	cb.RecordFailure()

	// Two failures trip the breaker.
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.AllowRequest())

	// After the reset timeout a probe is allowed.
	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.AllowRequest())
	assert.Equal(t, StateHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState())
}
