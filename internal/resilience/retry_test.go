package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("flaky"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return NewTransientError(errors.New("still down"), 502)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, fastConfig(10), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("flaky"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastConfig(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, NewTransientError(errors.New("flaky"), 503)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	cfg := fastConfig(3)
	cfg.ShouldRetry = func(err error) bool { return true }

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("anything retries now")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return NewTransientError(errors.New("flaky"), 503)
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestComputeBackoff_Linear(t *testing.T) {
	cfg := LinearRetryConfig(5, 2*time.Second)
	cfg = applyDefaults(cfg)

	assert.Equal(t, 2*time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 4*time.Second, computeBackoff(1, cfg))
	assert.Equal(t, 6*time.Second, computeBackoff(2, cfg))
}

func TestComputeBackoff_ExponentialCapped(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
		MaxAttempts:    5,
	})

	assert.Equal(t, time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, computeBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, computeBackoff(2, cfg), "capped at MaxBackoff")
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("validation failed")))
	assert.True(t, IsTransient(NewTransientError(errors.New("x"), 503)))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(errors.New("sqlite: database is locked")))

	wrapped := errors.Join(errors.New("outer"), NewTransientError(errors.New("inner"), 0))
	assert.True(t, IsTransient(wrapped))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 301, 400, 401, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
