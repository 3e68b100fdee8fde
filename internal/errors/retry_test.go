package errors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:   max,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function failing twice then succeeding
	var calls atomic.Int32
	fn := func() error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: it succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	sentinel := errors.New("always")

	err := Retry(context.Background(), fastRetry(2), func() error {
		calls.Add(1)
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_ZeroRetriesReturnsErrorUnchanged(t *testing.T) {
	sentinel := errors.New("once")

	err := Retry(context.Background(), fastRetry(0), func() error { return sentinel })

	assert.Equal(t, sentinel, err)
}

func TestRetry_RetryIfStopsOnPermanentError(t *testing.T) {
	// Given: a predicate that only retries retryable Errors
	cfg := fastRetry(5)
	cfg.RetryIf = IsRetryable
	var calls atomic.Int32

	// When: the function returns a non-retryable error
	err := Retry(context.Background(), cfg, func() error {
		calls.Add(1)
		return New(ErrCodeEmbeddingFailed, "bad model", nil)
	})

	// Then: there is exactly one attempt
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, HasCode(err, ErrCodeEmbeddingFailed))
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	var calls atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		calls.Add(1)
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	var calls atomic.Int32

	got, err := RetryWithResult(context.Background(), fastRetry(3), func() ([]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("first")
		}
		return []float32{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)
}

func TestRetryWithResult_ReturnsZeroOnFailure(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetry(1), func() (int, error) {
		return 42, errors.New("nope")
	})

	require.Error(t, err)
	assert.Equal(t, 0, got)
}

func TestDefaultRetryConfig_HasSensibleDefaults(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 16*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.True(t, cfg.Jitter)
}
