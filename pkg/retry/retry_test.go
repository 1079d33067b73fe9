package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fastRetrier(maxAttempts int) *Retrier {
	return New(
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(time.Microsecond),
		WithJitter(0),
	)
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errBoom)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttemptsAndUnwraps(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errBoom)
	})
	assert.Equal(t, 3, calls)
	assert.Equal(t, errBoom, err, "the wrapper is stripped on exhaustion")
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errBoom)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, errBoom, err)
}

func TestDo_PlainErrorNotRetried(t *testing.T) {
	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, errBoom, err)
}

func TestDo_RetryIfOverridesClassification(t *testing.T) {
	calls := 0
	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Microsecond),
		WithJitter(0),
		WithRetryIf(func(err error) bool { return errors.Is(err, errBoom) }),
	)
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errBoom)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastRetrier(3).Do(ctx, func(context.Context) error {
		calls++
		return Retryable(errBoom)
	})
	assert.Zero(t, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Microsecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) {
			attempts = append(attempts, attempt)
		}),
	)
	_ = r.Do(context.Background(), func(context.Context) error {
		return Retryable(errBoom)
	})
	assert.Equal(t, []int{1, 2}, attempts, "no callback on the final attempt")
}

func TestCalculateDelay_ExponentialAndCapped(t *testing.T) {
	r := New(
		WithInitialDelay(100*time.Millisecond),
		WithMultiplier(2.0),
		WithMaxDelay(300*time.Millisecond),
		WithJitter(0),
	)
	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(10))
}

func TestCalculateDelay_Linear(t *testing.T) {
	r := New(
		WithInitialDelay(150*time.Millisecond),
		WithLinearBackoff(),
		WithJitter(0),
	)
	assert.Equal(t, 150*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 450*time.Millisecond, r.calculateDelay(3))
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, Retryable(errBoom)
		}
		return 42, nil
	}, WithMaxAttempts(3), WithInitialDelay(time.Microsecond), WithJitter(0))
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRetryable(Retryable(errBoom)))
	assert.False(t, IsRetryable(errBoom))
	assert.True(t, IsPermanent(Permanent(errBoom)))
	assert.False(t, IsPermanent(Retryable(errBoom)))
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))
	assert.ErrorIs(t, Retryable(errBoom), errBoom)
}
