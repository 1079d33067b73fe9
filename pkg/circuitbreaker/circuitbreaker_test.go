package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("service down")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errDown })
	}
}

func TestCircuit_OpensAfterThreshold(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))

	failN(cb, 2)
	assert.True(t, cb.IsClosed())

	failN(cb, 1)
	assert.True(t, cb.IsOpen())

	// While open, the protected function is never invoked.
	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuit_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))

	failN(cb, 2)
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	failN(cb, 2)
	assert.True(t, cb.IsClosed(), "failures interleaved with success never reach the threshold")
}

func TestCircuit_HalfOpenRecovery(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithTimeout(time.Millisecond),
		WithMaxHalfOpenRequests(2),
	)

	failN(cb, 1)
	require.True(t, cb.IsOpen())
	time.Sleep(5 * time.Millisecond)

	// First probe transitions to half-open; two successes close the circuit.
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.True(t, cb.IsClosed())
}

func TestCircuit_HalfOpenFailureReopens(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithTimeout(time.Millisecond),
	)

	failN(cb, 1)
	time.Sleep(5 * time.Millisecond)

	failN(cb, 1)
	assert.True(t, cb.IsOpen())
}

func TestCircuit_StateChangeCallback(t *testing.T) {
	var transitions []State
	cb := New("test",
		WithFailureThreshold(1),
		WithOnStateChange(func(_ string, _, to State) {
			transitions = append(transitions, to)
		}),
	)

	failN(cb, 1)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestCircuit_IsFailureFilter(t *testing.T) {
	// Errors the filter rejects do not trip the breaker.
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, context.Canceled) }),
	)

	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.True(t, cb.IsClosed())

	_ = cb.Execute(context.Background(), func(context.Context) error { return errDown })
	assert.True(t, cb.IsOpen())
}

func TestCircuit_ExecuteWithFallback(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	failN(cb, 1)

	var fellBack bool
	err := cb.ExecuteWithFallback(context.Background(),
		func(context.Context) error { return nil },
		func(error) error {
			fellBack = true
			return nil
		})
	require.NoError(t, err)
	assert.True(t, fellBack)
}

func TestCircuit_Reset(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	failN(cb, 1)
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.True(t, cb.IsClosed())
	assert.Zero(t, cb.Counts().TotalFailures)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
