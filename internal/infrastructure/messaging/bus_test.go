package messaging

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/retry"
)

func fastBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	opts = append([]Option{
		WithRetrier(retry.New(
			retry.WithMaxAttempts(deliveryAttempts),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithJitter(0),
			retry.WithRetryIf(func(err error) bool { return err != nil }),
		)),
		WithHandlerTimeout(time.Second),
	}, opts...)
	b := New(nil, opts...)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func expEvent() shared.Event {
	return shared.NewExpChangedEvent("user-1", 100, 1100, "battle")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBus_DeliversToRegisteredHandler(t *testing.T) {
	b := fastBus(t)

	var calls int64
	require.NoError(t, b.Register(shared.EventExpChanged, "count_exp", func(shared.Event) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}))
	require.NoError(t, b.Register(shared.EventRankChanged, "count_rank", func(shared.Event) error {
		atomic.AddInt64(&calls, 10)
		return nil
	}))

	require.NoError(t, b.Publish(expEvent()))

	// Only the matching handler runs.
	waitFor(t, func() bool { return atomic.LoadInt64(&calls) == 1 })
}

func TestBus_CatchAllSeesEveryEvent(t *testing.T) {
	b := fastBus(t)

	var calls int64
	require.NoError(t, b.SubscribeAll(func(shared.Event) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}))

	require.NoError(t, b.Publish(expEvent()))
	require.NoError(t, b.Publish(shared.NewRankChangedEvent("user-1", "novice", "apprentice", 0, 1, 1100)))

	waitFor(t, func() bool { return atomic.LoadInt64(&calls) == 2 })
}

func TestBus_RetriesUntilSuccess(t *testing.T) {
	b := fastBus(t)

	var calls int64
	require.NoError(t, b.Register(shared.EventExpChanged, "flaky", func(shared.Event) error {
		if atomic.AddInt64(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, b.Publish(expEvent()))

	waitFor(t, func() bool { return atomic.LoadInt64(&calls) == 3 })
	waitFor(t, func() bool { return len(b.DeadLetters()) == 0 })
}

func TestBus_ExhaustedHandlerGoesToDeadLetters(t *testing.T) {
	b := fastBus(t)

	require.NoError(t, b.Register(shared.EventExpChanged, "broken", func(shared.Event) error {
		return errors.New("always fails")
	}))

	require.NoError(t, b.Publish(expEvent()))

	waitFor(t, func() bool { return len(b.DeadLetters()) == 1 })
	dl := b.DeadLetters()[0]
	assert.Equal(t, "broken", dl.Handler)
	assert.Equal(t, shared.EventExpChanged, dl.Event.EventType())
	assert.Equal(t, deliveryAttempts, dl.Attempts)
	assert.Error(t, dl.Err)
}

func TestBus_PanickingHandlerIsContained(t *testing.T) {
	b := fastBus(t)

	require.NoError(t, b.Register(shared.EventExpChanged, "panicky", func(shared.Event) error {
		panic("boom")
	}))

	require.NoError(t, b.Publish(expEvent()))

	waitFor(t, func() bool { return len(b.DeadLetters()) == 1 })
	assert.Contains(t, b.DeadLetters()[0].Err.Error(), "panic")
}

func TestBus_DeadLetterLimitEvictsOldest(t *testing.T) {
	b := fastBus(t, WithDeadLetterLimit(2))

	require.NoError(t, b.Register(shared.EventExpChanged, "broken", func(shared.Event) error {
		return errors.New("always fails")
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(expEvent()))
	}

	waitFor(t, func() bool {
		dls := b.DeadLetters()
		return len(dls) == 2
	})
}

func TestBus_ClosedBusRejectsEverything(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(expEvent()), ErrBusClosed)
	assert.ErrorIs(t, b.Register(shared.EventExpChanged, "late", func(shared.Event) error { return nil }), ErrBusClosed)
	assert.ErrorIs(t, b.SubscribeAll(func(shared.Event) error { return nil }), ErrBusClosed)

	// Closing twice is a no-op.
	require.NoError(t, b.Close())
}

func TestBus_CloseWaitsForInFlightHandlers(t *testing.T) {
	b := New(nil, WithHandlerTimeout(time.Second))

	started := make(chan struct{})
	var finished int64
	require.NoError(t, b.Register(shared.EventExpChanged, "slow", func(shared.Event) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&finished, 1)
		return nil
	}))

	require.NoError(t, b.Publish(expEvent()))
	<-started
	require.NoError(t, b.Close())
	assert.Equal(t, int64(1), atomic.LoadInt64(&finished))
}

func TestBus_NilHandlerRejected(t *testing.T) {
	b := fastBus(t)
	assert.Error(t, b.Register(shared.EventExpChanged, "nil", nil))
	assert.Error(t, b.SubscribeAll(nil))
	assert.Error(t, b.Publish(nil))
}
