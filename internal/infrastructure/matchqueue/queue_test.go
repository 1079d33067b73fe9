package matchqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/matchmaking"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
)

type fakeFormer struct {
	mu     sync.Mutex
	groups [][]matchmaking.Ticket
	err    error
}

func (f *fakeFormer) FormMatch(_ context.Context, group []matchmaking.Ticket, _ *matchmaking.Selection, _ int) (*FormResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.groups = append(f.groups, group)
	return &FormResult{MatchID: shared.MatchID(uuid.NewString())}, nil
}

func (f *fakeFormer) formed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.groups)
}

type recordingNotifier struct {
	mu    sync.Mutex
	rooms map[string]int
}

func (n *recordingNotifier) Emit(room, event string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if event != notification.EventQueueUpdate {
		return
	}
	if n.rooms == nil {
		n.rooms = make(map[string]int)
	}
	n.rooms[room]++
}

func (n *recordingNotifier) count(room string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rooms[room]
}

func queueTicket(userID string, rank string, beta float64) matchmaking.Ticket {
	return matchmaking.Ticket{
		UserID:    shared.UserID(userID),
		MatchType: battle.TypeRanked,
		Language:  "python",
		MatchSize: 3,
		RankName:  rank,
		Theta:     0,
		Beta:      shared.Beta(beta),
	}
}

func startQueue(t *testing.T, former Former) *Queue {
	t.Helper()
	q := New(former, nil, nil, WithTick(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go q.Run(ctx)
	return q
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestQueue_EnqueueRejectsDuplicates(t *testing.T) {
	q := startQueue(t, &fakeFormer{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queueTicket("u1", "novice", 0.3)))
	err := q.Enqueue(ctx, queueTicket("u1", "novice", 0.3))
	assert.ErrorIs(t, err, shared.ErrQueueEntryExists)

	assert.Len(t, q.Snapshot(ctx), 1)
}

func TestQueue_Dequeue(t *testing.T) {
	q := startQueue(t, &fakeFormer{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queueTicket("u1", "novice", 0.3)))
	assert.True(t, q.Dequeue(ctx, shared.UserID("u1")))
	assert.False(t, q.Dequeue(ctx, shared.UserID("u1")))
	assert.Empty(t, q.Snapshot(ctx))
}

func TestQueue_FormsCompatibleGroup(t *testing.T) {
	former := &fakeFormer{}
	q := startQueue(t, former)
	ctx := context.Background()

	// Three same-rank players with close skill clear the phase-1 gate.
	require.NoError(t, q.Enqueue(ctx, queueTicket("u1", "novice", 0.30)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u2", "novice", 0.32)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u3", "novice", 0.34)))

	waitFor(t, func() bool { return former.formed() == 1 })

	// Formed tickets leave the queue.
	waitFor(t, func() bool { return len(q.Snapshot(ctx)) == 0 })

	former.mu.Lock()
	defer former.mu.Unlock()
	require.Len(t, former.groups[0], 3)
}

func TestQueue_ShortBucketWaits(t *testing.T) {
	former := &fakeFormer{}
	q := startQueue(t, former)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queueTicket("u1", "novice", 0.30)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u2", "novice", 0.32)))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, former.formed())
	assert.Len(t, q.Snapshot(ctx), 2)
}

func TestQueue_CrossRankFormsInPhaseTwo(t *testing.T) {
	former := &fakeFormer{}
	q := startQueue(t, former)
	ctx := context.Background()

	// Mixed ranks never share a phase-1 bucket, but close skill passes the
	// lenient cross-rank gate.
	require.NoError(t, q.Enqueue(ctx, queueTicket("u1", "novice", 0.30)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u2", "apprentice", 0.32)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u3", "novice", 0.34)))

	waitFor(t, func() bool { return former.formed() == 1 })
}

func TestQueue_LanguageSplitsBuckets(t *testing.T) {
	former := &fakeFormer{}
	q := startQueue(t, former)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queueTicket("u1", "novice", 0.30)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u2", "novice", 0.32)))
	t3 := queueTicket("u3", "novice", 0.34)
	t3.Language = "go"
	require.NoError(t, q.Enqueue(ctx, t3))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, former.formed(), "different languages never cluster")
}

func TestQueue_FormationErrorKeepsTickets(t *testing.T) {
	former := &fakeFormer{err: shared.ErrInvalidState}
	q := startQueue(t, former)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queueTicket("u1", "novice", 0.30)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u2", "novice", 0.32)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u3", "novice", 0.34)))

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, q.Snapshot(ctx), 3, "a failed formation returns the group to the queue")
}

func TestQueue_StatusBroadcastSkipsSoloWaiters(t *testing.T) {
	notifier := &recordingNotifier{}
	q := New(&fakeFormer{}, notifier, nil, WithTick(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go q.Run(ctx)

	// Two python waiters share a partial bucket; the go waiter sits alone.
	require.NoError(t, q.Enqueue(ctx, queueTicket("u1", "novice", 0.30)))
	require.NoError(t, q.Enqueue(ctx, queueTicket("u2", "novice", 0.32)))
	solo := queueTicket("u3", "novice", 0.34)
	solo.Language = "go"
	require.NoError(t, q.Enqueue(ctx, solo))

	waitFor(t, func() bool { return notifier.count(notification.UserRoom(shared.UserID("u1"))) > 0 })
	assert.Positive(t, notifier.count(notification.UserRoom(shared.UserID("u2"))))
	assert.Zero(t, notifier.count(notification.UserRoom(shared.UserID("u3"))),
		"a waiter with no partial group gets no status update")
}

func TestQueue_EnqueueClampsMatchSize(t *testing.T) {
	q := startQueue(t, &fakeFormer{})
	ctx := context.Background()

	tk := queueTicket("u1", "novice", 0.3)
	tk.MatchSize = 99
	require.NoError(t, q.Enqueue(ctx, tk))

	snap := q.Snapshot(ctx)
	require.Len(t, snap, 1)
	assert.Equal(t, battle.MaxMatchSize, snap[0].MatchSize)
	assert.False(t, snap[0].EnqueuedAt.IsZero())
}
