package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/matchmaking"
	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/shared"
)

type fakeTicketQueue struct {
	tickets []matchmaking.Ticket
	err     error
}

func (q *fakeTicketQueue) Enqueue(_ context.Context, t matchmaking.Ticket) error {
	if q.err != nil {
		return q.err
	}
	q.tickets = append(q.tickets, t)
	return nil
}

func (q *fakeTicketQueue) Dequeue(_ context.Context, userID shared.UserID) bool {
	for i, t := range q.tickets {
		if t.UserID == userID {
			q.tickets = append(q.tickets[:i], q.tickets[i+1:]...)
			return true
		}
	}
	return false
}

func newJoinHandler(env *testEnv, queue TicketQueue) (*JoinQueueHandler, *eventRecorder) {
	events := &eventRecorder{}
	return NewJoinQueueHandler(env.uow(), queue, env.stats, nil, nil, events, nil), events
}

func seedExp(t *testing.T, env *testEnv, userID string, exp int) {
	t.Helper()
	stats := progression.NewStatistics(shared.UserID(userID))
	stats.AddExp(exp)
	require.NoError(t, env.stats.Save(context.Background(), stats))
}

func TestJoinQueue_SocketEnqueues(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	queue := &fakeTicketQueue{}
	h, events := newJoinHandler(env, queue)

	res, err := h.Handle(context.Background(), JoinQueueCommand{
		UserID:    battleUserA,
		Language:  "python",
		MatchSize: 3,
		Source:    QueueSourceSocket,
	})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.True(t, res.MatchID.IsEmpty(), "socket joins create no match yet")

	require.Len(t, queue.tickets, 1)
	tk := queue.tickets[0]
	assert.Equal(t, shared.UserID(battleUserA), tk.UserID)
	assert.Equal(t, battle.TypeRanked, tk.MatchType)
	assert.Equal(t, "python", tk.Language)
	assert.NotEmpty(t, tk.RankName)

	// The fee is not debited until a match forms.
	stats, _ := env.stats.Get(context.Background(), shared.UserID(battleUserA))
	assert.Equal(t, 500, stats.Exp)

	assert.Contains(t, events.Types(), shared.EventQueueJoined)
}

func TestJoinQueue_ExpFloor(t *testing.T) {
	env := newTestEnv()
	h, _ := newJoinHandler(env, &fakeTicketQueue{})
	ctx := context.Background()

	cmd := JoinQueueCommand{UserID: battleUserA, Language: "python", Source: QueueSourceSocket}

	// No ledger row at all.
	_, err := h.Handle(ctx, cmd)
	assert.ErrorIs(t, err, shared.ErrQueueExpRequired)

	// Below the entry fee.
	seedExp(t, env, battleUserA, matchmaking.MinQueueExp-1)
	_, err = h.Handle(ctx, cmd)
	assert.ErrorIs(t, err, shared.ErrQueueExpRequired)

	// Exactly at the floor is enough.
	seedExp(t, env, battleUserA, matchmaking.MinQueueExp)
	_, err = h.Handle(ctx, cmd)
	assert.NoError(t, err)
}

func TestJoinQueue_DuplicateSocketJoin(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	h, _ := newJoinHandler(env, &fakeTicketQueue{err: shared.ErrQueueEntryExists})

	_, err := h.Handle(context.Background(), JoinQueueCommand{
		UserID: battleUserA, Language: "python", Source: QueueSourceSocket,
	})
	assert.ErrorIs(t, err, shared.ErrQueueEntryExists)
}

func TestJoinQueue_HTTPCreatesSoloPendingMatch(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	h, _ := newJoinHandler(env, &fakeTicketQueue{})
	ctx := context.Background()

	res, err := h.Handle(ctx, JoinQueueCommand{
		UserID: battleUserA, Language: "go", Source: QueueSourceHTTP,
	})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	require.False(t, res.MatchID.IsEmpty())

	// The entry fee is debited up front.
	stats, _ := env.stats.Get(ctx, shared.UserID(battleUserA))
	assert.Equal(t, 500-battle.QueueEntryExp, stats.Exp)

	m, err := env.matches.Get(ctx, res.MatchID)
	require.NoError(t, err)
	assert.Equal(t, battle.StatusPending, m.Status)
	p, err := env.participants.Get(ctx, res.MatchID, shared.UserID(battleUserA))
	require.NoError(t, err)
	assert.NotEmpty(t, p.RankAtJoin)
}

func TestJoinQueue_HTTPRejectsSecondPending(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	h, _ := newJoinHandler(env, &fakeTicketQueue{})
	ctx := context.Background()

	cmd := JoinQueueCommand{UserID: battleUserA, Language: "go", Source: QueueSourceHTTP}
	_, err := h.Handle(ctx, cmd)
	require.NoError(t, err)

	_, err = h.Handle(ctx, cmd)
	assert.ErrorIs(t, err, shared.ErrQueueEntryExists)
}

func TestJoinQueue_HTTPExpFloor(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, battle.QueueEntryExp-1)
	h, _ := newJoinHandler(env, &fakeTicketQueue{})

	_, err := h.Handle(context.Background(), JoinQueueCommand{
		UserID: battleUserA, Language: "go", Source: QueueSourceHTTP,
	})
	assert.ErrorIs(t, err, shared.ErrQueueExpRequired)
}

func TestJoinQueue_Validation(t *testing.T) {
	env := newTestEnv()
	h, _ := newJoinHandler(env, &fakeTicketQueue{})
	ctx := context.Background()

	_, err := h.Handle(ctx, JoinQueueCommand{UserID: "nope", Language: "go", Source: QueueSourceSocket})
	assert.Error(t, err)

	_, err = h.Handle(ctx, JoinQueueCommand{UserID: battleUserA, Source: QueueSourceSocket})
	assert.Error(t, err, "language is required")

	_, err = h.Handle(ctx, JoinQueueCommand{UserID: battleUserA, Language: "go", Source: "carrier-pigeon"})
	assert.Error(t, err)
}
