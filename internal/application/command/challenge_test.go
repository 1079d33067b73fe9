package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
)

func newChallengeHandler(env *testEnv) (*ChallengeHandler, *captureNotifier, *eventRecorder) {
	notifier := &captureNotifier{}
	events := &eventRecorder{}
	return NewChallengeHandler(env.uow(), nil, notifier, events, nil), notifier, events
}

func TestChallenge_CreateNotifiesOpponent(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	h, notifier, _ := newChallengeHandler(env)

	res, err := h.Create(context.Background(), CreateChallengeCommand{
		ChallengerID: battleUserA,
		OpponentID:   battleUserB,
		Language:     "python",
		Wager:        200,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ChallengeID)
	assert.Equal(t, 200, res.Wager)

	require.Len(t, notifier.emits, 1)
	assert.Equal(t, notification.UserRoom(shared.UserID(battleUserB)), notifier.emits[0].Room)
	assert.Equal(t, notification.EventChallengeReceived, notifier.emits[0].Event)
}

func TestChallenge_CreateDefaultsWager(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	h, _, _ := newChallengeHandler(env)

	res, err := h.Create(context.Background(), CreateChallengeCommand{
		ChallengerID: battleUserA,
		OpponentID:   battleUserB,
		Language:     "python",
	})
	require.NoError(t, err)
	assert.Equal(t, battle.DefaultWager, res.Wager)
}

func TestChallenge_CreatePreconditions(t *testing.T) {
	env := newTestEnv()
	h, _, _ := newChallengeHandler(env)
	ctx := context.Background()

	// Challenger cannot cover the wager.
	seedExp(t, env, battleUserA, 150)
	_, err := h.Create(ctx, CreateChallengeCommand{
		ChallengerID: battleUserA, OpponentID: battleUserB, Language: "python", Wager: 200,
	})
	assert.ErrorIs(t, err, shared.ErrNotEnoughExp)

	_, err = h.Create(ctx, CreateChallengeCommand{
		ChallengerID: battleUserA, OpponentID: battleUserA, Language: "python",
	})
	assert.ErrorIs(t, err, shared.ErrSelfChallenge)

	_, err = h.Create(ctx, CreateChallengeCommand{
		ChallengerID: battleUserA, OpponentID: battleUserB,
	})
	assert.Error(t, err, "language is required")

	_, err = h.Create(ctx, CreateChallengeCommand{
		ChallengerID: battleUserA, OpponentID: battleUserB, Language: "python", Wager: -1,
	})
	assert.Error(t, err)
}

func TestChallenge_AcceptCreatesMatch(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	seedExp(t, env, battleUserB, 500)
	h, notifier, events := newChallengeHandler(env)
	ctx := context.Background()

	created, err := h.Create(ctx, CreateChallengeCommand{
		ChallengerID: battleUserA, OpponentID: battleUserB, Language: "python", Wager: 200,
	})
	require.NoError(t, err)

	res, err := h.Respond(ctx, RespondChallengeCommand{
		UserID: battleUserB, ChallengeID: created.ChallengeID, Accept: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	require.False(t, res.MatchID.IsEmpty())

	// The match carries the negotiated wager and both participants.
	m, err := env.matches.Get(ctx, res.MatchID)
	require.NoError(t, err)
	assert.Equal(t, battle.TypeChallenge, m.MatchType)
	assert.Equal(t, 200, m.Wager)
	assert.Equal(t, battle.StatusPending, m.Status)
	for _, u := range []string{battleUserA, battleUserB} {
		p, err := env.participants.Get(ctx, res.MatchID, shared.UserID(u))
		require.NoError(t, err)
		assert.NotEmpty(t, p.RankAtJoin)
	}

	// The stake moves at settlement, not at accept.
	stats, _ := env.stats.Get(ctx, shared.UserID(battleUserA))
	assert.Equal(t, 500, stats.Exp)

	// Both sides hear match_found.
	var rooms []string
	for _, e := range notifier.emits {
		if e.Event == notification.EventMatchFound {
			rooms = append(rooms, e.Room)
		}
	}
	assert.Contains(t, rooms, notification.UserRoom(shared.UserID(battleUserA)))
	assert.Contains(t, rooms, notification.UserRoom(shared.UserID(battleUserB)))

	assert.Contains(t, events.Types(), shared.EventMatchFormed)
}

func TestChallenge_Decline(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	h, notifier, _ := newChallengeHandler(env)
	ctx := context.Background()

	created, err := h.Create(ctx, CreateChallengeCommand{
		ChallengerID: battleUserA, OpponentID: battleUserB, Language: "python",
	})
	require.NoError(t, err)

	res, err := h.Respond(ctx, RespondChallengeCommand{
		UserID: battleUserB, ChallengeID: created.ChallengeID, Accept: false,
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.True(t, res.MatchID.IsEmpty())

	var names []string
	for _, e := range notifier.emits {
		names = append(names, e.Event)
	}
	assert.Contains(t, names, notification.EventChallengeDeclined)

	// Answered invites cannot be answered again.
	_, err = h.Respond(ctx, RespondChallengeCommand{
		UserID: battleUserB, ChallengeID: created.ChallengeID, Accept: true,
	})
	assert.ErrorIs(t, err, shared.ErrChallengeNotPending)
}

func TestChallenge_RespondGuards(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	h, _, _ := newChallengeHandler(env)
	ctx := context.Background()

	created, err := h.Create(ctx, CreateChallengeCommand{
		ChallengerID: battleUserA, OpponentID: battleUserB, Language: "python",
	})
	require.NoError(t, err)

	// Only the addressed opponent may answer.
	_, err = h.Respond(ctx, RespondChallengeCommand{
		UserID: battleUserC, ChallengeID: created.ChallengeID, Accept: true,
	})
	assert.Error(t, err)

	// Accepting without covering the wager fails for the opponent too.
	_, err = h.Respond(ctx, RespondChallengeCommand{
		UserID: battleUserB, ChallengeID: created.ChallengeID, Accept: true,
	})
	assert.ErrorIs(t, err, shared.ErrNotEnoughExp)
}

func TestChallenge_ExpiredInvite(t *testing.T) {
	env := newTestEnv()
	seedExp(t, env, battleUserA, 500)
	seedExp(t, env, battleUserB, 500)
	h, _, _ := newChallengeHandler(env)
	ctx := context.Background()

	created, err := h.Create(ctx, CreateChallengeCommand{
		ChallengerID: battleUserA, OpponentID: battleUserB, Language: "python",
	})
	require.NoError(t, err)

	// Backdate the invite past its answer window.
	c, err := env.challenges.Get(ctx, created.ChallengeID)
	require.NoError(t, err)
	c.CreatedAt = time.Now().UTC().Add(-battle.ChallengeLifetime - time.Minute)
	require.NoError(t, env.challenges.Save(ctx, c))

	_, err = h.Respond(ctx, RespondChallengeCommand{
		UserID: battleUserB, ChallengeID: created.ChallengeID, Accept: true,
	})
	assert.ErrorIs(t, err, shared.ErrChallengeExpired)
}
