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

func seedPendingMatch(t *testing.T, env *testEnv, age time.Duration, users ...string) *battle.Match {
	t.Helper()
	ctx := context.Background()

	m := battle.NewMatch(battle.TypeRanked, "python", shared.LevelID(battleLevel))
	m.CreatedAt = time.Now().UTC().Add(-age)
	require.NoError(t, env.matches.Insert(ctx, m))
	for _, u := range users {
		require.NoError(t, env.participants.Insert(ctx, battle.NewParticipant(m.ID, shared.UserID(u))))
		seedExp(t, env, u, 500)
	}
	return m
}

func TestKickUnready_SweepCancelsExpired(t *testing.T) {
	env := newTestEnv()
	stale := seedPendingMatch(t, env, battle.ReadyWindow+time.Minute, battleUserA, battleUserB)
	fresh := seedPendingMatch(t, env, time.Second, battleUserC)

	notifier := &captureNotifier{}
	events := &eventRecorder{}
	h := NewKickUnreadyHandler(env.uow(), env.matches, notifier, events, nil, nil)
	ctx := context.Background()

	kicked, err := h.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, kicked)

	m, _ := env.matches.Get(ctx, stale.ID)
	assert.Equal(t, battle.StatusCancelled, m.Status)
	f, _ := env.matches.Get(ctx, fresh.ID)
	assert.Equal(t, battle.StatusPending, f.Status, "matches inside the window are untouched")

	// Every enrolled participant pays the forfeit penalty.
	for _, u := range []string{battleUserA, battleUserB} {
		stats, _ := env.stats.Get(ctx, shared.UserID(u))
		assert.Equal(t, 500-battle.ForfeitPenaltyExp, stats.Exp)
		p, _ := env.participants.Get(ctx, stale.ID, shared.UserID(u))
		require.True(t, p.Decided())
		assert.False(t, *p.IsWinner)
	}
	untouched, _ := env.stats.Get(ctx, shared.UserID(battleUserC))
	assert.Equal(t, 500, untouched.Exp)

	assert.Contains(t, events.Types(), shared.EventMatchCancelled)
	assert.Contains(t, events.Types(), shared.EventExpChanged)

	require.Len(t, notifier.emits, 1)
	assert.Equal(t, notification.BattleRoom(stale.ID), notifier.emits[0].Room)
	assert.Equal(t, notification.EventBattleUpdate, notifier.emits[0].Event)
}

func TestKickUnready_KickRacedWithStart(t *testing.T) {
	env := newTestEnv()
	m := seedPendingMatch(t, env, battle.ReadyWindow+time.Minute, battleUserA, battleUserB)
	require.NoError(t, m.Start(time.Now().UTC()))
	require.NoError(t, env.matches.Save(context.Background(), m))

	notifier := &captureNotifier{}
	h := NewKickUnreadyHandler(env.uow(), env.matches, notifier, &eventRecorder{}, nil, nil)

	// An active match never gets kicked, even when its ready window is gone.
	require.NoError(t, h.Kick(context.Background(), m.ID))
	stored, _ := env.matches.Get(context.Background(), m.ID)
	assert.Equal(t, battle.StatusActive, stored.Status)
	assert.Empty(t, notifier.emits)

	stats, _ := env.stats.Get(context.Background(), shared.UserID(battleUserA))
	assert.Equal(t, 500, stats.Exp)
}
