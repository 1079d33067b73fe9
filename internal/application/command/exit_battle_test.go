package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/shared"
)

func newExitHandler(env *testEnv) (*ExitBattleHandler, *captureNotifier, *eventRecorder) {
	notifier := &captureNotifier{}
	events := &eventRecorder{}
	return NewExitBattleHandler(env.uow(), env.matches, notifier, events, nil, nil), notifier, events
}

func TestExitBattle_TwoSidedForfeit(t *testing.T) {
	env := newTestEnv()
	m := seedActiveMatch(t, env, battleUserA, battleUserB)
	h, notifier, events := newExitHandler(env)
	ctx := context.Background()

	err := h.Handle(ctx, ExitBattleCommand{UserID: battleUserA, MatchID: m.ID.String()})
	require.NoError(t, err)

	// The survivor wins and the match completes.
	stored, _ := env.matches.Get(ctx, m.ID)
	assert.Equal(t, battle.StatusCompleted, stored.Status)

	survivor, _ := env.participants.Get(ctx, m.ID, shared.UserID(battleUserB))
	require.True(t, survivor.Decided())
	assert.True(t, *survivor.IsWinner)
	deserter, _ := env.participants.Get(ctx, m.ID, shared.UserID(battleUserA))
	require.True(t, deserter.Decided())
	assert.False(t, *deserter.IsWinner)
	assert.Equal(t, battle.ForfeitPenaltyExp, deserter.ExpLost)

	winnerStats, _ := env.stats.Get(ctx, shared.UserID(battleUserB))
	assert.Equal(t, 1250, winnerStats.Exp, "1000 + ranked duo win of 250")
	loserStats, _ := env.stats.Get(ctx, shared.UserID(battleUserA))
	assert.Equal(t, 900, loserStats.Exp, "forfeit penalty, not the submission loss")

	// The opponent notification precedes the settlement fan-out.
	require.NotEmpty(t, notifier.emits)
	assert.Equal(t, notification.EventOpponentExited, notifier.emits[0].Event)
	assert.Equal(t, notification.BattleRoom(m.ID), notifier.emits[0].Room)

	assert.Contains(t, events.Types(), shared.EventMatchCompleted)
}

func TestExitBattle_MultiOpponentOnlyDeserterSettles(t *testing.T) {
	env := newTestEnv()
	m := seedActiveMatch(t, env, battleUserA, battleUserB, battleUserC)
	h, _, _ := newExitHandler(env)
	ctx := context.Background()

	err := h.Handle(ctx, ExitBattleCommand{UserID: battleUserA, MatchID: m.ID.String()})
	require.NoError(t, err)

	// Two opponents keep fighting; the match stays active.
	stored, _ := env.matches.Get(ctx, m.ID)
	assert.Equal(t, battle.StatusActive, stored.Status)

	deserter, _ := env.participants.Get(ctx, m.ID, shared.UserID(battleUserA))
	require.True(t, deserter.Decided())
	assert.Equal(t, battle.ForfeitPenaltyExp, deserter.ExpLost)

	deserterStats, _ := env.stats.Get(ctx, shared.UserID(battleUserA))
	assert.Equal(t, 900, deserterStats.Exp)

	// The remaining players are untouched.
	b, _ := env.participants.Get(ctx, m.ID, shared.UserID(battleUserB))
	assert.False(t, b.Decided())
	bStats, _ := env.stats.Get(ctx, shared.UserID(battleUserB))
	assert.Equal(t, 1000, bStats.Exp)
}

func TestExitBattle_EarlierForfeitNotDebitedAgain(t *testing.T) {
	env := newTestEnv()
	m := seedActiveMatch(t, env, battleUserA, battleUserB, battleUserC)
	h, _, _ := newExitHandler(env)
	ctx := context.Background()

	// A forfeits first: penalty only, the match keeps running.
	require.NoError(t, h.Handle(ctx, ExitBattleCommand{UserID: battleUserA, MatchID: m.ID.String()}))
	aStats, _ := env.stats.Get(ctx, shared.UserID(battleUserA))
	require.Equal(t, 900, aStats.Exp)

	// B exits too, leaving C as the sole survivor; the match settles.
	require.NoError(t, h.Handle(ctx, ExitBattleCommand{UserID: battleUserB, MatchID: m.ID.String()}))

	stored, _ := env.matches.Get(ctx, m.ID)
	assert.Equal(t, battle.StatusCompleted, stored.Status)

	winner, _ := env.participants.Get(ctx, m.ID, shared.UserID(battleUserC))
	require.True(t, winner.Decided())
	assert.True(t, *winner.IsWinner)
	cStats, _ := env.stats.Get(ctx, shared.UserID(battleUserC))
	assert.Equal(t, 1300, cStats.Exp, "1000 + ranked trio win of 300")

	// A keeps the earlier forfeit outcome; settlement must not debit twice.
	a, _ := env.participants.Get(ctx, m.ID, shared.UserID(battleUserA))
	assert.Equal(t, battle.ForfeitPenaltyExp, a.ExpLost)
	aStats, _ = env.stats.Get(ctx, shared.UserID(battleUserA))
	assert.Equal(t, 900, aStats.Exp)

	bStats, _ := env.stats.Get(ctx, shared.UserID(battleUserB))
	assert.Equal(t, 900, bStats.Exp)
}

func TestExitBattle_PendingMatchCancels(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	m := battle.NewMatch(battle.TypeRanked, "go", shared.LevelID(battleLevel))
	require.NoError(t, env.matches.Insert(ctx, m))
	require.NoError(t, env.participants.Insert(ctx, battle.NewParticipant(m.ID, shared.UserID(battleUserA))))

	h, notifier, events := newExitHandler(env)
	require.NoError(t, h.Handle(ctx, ExitBattleCommand{UserID: battleUserA, MatchID: m.ID.String()}))

	stored, _ := env.matches.Get(ctx, m.ID)
	assert.Equal(t, battle.StatusCancelled, stored.Status)

	// Leaving a pending match costs nothing.
	stats, err := env.stats.Get(ctx, shared.UserID(battleUserA))
	if err == nil {
		assert.Equal(t, 0, stats.Exp)
	}
	assert.Contains(t, events.Types(), shared.EventMatchCancelled)

	var names []string
	for _, e := range notifier.emits {
		names = append(names, e.Event)
	}
	assert.Contains(t, names, notification.EventPlayerLeftBattle)
}

func TestExitBattle_TerminalMatchIsNoop(t *testing.T) {
	env := newTestEnv()
	m := seedActiveMatch(t, env, battleUserA, battleUserB)
	h, _, _ := newExitHandler(env)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, ExitBattleCommand{UserID: battleUserA, MatchID: m.ID.String()}))
	before, _ := env.stats.Get(ctx, shared.UserID(battleUserA))

	// Exiting again after settlement changes nothing.
	require.NoError(t, h.Handle(ctx, ExitBattleCommand{UserID: battleUserA, MatchID: m.ID.String()}))
	after, _ := env.stats.Get(ctx, shared.UserID(battleUserA))
	assert.Equal(t, before.Exp, after.Exp)
}

func TestExitBattle_ChallengeForfeitPaysWager(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	m := battle.NewMatch(battle.TypeChallenge, "go", shared.LevelID(battleLevel))
	m.Wager = 150
	require.NoError(t, m.Start(m.CreatedAt))
	require.NoError(t, env.matches.Insert(ctx, m))
	for _, u := range []string{battleUserA, battleUserB} {
		require.NoError(t, env.participants.Insert(ctx, battle.NewParticipant(m.ID, shared.UserID(u))))
		stats := progression.NewStatistics(shared.UserID(u))
		stats.AddExp(1000)
		require.NoError(t, env.stats.Save(ctx, stats))
	}

	h, _, _ := newExitHandler(env)
	require.NoError(t, h.Handle(ctx, ExitBattleCommand{UserID: battleUserA, MatchID: m.ID.String()}))

	// Challenge stakes ride the wager: winner +300, deserter -150.
	winner, _ := env.stats.Get(ctx, shared.UserID(battleUserB))
	assert.Equal(t, 1300, winner.Exp)
	loser, _ := env.stats.Get(ctx, shared.UserID(battleUserA))
	assert.Equal(t, 850, loser.Exp)
}

func TestExitBattle_ForfeitAll(t *testing.T) {
	env := newTestEnv()
	m := seedActiveMatch(t, env, battleUserA, battleUserB)
	h, _, events := newExitHandler(env)
	ctx := context.Background()

	h.ForfeitAll(ctx, shared.UserID(battleUserA))

	stored, _ := env.matches.Get(ctx, m.ID)
	assert.Equal(t, battle.StatusCompleted, stored.Status)

	// The disconnect reason rides the completion event.
	var completed shared.Event
	for _, ev := range events.events {
		if ev.EventType() == shared.EventMatchCompleted {
			completed = ev
		}
	}
	require.NotNil(t, completed)
}
