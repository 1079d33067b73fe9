package battle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/shared"
)

const matchTestLevel = shared.LevelID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

func TestMatchLifecycle(t *testing.T) {
	m := NewMatch(TypeRanked, "go", matchTestLevel)
	require.Equal(t, StatusPending, m.Status)
	assert.False(t, m.Status.IsTerminal())

	now := time.Now().UTC()
	require.NoError(t, m.Start(now))
	assert.Equal(t, StatusActive, m.Status)
	require.NotNil(t, m.StartedAt)

	// Ready replay on an already-active match is harmless.
	require.NoError(t, m.Start(now.Add(time.Second)))
	assert.Equal(t, StatusActive, m.Status)

	require.NoError(t, m.Complete(now.Add(90*time.Second)))
	assert.Equal(t, StatusCompleted, m.Status)
	assert.True(t, m.Status.IsTerminal())
	assert.Equal(t, 90, m.DurationSeconds)

	// Terminal states reject every further transition.
	assert.ErrorIs(t, m.Start(now), shared.ErrMatchNotPending)
	assert.ErrorIs(t, m.Complete(now), shared.ErrMatchNotActive)
	assert.ErrorIs(t, m.Cancel(now), shared.ErrMatchNotPending)
}

func TestMatchCancel(t *testing.T) {
	m := NewMatch(TypeRanked, "go", matchTestLevel)
	now := time.Now().UTC()

	require.NoError(t, m.Cancel(now))
	assert.Equal(t, StatusCancelled, m.Status)
	require.NotNil(t, m.CompletedAt)

	assert.ErrorIs(t, m.Start(now), shared.ErrMatchNotPending)
}

func TestMatchCompleteRequiresActive(t *testing.T) {
	m := NewMatch(TypeRanked, "go", matchTestLevel)
	assert.ErrorIs(t, m.Complete(time.Now()), shared.ErrMatchNotActive)
}

func TestNewMatch_ChallengeWager(t *testing.T) {
	c := NewMatch(TypeChallenge, "python", matchTestLevel)
	assert.Equal(t, DefaultWager, c.Wager)

	r := NewMatch(TypeRanked, "python", matchTestLevel)
	assert.Zero(t, r.Wager)
}

func TestMatchReadyExpired(t *testing.T) {
	m := NewMatch(TypeRanked, "go", matchTestLevel)

	assert.False(t, m.ReadyExpired(m.CreatedAt.Add(ReadyWindow)))
	assert.True(t, m.ReadyExpired(m.CreatedAt.Add(ReadyWindow+time.Second)))

	// Only pending matches expire.
	require.NoError(t, m.Start(m.CreatedAt.Add(time.Second)))
	assert.False(t, m.ReadyExpired(m.CreatedAt.Add(time.Hour)))
}

func TestMatchCompletionTime(t *testing.T) {
	m := NewMatch(TypeRanked, "go", matchTestLevel)
	assert.Zero(t, m.CompletionTime(time.Now()), "not started yet")

	start := time.Now().UTC()
	require.NoError(t, m.Start(start))
	assert.Equal(t, 42, m.CompletionTime(start.Add(42*time.Second)))
	assert.Zero(t, m.CompletionTime(start.Add(-time.Second)), "clock skew clamps at zero")
}

func TestParticipantOutcome(t *testing.T) {
	m := NewMatch(TypeRanked, "go", matchTestLevel)
	winner := NewParticipant(m.ID, "11111111-2222-3333-4444-555555555555")
	loser := NewParticipant(m.ID, "99999999-8888-7777-6666-555555555555")

	assert.False(t, winner.Decided())

	winner.MarkWinner(300)
	loser.MarkLoser(50)

	require.True(t, winner.Decided())
	assert.True(t, *winner.IsWinner)
	assert.True(t, winner.CompletedCode)
	assert.Equal(t, 300, winner.ExpGained)

	require.True(t, loser.Decided())
	assert.False(t, *loser.IsWinner)
	assert.Equal(t, 50, loser.ExpLost)

	now := time.Now().UTC()
	require.NoError(t, m.Start(now))
	require.NoError(t, m.Complete(now.Add(time.Minute)))

	o := OutcomeOf(m, winner)
	assert.Equal(t, m.ID, o.MatchID)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.True(t, o.IsWinner)
	assert.Equal(t, 300, o.ExpGained)
}
