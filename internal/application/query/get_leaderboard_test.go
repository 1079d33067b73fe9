package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/leaderboard"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// memBoards is an in-memory snapshot store with a controllable age and
// counters for rebuild assertions.
type memBoards struct {
	snapshots map[leaderboard.BoardType][]leaderboard.Entry
	age       time.Duration
	builds    int
	buildErr  error
	liveErr   error
}

func newMemBoards() *memBoards {
	return &memBoards{snapshots: map[leaderboard.BoardType][]leaderboard.Entry{}}
}

func (m *memBoards) ReplaceBoard(_ context.Context, boardType leaderboard.BoardType, entries []leaderboard.Entry) error {
	m.snapshots[boardType] = entries
	m.age = 0
	return nil
}

func (m *memBoards) Top(_ context.Context, boardType leaderboard.BoardType, limit int) ([]leaderboard.Entry, error) {
	entries := m.snapshots[boardType]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *memBoards) PositionOf(_ context.Context, boardType leaderboard.BoardType, userID shared.UserID) (*leaderboard.Entry, error) {
	for _, e := range m.snapshots[boardType] {
		if e.UserID == userID {
			cp := e
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memBoards) SnapshotAge(_ context.Context, boardType leaderboard.BoardType) (time.Duration, int, error) {
	return m.age, len(m.snapshots[boardType]), nil
}

func (m *memBoards) BuildBoard(_ context.Context, boardType leaderboard.BoardType, limit int) ([]leaderboard.Entry, error) {
	m.builds++
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	entries := make([]leaderboard.Entry, 0, 3)
	for i := 1; i <= 3 && i <= limit; i++ {
		entries = append(entries, leaderboard.Entry{
			BoardType: boardType,
			Position:  i,
			UserID:    shared.UserID(fmt.Sprintf("user-%d", i)),
			Score:     1000 - i,
		})
	}
	return entries, nil
}

func (m *memBoards) LiveStanding(_ context.Context, boardType leaderboard.BoardType, userID shared.UserID) (*leaderboard.Standing, error) {
	if m.liveErr != nil {
		return nil, m.liveErr
	}
	return &leaderboard.Standing{BoardType: boardType, Position: 42, Score: 10, Cached: false}, nil
}

func TestLeaderboard_BuildsOnFirstRead(t *testing.T) {
	repo := newMemBoards()
	h := NewLeaderboardHandler(repo, time.Minute, 50, nil, nil)

	res, err := h.Get(context.Background(), LeaderboardQuery{Board: "overall"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.builds, "an empty snapshot forces a rebuild")
	require.Len(t, res.Entries, 3)
	assert.Equal(t, 1, res.Entries[0].Position)
}

func TestLeaderboard_FreshSnapshotSkipsRebuild(t *testing.T) {
	repo := newMemBoards()
	h := NewLeaderboardHandler(repo, time.Minute, 50, nil, nil)
	ctx := context.Background()

	_, err := h.Get(ctx, LeaderboardQuery{Board: "overall"})
	require.NoError(t, err)
	_, err = h.Get(ctx, LeaderboardQuery{Board: "overall"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.builds)
}

func TestLeaderboard_StaleSnapshotRebuilds(t *testing.T) {
	repo := newMemBoards()
	h := NewLeaderboardHandler(repo, time.Minute, 50, nil, nil)
	ctx := context.Background()

	_, err := h.Get(ctx, LeaderboardQuery{Board: "overall"})
	require.NoError(t, err)

	repo.age = 2 * time.Minute
	_, err = h.Get(ctx, LeaderboardQuery{Board: "overall"})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.builds)
}

func TestLeaderboard_ServesStaleOnRebuildFailure(t *testing.T) {
	repo := newMemBoards()
	h := NewLeaderboardHandler(repo, time.Minute, 50, nil, nil)
	ctx := context.Background()

	_, err := h.Get(ctx, LeaderboardQuery{Board: "overall"})
	require.NoError(t, err)

	// The next rebuild fails; the old page is still served.
	repo.age = 2 * time.Minute
	repo.buildErr = fmt.Errorf("ledger scan failed")
	res, err := h.Get(ctx, LeaderboardQuery{Board: "overall"})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 3)
}

func TestLeaderboard_MyStanding(t *testing.T) {
	repo := newMemBoards()
	h := NewLeaderboardHandler(repo, time.Minute, 50, nil, nil)
	ctx := context.Background()

	// Inside the snapshot: the cached position is used.
	res, err := h.Get(ctx, LeaderboardQuery{Board: "overall", UserID: "user-2"})
	require.NoError(t, err)
	require.NotNil(t, res.MyStanding)
	assert.True(t, res.MyStanding.Cached)
	assert.Equal(t, 2, res.MyStanding.Position)

	// Outside the snapshot depth: the live count answers.
	res, err = h.Get(ctx, LeaderboardQuery{Board: "overall", UserID: "user-99"})
	require.NoError(t, err)
	require.NotNil(t, res.MyStanding)
	assert.False(t, res.MyStanding.Cached)
	assert.Equal(t, 42, res.MyStanding.Position)

	// A failed live lookup drops the standing, never the page.
	repo.liveErr = fmt.Errorf("timeout")
	res, err = h.Get(ctx, LeaderboardQuery{Board: "overall", UserID: "user-99"})
	require.NoError(t, err)
	assert.Nil(t, res.MyStanding)
	assert.NotEmpty(t, res.Entries)
}

func TestLeaderboard_LimitClamped(t *testing.T) {
	repo := newMemBoards()
	h := NewLeaderboardHandler(repo, time.Minute, 2, nil, nil)

	res, err := h.Get(context.Background(), LeaderboardQuery{Board: "overall", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 2, "requests above the handler cap are clamped")
}

func TestLeaderboard_InvalidBoard(t *testing.T) {
	h := NewLeaderboardHandler(newMemBoards(), time.Minute, 50, nil, nil)

	_, err := h.Get(context.Background(), LeaderboardQuery{Board: "galactic"})
	assert.ErrorIs(t, err, shared.ErrInvalidBoard)
}

func TestLeaderboard_RefreshAll(t *testing.T) {
	repo := newMemBoards()
	h := NewLeaderboardHandler(repo, time.Minute, 50, nil, nil)

	require.NoError(t, h.RefreshAll(context.Background()))
	assert.Equal(t, len(leaderboard.BoardTypes()), repo.builds)
	for _, b := range leaderboard.BoardTypes() {
		assert.NotEmpty(t, repo.snapshots[b])
	}
}
