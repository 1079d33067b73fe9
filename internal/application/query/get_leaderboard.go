// Package query contains read operations (CQRS - Queries). Handlers read
// through the pooled repositories without transactions and never mutate the
// ledger; the one exception is the leaderboard snapshot rebuild, which is a
// cache refill, not domain state.
package query

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codearena/arena-server/internal/domain/leaderboard"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD QUERY
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardQuery asks for one board, optionally with the caller's standing.
type LeaderboardQuery struct {
	Board  string
	Limit  int
	UserID string // optional; resolves MyStanding when set
}

// LeaderboardResult is the board page.
type LeaderboardResult struct {
	Board      leaderboard.BoardType `json:"board"`
	Entries    []leaderboard.Entry   `json:"entries"`
	MyStanding *leaderboard.Standing `json:"my_standing,omitempty"`
}

// LeaderboardHandler serves boards from the snapshot tables, rebuilding a
// stale board at most once at a time per board.
type LeaderboardHandler struct {
	repo    leaderboard.Repository
	ttl     time.Duration
	limit   int
	group   singleflight.Group
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewLeaderboardHandler creates the leaderboard read handler. Zero ttl and
// limit fall back to the domain defaults.
func NewLeaderboardHandler(repo leaderboard.Repository, ttl time.Duration, limit int, log *logger.Logger, m *metrics.Metrics) *LeaderboardHandler {
	if ttl <= 0 {
		ttl = leaderboard.DefaultTTL
	}
	if limit <= 0 {
		limit = leaderboard.DefaultLimit
	}
	if log == nil {
		log = logger.Default()
	}
	return &LeaderboardHandler{
		repo:    repo,
		ttl:     ttl,
		limit:   limit,
		log:     log.With(logger.Component("leaderboard")),
		metrics: m,
	}
}

// Get returns the board, refreshing it first when the snapshot is stale.
func (h *LeaderboardHandler) Get(ctx context.Context, q LeaderboardQuery) (*LeaderboardResult, error) {
	board := leaderboard.BoardType(q.Board)
	if !board.IsValid() {
		return nil, shared.ErrInvalidBoard
	}
	limit := q.Limit
	if limit <= 0 || limit > h.limit {
		limit = h.limit
	}

	if err := h.ensureFresh(ctx, board); err != nil {
		// Serve the stale snapshot rather than failing the read.
		h.log.Warn("leaderboard refresh failed, serving stale snapshot",
			logger.BoardType(string(board)), logger.Err(err))
	}

	entries, err := h.repo.Top(ctx, board, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read board: %w", err)
	}

	res := &LeaderboardResult{Board: board, Entries: entries}
	if q.UserID != "" {
		res.MyStanding = h.standing(ctx, board, shared.UserID(q.UserID))
	}
	return res, nil
}

// Refresh rebuilds one board unconditionally. Concurrent callers for the
// same board share one rebuild.
func (h *LeaderboardHandler) Refresh(ctx context.Context, board leaderboard.BoardType) error {
	if !board.IsValid() {
		return shared.ErrInvalidBoard
	}
	_, err, _ := h.group.Do(string(board), func() (any, error) {
		return nil, h.rebuild(ctx, board)
	})
	return err
}

// RefreshAll rebuilds every board unconditionally; the scheduler drives it.
func (h *LeaderboardHandler) RefreshAll(ctx context.Context) error {
	var firstErr error
	for _, board := range leaderboard.BoardTypes() {
		if err := h.rebuild(ctx, board); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ensureFresh rebuilds the board when the snapshot is absent or older than
// the TTL. Concurrent readers of the same stale board share one rebuild.
func (h *LeaderboardHandler) ensureFresh(ctx context.Context, board leaderboard.BoardType) error {
	age, count, err := h.repo.SnapshotAge(ctx, board)
	if err != nil {
		return fmt.Errorf("failed to check snapshot age: %w", err)
	}
	if count > 0 && age <= h.ttl {
		return nil
	}

	_, err, _ = h.group.Do(string(board), func() (any, error) {
		return nil, h.rebuild(ctx, board)
	})
	return err
}

// rebuild swaps in a freshly computed snapshot.
func (h *LeaderboardHandler) rebuild(ctx context.Context, board leaderboard.BoardType) error {
	start := time.Now()
	entries, err := h.repo.BuildBoard(ctx, board, h.limit)
	if err != nil {
		return fmt.Errorf("failed to build board: %w", err)
	}
	if err := h.repo.ReplaceBoard(ctx, board, entries); err != nil {
		return fmt.Errorf("failed to replace board: %w", err)
	}

	if h.metrics != nil {
		h.metrics.LeaderboardRefresh.WithLabelValues(string(board)).Inc()
		h.metrics.LeaderboardDuration.Observe(time.Since(start).Seconds())
	}
	h.log.Debug("leaderboard rebuilt",
		logger.BoardType(string(board)),
		logger.Int("entries", len(entries)),
		logger.Latency(time.Since(start)))
	return nil
}

// standing resolves the caller's position: snapshot first, live count past
// the snapshot depth. A failed lookup drops the standing, never the page.
func (h *LeaderboardHandler) standing(ctx context.Context, board leaderboard.BoardType, userID shared.UserID) *leaderboard.Standing {
	entry, err := h.repo.PositionOf(ctx, board, userID)
	if err == nil {
		return &leaderboard.Standing{BoardType: board, Position: entry.Position, Score: entry.Score, Cached: true}
	}
	if !shared.IsNotFound(err) {
		return nil
	}
	standing, err := h.repo.LiveStanding(ctx, board, userID)
	if err != nil {
		return nil
	}
	return standing
}
