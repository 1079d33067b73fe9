package query

import (
	"context"
	"fmt"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// MyStatsResult is the profile ledger view: exp, rank, streaks, counters, and
// the rank window the client renders the progress bar from.
type MyStatsResult struct {
	Stats           *progression.Statistics `json:"stats"`
	Rank            progression.Rank        `json:"rank"`
	CompletedLevels int                     `json:"completed_levels"`
	BattleWins      int                     `json:"battle_wins"`
}

// StatsHandler serves the profile ledger.
type StatsHandler struct {
	stats        progression.StatsRepository
	completions  puzzle.CompletionRepository
	participants battle.ParticipantRepository
}

// NewStatsHandler creates the stats read handler.
func NewStatsHandler(stats progression.StatsRepository, completions puzzle.CompletionRepository, participants battle.ParticipantRepository) *StatsHandler {
	return &StatsHandler{stats: stats, completions: completions, participants: participants}
}

// Get loads the user's ledger. A user with no ledger row yet reads as a
// zeroed one; nothing is written.
func (h *StatsHandler) Get(ctx context.Context, rawUserID string) (*MyStatsResult, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, err
	}

	stats, err := h.stats.Get(ctx, userID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load statistics: %w", err)
		}
		stats = progression.NewStatistics(userID)
	}

	completed, err := h.completions.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}
	wins, err := h.participants.WinCountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count battle wins: %w", err)
	}

	return &MyStatsResult{
		Stats:           stats,
		Rank:            stats.Rank(),
		CompletedLevels: completed,
		BattleWins:      wins,
	}, nil
}
