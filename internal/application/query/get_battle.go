package query

import (
	"context"
	"fmt"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATTLE QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantView is one player's row with their display name resolved.
type ParticipantView struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	RankName    string `json:"rank_name"`
	IsWinner    *bool  `json:"is_winner,omitempty"`
	ExpGained   int    `json:"exp_gained,omitempty"`
	ExpLost     int    `json:"exp_lost,omitempty"`
}

// BattleResult is one match with its participants and, for active battles,
// the puzzle being fought over.
type BattleResult struct {
	Match        *battle.Match     `json:"match"`
	Participants []ParticipantView `json:"participants"`
	Level        *puzzle.Level     `json:"level,omitempty"`
}

// BattleHandler serves battle reads.
type BattleHandler struct {
	matches      battle.MatchRepository
	participants battle.ParticipantRepository
	challenges   battle.ChallengeRepository
	levels       puzzle.LevelRepository
	users        user.Repository
}

// NewBattleHandler creates the battle read handler.
func NewBattleHandler(
	matches battle.MatchRepository,
	participants battle.ParticipantRepository,
	challenges battle.ChallengeRepository,
	levels puzzle.LevelRepository,
	users user.Repository,
) *BattleHandler {
	return &BattleHandler{
		matches:      matches,
		participants: participants,
		challenges:   challenges,
		levels:       levels,
		users:        users,
	}
}

// Get loads one match. Only participants may view a battle.
func (h *BattleHandler) Get(ctx context.Context, rawUserID, rawMatchID string) (*BattleResult, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, err
	}
	matchID := shared.MatchID(rawMatchID)
	if !matchID.IsValid() {
		return nil, shared.NewDomainError("query", "GetBattle", shared.ErrInvalidID, "invalid match id")
	}

	match, err := h.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if _, err := h.participants.Get(ctx, matchID, userID); err != nil {
		return nil, err
	}
	return h.assemble(ctx, match)
}

// ActiveForUser lists the user's running and pending battles, newest first.
func (h *BattleHandler) ActiveForUser(ctx context.Context, rawUserID string) ([]*BattleResult, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, err
	}

	active, err := h.matches.ActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	pending, err := h.matches.PendingByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending matches: %w", err)
	}

	results := make([]*BattleResult, 0, len(active)+len(pending))
	for _, m := range append(active, pending...) {
		res, err := h.assemble(ctx, m)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// PendingChallenges lists unanswered invites addressed to the user.
func (h *BattleHandler) PendingChallenges(ctx context.Context, rawUserID string) ([]*battle.Challenge, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, err
	}
	return h.challenges.PendingForOpponent(ctx, userID)
}

// assemble joins a match with its participants, display names, and level.
func (h *BattleHandler) assemble(ctx context.Context, match *battle.Match) (*BattleResult, error) {
	participants, err := h.participants.ListByMatch(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	ids := make([]shared.UserID, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	names := map[shared.UserID]string{}
	if h.users != nil && len(ids) > 0 {
		if resolved, err := h.users.DisplayNames(ctx, ids); err == nil {
			names = resolved
		}
	}

	res := &BattleResult{Match: match, Participants: make([]ParticipantView, 0, len(participants))}
	for _, p := range participants {
		res.Participants = append(res.Participants, ParticipantView{
			UserID:      p.UserID.String(),
			DisplayName: names[p.UserID],
			RankName:    p.RankAtJoin,
			IsWinner:    p.IsWinner,
			ExpGained:   p.ExpGained,
			ExpLost:     p.ExpLost,
		})
	}

	if match.Status == battle.StatusActive && !match.LevelID.IsEmpty() && h.levels != nil {
		if level, err := h.levels.GetByID(ctx, match.LevelID); err == nil {
			res.Level = level
		}
	}
	return res, nil
}
