package query

import (
	"context"
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// AchievementView is one catalog entry annotated with the user's unlock.
type AchievementView struct {
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ExpReward   int        `json:"exp_reward"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementsResult is the full catalog in evaluation order.
type AchievementsResult struct {
	Achievements []AchievementView `json:"achievements"`
	Unlocked     int               `json:"unlocked_count"`
	Total        int               `json:"total_count"`
}

// AchievementsHandler serves the annotated catalog.
type AchievementsHandler struct {
	achievements progression.AchievementRepository
}

// NewAchievementsHandler creates the achievements read handler.
func NewAchievementsHandler(achievements progression.AchievementRepository) *AchievementsHandler {
	return &AchievementsHandler{achievements: achievements}
}

// Get returns every catalog entry with the user's unlock state.
func (h *AchievementsHandler) Get(ctx context.Context, rawUserID string) (*AchievementsResult, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, err
	}

	owned, err := h.achievements.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	unlockedAt := make(map[progression.AchievementType]time.Time, len(owned))
	for _, a := range owned {
		unlockedAt[a.Type] = a.UnlockedAt
	}

	catalog := progression.Catalog()
	res := &AchievementsResult{
		Achievements: make([]AchievementView, 0, len(catalog)),
		Total:        len(catalog),
	}
	for _, def := range catalog {
		view := AchievementView{
			Type:        string(def.Type),
			Title:       def.Title,
			Description: def.Description,
			ExpReward:   def.ExpReward,
		}
		if at, ok := unlockedAt[def.Type]; ok {
			view.Unlocked = true
			view.UnlockedAt = &at
			res.Unlocked++
		}
		res.Achievements = append(res.Achievements, view)
	}
	return res, nil
}
