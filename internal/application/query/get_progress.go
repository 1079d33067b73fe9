package query

import (
	"context"
	"fmt"

	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery asks for a user's adaptive state on one level.
type GetProgressQuery struct {
	UserID  string
	LevelID string
}

// ProgressResult is the per-level adaptive state with the level's metadata.
type ProgressResult struct {
	Level    *puzzle.Level    `json:"level"`
	Progress *puzzle.Progress `json:"progress"`
}

// ProgressHandler serves progress reads.
type ProgressHandler struct {
	levels   puzzle.LevelRepository
	progress puzzle.ProgressRepository
}

// NewProgressHandler creates the progress read handler.
func NewProgressHandler(levels puzzle.LevelRepository, progress puzzle.ProgressRepository) *ProgressHandler {
	return &ProgressHandler{levels: levels, progress: progress}
}

// Get loads the level and the user's progress on it. A user who never
// attempted the level gets a default-seeded view without a row being written.
func (h *ProgressHandler) Get(ctx context.Context, q GetProgressQuery) (*ProgressResult, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}
	levelID := shared.LevelID(q.LevelID)
	if !levelID.IsValid() {
		return nil, shared.NewDomainError("query", "GetProgress", shared.ErrInvalidID, "invalid level id")
	}

	level, err := h.levels.GetByID(ctx, levelID)
	if err != nil {
		return nil, err
	}

	progress, err := h.progress.Get(ctx, userID, levelID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load progress: %w", err)
		}
		progress = puzzle.NewProgress(userID, levelID)
	}
	return &ProgressResult{Level: level, Progress: progress}, nil
}

// PreferredDifficulty returns the difficulty the adaptive loop last chose for
// the user in a lesson. A user with no history starts on Medium.
func (h *ProgressHandler) PreferredDifficulty(ctx context.Context, userID shared.UserID, lessonID shared.LessonID) (shared.Difficulty, error) {
	d, err := h.progress.GetPreferredDifficulty(ctx, userID, lessonID)
	if err != nil {
		if shared.IsNotFound(err) {
			return shared.DifficultyMedium, nil
		}
		return "", fmt.Errorf("failed to load preferred difficulty: %w", err)
	}
	return d, nil
}
