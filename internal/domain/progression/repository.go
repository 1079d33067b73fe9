package progression

import (
	"context"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// StatsRepository persists the per-user ledger.
type StatsRepository interface {
	// Get loads the ledger row, or shared.ErrStatsNotFound.
	Get(ctx context.Context, userID shared.UserID) (*Statistics, error)

	// GetForUpdate loads the ledger row under a row lock. Inside a
	// transaction this serializes concurrent attempt and battle writes for
	// the same user.
	GetForUpdate(ctx context.Context, userID shared.UserID) (*Statistics, error)

	// GetOrCreateForUpdate loads the row under a row lock, inserting a
	// zeroed ledger first if the user has none yet.
	GetOrCreateForUpdate(ctx context.Context, userID shared.UserID) (*Statistics, error)

	// Save writes the full ledger row back.
	Save(ctx context.Context, stats *Statistics) error
}

// AchievementRepository persists per-user unlock records.
type AchievementRepository interface {
	// OwnedTypes returns the set of achievement types the user has unlocked.
	OwnedTypes(ctx context.Context, userID shared.UserID) (map[AchievementType]bool, error)

	// Insert records an unlock. Returns false without error when the
	// (user, type) pair already exists; the award is idempotent.
	Insert(ctx context.Context, a *Achievement) (inserted bool, err error)

	// ListByUser returns all unlocks for a user, newest first.
	ListByUser(ctx context.Context, userID shared.UserID) ([]*Achievement, error)
}
