package adaptive

import (
	"context"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// AdaptiveLog is one append-only analytics row written for every processed
// attempt, successful or not.
type AdaptiveLog struct {
	ID             string
	UserID         shared.UserID
	LevelID        shared.LevelID
	Success        bool
	ThetaBefore    shared.Theta
	ThetaAfter     shared.Theta
	BetaBefore     shared.Beta
	BetaAfter      shared.Beta
	Probability    float64
	KernelSource   string
	AppliedRule    string
	AttemptTime    int
	CreatedAt      time.Time
}

// DifficultyAudit is a write-once row recording a difficulty or beta change.
// The schema rejects updates and deletes on this table; rows are evidence.
type DifficultyAudit struct {
	ID             string
	UserID         shared.UserID
	LevelID        shared.LevelID
	LessonID       shared.LessonID
	BetaBefore     shared.Beta
	BetaAfter      shared.Beta
	DifficultyFrom shared.Difficulty
	DifficultyTo   shared.Difficulty
	AppliedRule    string
	Evaluations    []AuditEntry
	CreatedAt      time.Time
}

// Changed reports whether the row records an actual transition. Rows with no
// change are never persisted.
func (d *DifficultyAudit) Changed() bool {
	return d.BetaBefore != d.BetaAfter || d.DifficultyFrom != d.DifficultyTo
}

// AuditRepository persists adaptive analytics. Both writes run inside the
// attempt transaction under a savepoint: a failed audit insert must never
// fail the attempt.
type AuditRepository interface {
	// InsertLog appends an adaptive log row.
	InsertLog(ctx context.Context, l *AdaptiveLog) error

	// InsertDifficultyAudit appends a write-once difficulty audit row.
	InsertDifficultyAudit(ctx context.Context, a *DifficultyAudit) error
}
