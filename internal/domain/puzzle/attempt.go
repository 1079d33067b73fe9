package puzzle

import (
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// MaxAttemptTimeSeconds bounds a single attempt duration.
const MaxAttemptTimeSeconds = 3600

// Attempt is one append-only row in the attempt log. Theta/beta capture the
// snapshot BEFORE the ledger update so the log replays the adaptive history.
type Attempt struct {
	ID             string
	UserID         shared.UserID
	LevelID        shared.LevelID
	LessonID       shared.LessonID // empty when the attempt is not lesson-scoped
	Success        bool
	AttemptTime    int // seconds, [0, 3600]
	ThetaAtAttempt shared.Theta
	BetaAtAttempt  shared.Beta
	Difficulty     shared.Difficulty
	IdempotencyKey string // client attemptId; unique per user when present
	CodeSubmitted  string
	CreatedAt      time.Time
}

// Validate checks the attempt's field invariants.
func (a *Attempt) Validate() error {
	if a.UserID.IsEmpty() {
		return shared.NewDomainError("puzzle", "Validate", shared.ErrInvalidID, "user id is required")
	}
	if a.LevelID.IsEmpty() {
		return shared.NewDomainError("puzzle", "Validate", shared.ErrInvalidID, "level id is required")
	}
	if a.AttemptTime < 0 || a.AttemptTime > MaxAttemptTimeSeconds {
		return shared.ErrInvalidAttemptTime
	}
	if !a.Difficulty.IsValid() {
		return shared.NewDomainError("puzzle", "Validate", shared.ErrInvalidInput, "unknown difficulty")
	}
	return nil
}
