package puzzle

import (
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Progress is the per-(user, level) adaptive state. The attempt processor
// owns all writes to it and always loads it under a row lock.
//
// Invariants:
//   - TotalAttempts >= SuccessCount + FailCount, counters never decrease.
//   - Theta in [-3, 3], Beta in [0.1, 1.0].
type Progress struct {
	UserID  shared.UserID
	LevelID shared.LevelID

	Theta     shared.Theta
	PrevTheta shared.Theta
	Beta      shared.Beta
	PrevBeta  shared.Beta

	SuccessCount  int
	FailCount     int
	TotalAttempts int

	BestCompletionTime    int // seconds; 0 when no success yet
	AverageCompletionTime float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProgress seeds a fresh progress row with the default ability estimate.
func NewProgress(userID shared.UserID, levelID shared.LevelID) *Progress {
	now := time.Now().UTC()
	return &Progress{
		UserID:    userID,
		LevelID:   levelID,
		Theta:     shared.DefaultTheta,
		PrevTheta: shared.DefaultTheta,
		Beta:      shared.DefaultBeta,
		PrevBeta:  shared.DefaultBeta,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SeedFrom copies the adaptive state of another progress row. Used when a
// difficulty change redirects the student to a sibling level variant.
func (p *Progress) SeedFrom(src *Progress) {
	p.Theta = src.Theta
	p.PrevTheta = src.PrevTheta
	p.Beta = src.Beta
	p.PrevBeta = src.PrevBeta
	p.UpdatedAt = time.Now().UTC()
}

// RecordOutcome bumps the attempt counters for one try.
func (p *Progress) RecordOutcome(success bool) {
	p.TotalAttempts++
	if success {
		p.SuccessCount++
	} else {
		p.FailCount++
	}
	p.UpdatedAt = time.Now().UTC()
}

// ApplyAdaptiveUpdate stores the new ability and difficulty estimates,
// keeping the previous values for the audit trail. Inputs are clamped.
func (p *Progress) ApplyAdaptiveUpdate(theta shared.Theta, beta shared.Beta) {
	p.PrevTheta = p.Theta
	p.PrevBeta = p.Beta
	p.Theta = theta.Clamp()
	p.Beta = beta.Clamp()
	p.UpdatedAt = time.Now().UTC()
}

// UpdateTimings recomputes best/average completion time from the list of all
// successful attempt durations, including the current attempt when it
// succeeded.
func (p *Progress) UpdateTimings(successSeconds []int) {
	if len(successSeconds) == 0 {
		return
	}
	best := successSeconds[0]
	sum := 0
	for _, s := range successSeconds {
		if s < best {
			best = s
		}
		sum += s
	}
	p.BestCompletionTime = best
	p.AverageCompletionTime = float64(sum) / float64(len(successSeconds))
	p.UpdatedAt = time.Now().UTC()
}

// Validate checks the counter and scalar invariants.
func (p *Progress) Validate() error {
	if p.TotalAttempts < p.SuccessCount+p.FailCount {
		return shared.NewDomainError("puzzle", "Validate", shared.ErrInvalidState, "total attempts below success+fail")
	}
	if !p.Theta.IsValid() {
		return shared.ErrInvalidTheta
	}
	if !p.Beta.IsValid() {
		return shared.ErrInvalidBeta
	}
	return nil
}

// Completion marks the first success on a (user, level) pair. Upserted
// idempotently: replays are no-ops.
type Completion struct {
	UserID      shared.UserID
	LevelID     shared.LevelID
	CompletedAt time.Time
}
