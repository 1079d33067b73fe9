package progression

import (
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Statistics is the per-user progression ledger. One row per student,
// created at signup and never deleted while the user is active.
//
// Invariants maintained by every mutator:
//   - Exp stays within [0, 10000].
//   - RankName/RankIndex/NormalizedExp are recomputed from Exp on every write.
type Statistics struct {
	UserID        shared.UserID
	Exp           int
	NormalizedExp float64
	RankName      string
	RankIndex     int

	CurrentStreak int
	LongestStreak int

	TotalSuccessCount int
	TotalFailCount    int

	CompletedAchievements int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStatistics creates a zeroed ledger row for a new student.
func NewStatistics(userID shared.UserID) *Statistics {
	s := &Statistics{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	s.recompute()
	return s
}

// Rank derives the current rank from the stored exp.
func (s *Statistics) Rank() Rank {
	return RankFromExp(s.Exp)
}

// AddExp credits (or, with a negative delta, debits) exp and recomputes the
// derived fields. Returns true when the rank tier changed.
func (s *Statistics) AddExp(delta int) (rankChanged bool) {
	before := s.RankIndex
	s.Exp = ClampExp(s.Exp + delta)
	s.recompute()
	return s.RankIndex != before
}

// DebitExp removes exp with a balance precondition: the ledger never goes
// negative through an explicit purchase (hints, wagers).
func (s *Statistics) DebitExp(amount int) error {
	if amount < 0 {
		return shared.NewDomainError("progression", "DebitExp", shared.ErrNegativeValue, "debit amount cannot be negative")
	}
	if s.Exp < amount {
		return shared.ErrNotEnoughExp
	}
	s.Exp = ClampExp(s.Exp - amount)
	s.recompute()
	return nil
}

// ApplyAttempt records one attempt outcome: bumps the cumulative counters,
// advances the streak pair, and credits the exp gain.
func (s *Statistics) ApplyAttempt(success bool, expGain int) (rankChanged bool) {
	if success {
		s.TotalSuccessCount++
	} else {
		s.TotalFailCount++
	}
	s.CurrentStreak, s.LongestStreak = UpdateStreaks(s.CurrentStreak, s.LongestStreak, success)
	return s.AddExp(expGain)
}

// RecordAchievement counts a freshly unlocked achievement and credits its
// reward.
func (s *Statistics) RecordAchievement(reward int) (rankChanged bool) {
	s.CompletedAchievements++
	return s.AddExp(reward)
}

// recompute refreshes all fields that are pure functions of Exp.
func (s *Statistics) recompute() {
	s.Exp = ClampExp(s.Exp)
	s.NormalizedExp = NormalizeExp(s.Exp)
	rank := RankFromExp(s.Exp)
	s.RankName = rank.Name
	s.RankIndex = rank.Index
	s.UpdatedAt = time.Now().UTC()
}

// Validate checks the ledger invariants. Intended for tests and for guarding
// writes in repositories.
func (s *Statistics) Validate() error {
	if s.Exp < MinExp || s.Exp > MaxExp {
		return shared.ErrExpOutOfRange
	}
	if s.RankIndex < 0 || s.RankIndex >= RankCount {
		return shared.ErrInvalidRankIndex
	}
	if s.RankName != RankFromExp(s.Exp).Name {
		return shared.NewDomainError("progression", "Validate", shared.ErrInvalidState, "rank name is not consistent with exp")
	}
	if s.LongestStreak < s.CurrentStreak {
		return shared.NewDomainError("progression", "Validate", shared.ErrInvalidState, "longest streak below current streak")
	}
	return nil
}
