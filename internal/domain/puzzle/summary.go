package puzzle

import (
	"context"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// SummaryWindow is the number of recent attempts a lesson summary keeps.
const SummaryWindow = 50

// Observation is one attempt as seen by the performance summary: just enough
// to evaluate the difficulty rules.
type Observation struct {
	LevelID     shared.LevelID
	LevelNumber int
	Success     bool
	Difficulty  shared.Difficulty
	AttemptTime int
	CreatedAt   time.Time
}

// LessonSummary is the rolling per-(user, lesson) performance window the
// rule engine consumes. Attempts are ordered newest first.
type LessonSummary struct {
	UserID   shared.UserID
	LessonID shared.LessonID

	Attempts []Observation

	// FailCounts tracks failures per level number within the window.
	FailCounts map[int]int

	TotalAttempts int
}

// NewLessonSummary builds a summary from attempts ordered newest first.
func NewLessonSummary(userID shared.UserID, lessonID shared.LessonID, attempts []Observation, total int) *LessonSummary {
	s := &LessonSummary{
		UserID:        userID,
		LessonID:      lessonID,
		Attempts:      attempts,
		FailCounts:    make(map[int]int),
		TotalAttempts: total,
	}
	for _, a := range attempts {
		if !a.Success {
			s.FailCounts[a.LevelNumber]++
		}
	}
	return s
}

// Prepend merges a just-written attempt into the head of the window so the
// next read observes its own write without a store round-trip.
func (s *LessonSummary) Prepend(obs Observation) {
	s.Attempts = append([]Observation{obs}, s.Attempts...)
	if len(s.Attempts) > SummaryWindow {
		s.Attempts = s.Attempts[:SummaryWindow]
	}
	if !obs.Success {
		s.FailCounts[obs.LevelNumber]++
	}
	s.TotalAttempts++
}

// FailCount returns the windowed failure count for a level number.
func (s *LessonSummary) FailCount(levelNumber int) int {
	if s == nil || s.FailCounts == nil {
		return 0
	}
	return s.FailCounts[levelNumber]
}

// LatestSuccessPerLevel reduces the window to the most recent successful
// attempt of each level number, returned in ascending level-number order.
// This is the input shape for consecutive-run detection.
func (s *LessonSummary) LatestSuccessPerLevel() []Observation {
	if s == nil {
		return nil
	}
	latest := make(map[int]Observation)
	for _, a := range s.Attempts { // newest first: keep the first seen per level
		if !a.Success {
			continue
		}
		if _, ok := latest[a.LevelNumber]; !ok {
			latest[a.LevelNumber] = a
		}
	}
	out := make([]Observation, 0, len(latest))
	for _, obs := range latest {
		out = append(out, obs)
	}
	sortObservationsByLevel(out)
	return out
}

// LatestAttemptPerLevel mirrors LatestSuccessPerLevel but keeps the most
// recent attempt of each level regardless of outcome. The advanced demotion
// rules look at failing runs.
func (s *LessonSummary) LatestAttemptPerLevel() []Observation {
	if s == nil {
		return nil
	}
	latest := make(map[int]Observation)
	for _, a := range s.Attempts {
		if _, ok := latest[a.LevelNumber]; !ok {
			latest[a.LevelNumber] = a
		}
	}
	out := make([]Observation, 0, len(latest))
	for _, obs := range latest {
		out = append(out, obs)
	}
	sortObservationsByLevel(out)
	return out
}

func sortObservationsByLevel(obs []Observation) {
	// Insertion sort; the window holds at most 50 distinct levels.
	for i := 1; i < len(obs); i++ {
		for j := i; j > 0 && obs[j].LevelNumber < obs[j-1].LevelNumber; j-- {
			obs[j], obs[j-1] = obs[j-1], obs[j]
		}
	}
}

// ConsecutiveTail reports whether the tail of length k of the given
// observations forms a run of consecutive level numbers
// (levelNumber[i+1] == levelNumber[i]+1) and returns that tail.
func ConsecutiveTail(obs []Observation, k int) ([]Observation, bool) {
	if k <= 0 || len(obs) < k {
		return nil, false
	}
	tail := obs[len(obs)-k:]
	for i := 1; i < len(tail); i++ {
		if tail[i].LevelNumber != tail[i-1].LevelNumber+1 {
			return nil, false
		}
	}
	return tail, true
}

// SummarySource loads summaries; implemented by the read-through cache and,
// beneath it, the attempt store.
type SummarySource interface {
	GetLessonSummary(ctx context.Context, userID shared.UserID, lessonID shared.LessonID) (*LessonSummary, error)
}
