// Package puzzle holds the content hierarchy (course, lesson, level), the
// per-student progress rows, and the append-only attempt log that together
// drive the adaptive difficulty loop.
package puzzle

import (
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Course is the top of the content hierarchy.
type Course struct {
	ID          string
	Title       string
	Description string
	Language    string
	CreatedAt   time.Time
}

// Lesson groups levels and carries the band that selects the difficulty
// rule set.
type Lesson struct {
	ID       shared.LessonID
	CourseID string
	Title    string
	Band     shared.LessonBand
	Position int
}

// Level is one puzzle variant. (lesson_id, level_number, difficulty) is
// unique: the same level number can exist in up to three difficulty variants.
type Level struct {
	ID             shared.LevelID
	LessonID       shared.LessonID
	LevelNumber    int
	Difficulty     shared.Difficulty
	Beta           shared.Beta
	Points         int
	Title          string
	InitialCode    string
	ExpectedOutput string
	Hint           string
	CreatedAt      time.Time
}

// Validate checks the level's field invariants.
func (l *Level) Validate() error {
	if l.ID.IsEmpty() {
		return shared.NewDomainError("puzzle", "Validate", shared.ErrInvalidID, "level id is required")
	}
	if l.LevelNumber < 1 {
		return shared.NewDomainError("puzzle", "Validate", shared.ErrValueOutOfRange, "level number must be >= 1")
	}
	if !l.Difficulty.IsValid() {
		return shared.NewDomainError("puzzle", "Validate", shared.ErrInvalidInput, "unknown difficulty")
	}
	if !l.Beta.IsValid() {
		return shared.ErrInvalidBeta
	}
	return nil
}

// DifficultySearchOrder returns the fallback order used when the target
// difficulty variant of a level number does not exist: the target first,
// then its closest neighbours.
func DifficultySearchOrder(target shared.Difficulty) []shared.Difficulty {
	switch target {
	case shared.DifficultyEasy:
		return []shared.Difficulty{shared.DifficultyEasy, shared.DifficultyMedium, shared.DifficultyHard}
	case shared.DifficultyHard:
		return []shared.Difficulty{shared.DifficultyHard, shared.DifficultyMedium, shared.DifficultyEasy}
	default:
		return []shared.Difficulty{shared.DifficultyMedium, shared.DifficultyEasy, shared.DifficultyHard}
	}
}
