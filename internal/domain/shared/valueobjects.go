// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique user identifier (UUID format).
type UserID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the user ID is a valid UUID.
func (u UserID) IsValid() bool {
	return uuidRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToLower(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "invalid user ID format")
	}
	return uid, nil
}

// LevelID represents a unique level identifier (UUID format).
type LevelID string

// IsValid checks if the level ID is a valid UUID.
func (l LevelID) IsValid() bool {
	return uuidRegex.MatchString(string(l))
}

// String returns the string representation.
func (l LevelID) String() string {
	return string(l)
}

// IsEmpty checks if the ID is empty.
func (l LevelID) IsEmpty() bool {
	return l == ""
}

// LessonID represents a unique lesson identifier (UUID format). A zero
// LessonID means the attempt is not lesson-scoped.
type LessonID string

// IsValid checks if the lesson ID is a valid UUID.
func (l LessonID) IsValid() bool {
	return uuidRegex.MatchString(string(l))
}

// String returns the string representation.
func (l LessonID) String() string {
	return string(l)
}

// IsEmpty checks if the ID is empty.
func (l LessonID) IsEmpty() bool {
	return l == ""
}

// MatchID represents a unique multiplayer match identifier (UUID format).
type MatchID string

// IsValid checks if the match ID is a valid UUID.
func (m MatchID) IsValid() bool {
	return uuidRegex.MatchString(string(m))
}

// String returns the string representation.
func (m MatchID) String() string {
	return string(m)
}

// IsEmpty checks if the ID is empty.
func (m MatchID) IsEmpty() bool {
	return m == ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Ability / Difficulty Scalars
// ═══════════════════════════════════════════════════════════════════════════

// Theta is the ability estimate of a student, bounded to [-3, 3].
type Theta float64

const (
	// MinTheta is the lower ability bound.
	MinTheta Theta = -3.0

	// MaxTheta is the upper ability bound.
	MaxTheta Theta = 3.0

	// DefaultTheta is the ability assigned to a brand-new progress row.
	DefaultTheta Theta = 0.0
)

// IsValid checks if theta is within the allowed range.
func (t Theta) IsValid() bool {
	return t >= MinTheta && t <= MaxTheta
}

// Clamp bounds theta to [-3, 3].
func (t Theta) Clamp() Theta {
	if t < MinTheta {
		return MinTheta
	}
	if t > MaxTheta {
		return MaxTheta
	}
	return t
}

// Float64 returns the underlying float64 value.
func (t Theta) Float64() float64 {
	return float64(t)
}

// Beta quantifies a level's difficulty, bounded to [0.1, 1.0].
type Beta float64

const (
	// MinBeta is the lower difficulty bound.
	MinBeta Beta = 0.1

	// MaxBeta is the upper difficulty bound.
	MaxBeta Beta = 1.0

	// DefaultBeta is the difficulty assigned to a brand-new progress row.
	DefaultBeta Beta = 0.5
)

// IsValid checks if beta is within the allowed range.
func (b Beta) IsValid() bool {
	return b >= MinBeta && b <= MaxBeta
}

// Clamp bounds beta to [0.1, 1.0].
func (b Beta) Clamp() Beta {
	if b < MinBeta {
		return MinBeta
	}
	if b > MaxBeta {
		return MaxBeta
	}
	return b
}

// Float64 returns the underlying float64 value.
func (b Beta) Float64() float64 {
	return float64(b)
}

// ═══════════════════════════════════════════════════════════════════════════
// Difficulty
// ═══════════════════════════════════════════════════════════════════════════

// Difficulty is a discrete difficulty label assigned to a level variant.
type Difficulty string

const (
	// DifficultyEasy is the lowest difficulty tier.
	DifficultyEasy Difficulty = "Easy"

	// DifficultyMedium is the middle difficulty tier.
	DifficultyMedium Difficulty = "Medium"

	// DifficultyHard is the highest difficulty tier.
	DifficultyHard Difficulty = "Hard"
)

// Beta band boundaries: Easy < 0.3 <= Medium < 0.6 <= Hard.
const (
	mediumBetaThreshold Beta = 0.3
	hardBetaThreshold   Beta = 0.6
)

// IsValid checks if the difficulty label is one of the known tiers.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (d Difficulty) String() string {
	return string(d)
}

// ExpMultiplier returns the exp multiplier applied to the base gain.
func (d Difficulty) ExpMultiplier() float64 {
	switch d {
	case DifficultyMedium:
		return 1.25
	case DifficultyHard:
		return 1.5
	default:
		return 1.0
	}
}

// DefaultBetaFor returns the representative beta for a difficulty tier,
// used when a progress row must be seeded without a level beta.
func (d Difficulty) DefaultBeta() Beta {
	switch d {
	case DifficultyEasy:
		return 0.2
	case DifficultyMedium:
		return 0.45
	case DifficultyHard:
		return 0.8
	default:
		return DefaultBeta
	}
}

// DifficultyFromBeta maps a beta value onto its difficulty band.
func DifficultyFromBeta(b Beta) Difficulty {
	switch {
	case b < mediumBetaThreshold:
		return DifficultyEasy
	case b < hardBetaThreshold:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}

// ParseDifficulty normalizes a raw difficulty string.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	default:
		return "", NewDomainError("shared", "ParseDifficulty", ErrInvalidInput, fmt.Sprintf("unknown difficulty %q", raw))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Lesson Band
// ═══════════════════════════════════════════════════════════════════════════

// LessonBand classifies a lesson and selects which rule set applies.
type LessonBand string

const (
	// BandBeginner applies the beginner promotion/relief rules.
	BandBeginner LessonBand = "Beginner"

	// BandIntermediate applies the intermediate rules.
	BandIntermediate LessonBand = "Intermediate"

	// BandAdvanced applies the advanced demotion/promotion rules.
	BandAdvanced LessonBand = "Advanced"
)

// IsValid checks if the band is one of the known classifications.
func (b LessonBand) IsValid() bool {
	switch b {
	case BandBeginner, BandIntermediate, BandAdvanced:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b LessonBand) String() string {
	return string(b)
}

// ParseLessonBand normalizes a raw band string.
func ParseLessonBand(raw string) (LessonBand, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "beginner":
		return BandBeginner, nil
	case "intermediate":
		return BandIntermediate, nil
	case "advanced":
		return BandAdvanced, nil
	default:
		return "", NewDomainError("shared", "ParseLessonBand", ErrInvalidInput, fmt.Sprintf("unknown lesson band %q", raw))
	}
}
