package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codearena/arena-server/internal/domain/shared"
)

func TestCalculateExpGain(t *testing.T) {
	tests := []struct {
		name       string
		success    bool
		difficulty shared.Difficulty
		streak     int
		want       int
	}{
		{"failure earns nothing", false, shared.DifficultyHard, 10, 0},
		{"easy no streak", true, shared.DifficultyEasy, 0, 50},
		{"medium no streak", true, shared.DifficultyMedium, 0, 63},
		{"hard no streak", true, shared.DifficultyHard, 0, 75},
		{"easy streak 3", true, shared.DifficultyEasy, 3, 58},
		{"medium streak 2", true, shared.DifficultyMedium, 2, 69},
		{"hard streak 10", true, shared.DifficultyHard, 10, 113},
		{"negative streak treated as zero", true, shared.DifficultyEasy, -4, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateExpGain(tt.success, tt.difficulty, tt.streak))
		})
	}
}

func TestAttemptExpGain_LessonScoped(t *testing.T) {
	// Lesson attempts bypass the difficulty formula entirely: flat 20 on
	// success regardless of difficulty or streak.
	assert.Equal(t, LessonSuccessExp, AttemptExpGain(true, true, shared.DifficultyHard, 12))
	assert.Equal(t, 0, AttemptExpGain(false, true, shared.DifficultyEasy, 0))

	// Non-lesson attempts use the formula.
	assert.Equal(t, 75, AttemptExpGain(true, false, shared.DifficultyHard, 0))
}

func TestUpdateStreaks(t *testing.T) {
	tests := []struct {
		name              string
		current, longest  int
		success           bool
		wantCur, wantLong int
	}{
		{"success extends", 2, 5, true, 3, 5},
		{"success sets new longest", 5, 5, true, 6, 6},
		{"failure resets current", 4, 7, false, 0, 7},
		{"longest never shrinks", 0, 9, false, 0, 9},
		{"first success", 0, 0, true, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, long := UpdateStreaks(tt.current, tt.longest, tt.success)
			assert.Equal(t, tt.wantCur, cur)
			assert.Equal(t, tt.wantLong, long)
		})
	}
}
