package progression

import (
	"math"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// CalculateExpGain computes the exp awarded for a non-lesson puzzle attempt:
// base 50, difficulty multiplier {Easy 1.0, Medium 1.25, Hard 1.5}, streak
// bonus 1 + 0.05 * max(0, streak). Failed attempts earn nothing.
func CalculateExpGain(success bool, difficulty shared.Difficulty, streak int) int {
	if !success {
		return 0
	}
	if streak < 0 {
		streak = 0
	}
	bonus := 1.0 + StreakBonusStep*float64(streak)
	return int(math.Round(BaseExpGain * difficulty.ExpMultiplier() * bonus))
}

// AttemptExpGain picks the exp policy for one attempt: lesson-scoped attempts
// earn a flat 20 on success, everything else uses the difficulty formula.
func AttemptExpGain(success bool, lessonScoped bool, difficulty shared.Difficulty, streak int) int {
	if lessonScoped {
		if success {
			return LessonSuccessExp
		}
		return 0
	}
	return CalculateExpGain(success, difficulty, streak)
}

// UpdateStreaks advances the success streak pair: a success extends the
// current streak, a failure resets it; the longest streak never shrinks.
func UpdateStreaks(current, longest int, success bool) (newCurrent, newLongest int) {
	if success {
		newCurrent = current + 1
	} else {
		newCurrent = 0
	}
	newLongest = longest
	if newCurrent > newLongest {
		newLongest = newCurrent
	}
	return newCurrent, newLongest
}
