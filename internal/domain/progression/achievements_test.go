package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unlockedTypes(defs []Definition) []AchievementType {
	out := make([]AchievementType, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Type)
	}
	return out
}

func TestCheckUnlocks_FirstPuzzle(t *testing.T) {
	s := NewStatistics(testUserID)
	s.ApplyAttempt(true, 50)

	defs := CheckUnlocks(CheckInput{Stats: s, CompletedLevels: 1, Success: true})
	assert.Contains(t, unlockedTypes(defs), AchievementFirstPuzzle)

	// A failed attempt never unlocks first_puzzle, even with past successes.
	defs = CheckUnlocks(CheckInput{Stats: s, CompletedLevels: 1, Success: false})
	assert.NotContains(t, unlockedTypes(defs), AchievementFirstPuzzle)
}

func TestCheckUnlocks_Idempotent(t *testing.T) {
	s := NewStatistics(testUserID)
	s.ApplyAttempt(true, 50)

	owned := map[AchievementType]bool{}
	first := CheckUnlocks(CheckInput{Stats: s, CompletedLevels: 5, Success: true, Owned: owned})
	require.NotEmpty(t, first)

	// The same snapshot with the unlocks recorded yields nothing new.
	again := CheckUnlocks(CheckInput{Stats: s, CompletedLevels: 5, Success: true, Owned: owned})
	assert.Empty(t, again)
}

func TestCheckUnlocks_LevelMilestones(t *testing.T) {
	s := NewStatistics(testUserID)
	s.ApplyAttempt(true, 50)

	defs := CheckUnlocks(CheckInput{Stats: s, CompletedLevels: 15, Success: true})
	types := unlockedTypes(defs)
	assert.Contains(t, types, LevelAchievementType(5))
	assert.Contains(t, types, LevelAchievementType(10))
	assert.Contains(t, types, LevelAchievementType(15))
	assert.NotContains(t, types, LevelAchievementType(25))
}

func TestCheckUnlocks_StreakMilestones(t *testing.T) {
	s := NewStatistics(testUserID)
	for i := 0; i < 7; i++ {
		s.ApplyAttempt(true, 10)
	}
	require.Equal(t, 7, s.CurrentStreak)

	types := unlockedTypes(CheckUnlocks(CheckInput{Stats: s, Success: true}))
	assert.Contains(t, types, StreakAchievementType(3))
	assert.Contains(t, types, StreakAchievementType(7))
	assert.NotContains(t, types, StreakAchievementType(10))
}

func TestCheckUnlocks_RankMilestoneExactThreshold(t *testing.T) {
	s := NewStatistics(testUserID)
	s.AddExp(1049)
	types := unlockedTypes(CheckUnlocks(CheckInput{Stats: s, Success: true}))
	assert.NotContains(t, types, RankAchievementType(1050), "one point below must not fire")

	s.AddExp(1)
	types = unlockedTypes(CheckUnlocks(CheckInput{Stats: s, Success: true}))
	assert.Contains(t, types, RankAchievementType(1050))
	assert.NotContains(t, types, RankAchievementType(1920))
}

func TestCheckUnlocks_NilStats(t *testing.T) {
	assert.Nil(t, CheckUnlocks(CheckInput{Stats: nil, Success: true}))
}

func TestCatalog(t *testing.T) {
	defs := Catalog()
	// 1 first-success + 12 level + 7 streak + 6 rank milestones.
	require.Len(t, defs, 26)

	seen := map[AchievementType]bool{}
	for _, d := range defs {
		assert.False(t, seen[d.Type], "duplicate catalog type %s", d.Type)
		seen[d.Type] = true
		assert.Positive(t, d.ExpReward)
		assert.NotEmpty(t, d.Title)
	}
}
