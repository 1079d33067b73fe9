package puzzle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/shared"
)

const (
	summaryTestUser   = shared.UserID("11111111-2222-3333-4444-555555555555")
	summaryTestLesson = shared.LessonID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
)

func obs(level int, success bool, difficulty shared.Difficulty, attemptTime int) Observation {
	return Observation{
		LevelNumber: level,
		Success:     success,
		Difficulty:  difficulty,
		AttemptTime: attemptTime,
	}
}

func TestNewLessonSummary_FailCounts(t *testing.T) {
	s := NewLessonSummary(summaryTestUser, summaryTestLesson, []Observation{
		obs(3, true, shared.DifficultyEasy, 20),
		obs(3, false, shared.DifficultyEasy, 90),
		obs(3, false, shared.DifficultyEasy, 80),
		obs(2, true, shared.DifficultyEasy, 15),
	}, 4)

	assert.Equal(t, 2, s.FailCount(3))
	assert.Equal(t, 0, s.FailCount(2))
	assert.Equal(t, 0, s.FailCount(99))
}

func TestLessonSummary_NilSafe(t *testing.T) {
	var s *LessonSummary
	assert.Zero(t, s.FailCount(1))
	assert.Nil(t, s.LatestSuccessPerLevel())
	assert.Nil(t, s.LatestAttemptPerLevel())
}

func TestLatestSuccessPerLevel(t *testing.T) {
	// Attempts are newest first: for level 2 the newer (fast) success must
	// win over the older slow one, and failures never appear.
	s := NewLessonSummary(summaryTestUser, summaryTestLesson, []Observation{
		obs(2, true, shared.DifficultyEasy, 10),
		obs(2, true, shared.DifficultyEasy, 300),
		obs(1, false, shared.DifficultyEasy, 45),
		obs(1, true, shared.DifficultyEasy, 30),
	}, 4)

	latest := s.LatestSuccessPerLevel()
	require.Len(t, latest, 2)
	assert.Equal(t, 1, latest[0].LevelNumber)
	assert.Equal(t, 2, latest[1].LevelNumber)
	assert.Equal(t, 10, latest[1].AttemptTime, "newest success wins")
}

func TestLatestAttemptPerLevel(t *testing.T) {
	s := NewLessonSummary(summaryTestUser, summaryTestLesson, []Observation{
		obs(5, false, shared.DifficultyHard, 120),
		obs(5, true, shared.DifficultyHard, 40),
	}, 2)

	latest := s.LatestAttemptPerLevel()
	require.Len(t, latest, 1)
	assert.False(t, latest[0].Success, "latest attempt regardless of outcome")
}

func TestLessonSummary_Prepend(t *testing.T) {
	s := NewLessonSummary(summaryTestUser, summaryTestLesson, []Observation{
		obs(1, true, shared.DifficultyEasy, 30),
	}, 1)

	s.Prepend(obs(2, false, shared.DifficultyEasy, 70))
	assert.Equal(t, 2, s.TotalAttempts)
	assert.Equal(t, 2, s.Attempts[0].LevelNumber, "prepended attempt is newest")
	assert.Equal(t, 1, s.FailCount(2))
}

func TestLessonSummary_PrependWindowCap(t *testing.T) {
	s := NewLessonSummary(summaryTestUser, summaryTestLesson, nil, 0)
	for i := 0; i < SummaryWindow+10; i++ {
		s.Prepend(obs(i, true, shared.DifficultyEasy, 20))
	}
	assert.Len(t, s.Attempts, SummaryWindow)
	assert.Equal(t, SummaryWindow+10, s.TotalAttempts, "total counts beyond the window")
	assert.Equal(t, SummaryWindow+9, s.Attempts[0].LevelNumber)
}

func TestConsecutiveTail(t *testing.T) {
	run := []Observation{obs(1, true, "", 0), obs(2, true, "", 0), obs(3, true, "", 0), obs(5, true, "", 0), obs(6, true, "", 0)}

	tail, ok := ConsecutiveTail(run, 2)
	require.True(t, ok)
	assert.Equal(t, 5, tail[0].LevelNumber)
	assert.Equal(t, 6, tail[1].LevelNumber)

	// The gap between 3 and 5 breaks any longer run.
	_, ok = ConsecutiveTail(run, 3)
	assert.False(t, ok)

	_, ok = ConsecutiveTail(run, 6)
	assert.False(t, ok, "not enough observations")

	_, ok = ConsecutiveTail(run, 0)
	assert.False(t, ok)

	tail, ok = ConsecutiveTail(run, 1)
	require.True(t, ok, "a single observation is trivially consecutive")
	assert.Equal(t, 6, tail[0].LevelNumber)
}
