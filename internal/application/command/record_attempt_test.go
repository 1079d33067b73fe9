package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/config"
	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

const (
	attemptUser   = "11111111-2222-3333-4444-555555555555"
	attemptLesson = "aaaaaaaa-0000-0000-0000-000000000001"
	attemptLevel1 = "aaaaaaaa-0000-0000-0000-000000000101"
	attemptLevel2 = "aaaaaaaa-0000-0000-0000-000000000102"
)

func seedLesson(env *testEnv, band shared.LessonBand) {
	env.levels.lessons[shared.LessonID(attemptLesson)] = &puzzle.Lesson{
		ID:    shared.LessonID(attemptLesson),
		Title: "loops",
		Band:  band,
	}
	env.levels.levels[shared.LevelID(attemptLevel1)] = &puzzle.Level{
		ID:          shared.LevelID(attemptLevel1),
		LessonID:    shared.LessonID(attemptLesson),
		LevelNumber: 1,
		Difficulty:  shared.DifficultyEasy,
		Beta:        0.2,
	}
	env.levels.levels[shared.LevelID(attemptLevel2)] = &puzzle.Level{
		ID:          shared.LevelID(attemptLevel2),
		LessonID:    shared.LessonID(attemptLesson),
		LevelNumber: 2,
		Difficulty:  shared.DifficultyEasy,
		Beta:        0.2,
	}
}

func newAttemptHandler(env *testEnv) (*RecordAttemptHandler, *memSummaries, *eventRecorder) {
	summaries := &memSummaries{}
	events := &eventRecorder{}
	h := NewRecordAttemptHandler(
		env.uow(),
		summaries,
		&fakeKernel{},
		adaptive.NewEngine(adaptive.DefaultRuleConfig()),
		nil,
		config.KernelConfig{TargetPerformance: 0.7, AdjustmentRate: 0.1},
		events,
		nil,
		nil,
	)
	return h, summaries, events
}

func TestRecordAttempt_Success(t *testing.T) {
	env := newTestEnv()
	seedLesson(env, shared.BandBeginner)
	h, _, events := newAttemptHandler(env)

	res, err := h.Handle(context.Background(), RecordAttemptCommand{
		UserID:      attemptUser,
		LevelID:     attemptLevel1,
		Success:     true,
		AttemptTime: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, 50, res.ExpGained, "easy success with no streak")
	assert.Equal(t, 1, res.CurrentStreak)
	assert.False(t, res.Duplicate)

	// first_puzzle unlocks and its reward lands on top of the attempt gain.
	require.Len(t, res.Achievements, 1)
	assert.Equal(t, "first_puzzle", res.Achievements[0].Type)
	assert.Equal(t, 75, res.TotalExp)

	// Everything persisted: attempt row, completion, ledger, audit log.
	assert.Len(t, env.attempts.rows, 1)
	count, _ := env.completions.CountByUser(context.Background(), shared.UserID(attemptUser))
	assert.Equal(t, 1, count)
	stored, err := env.stats.Get(context.Background(), shared.UserID(attemptUser))
	require.NoError(t, err)
	assert.Equal(t, 75, stored.Exp)
	assert.Len(t, env.audit.logs, 1)
	assert.Equal(t, 1, env.sessions.attempts)

	assert.Contains(t, events.Types(), shared.EventAttemptRecorded)
	assert.Contains(t, events.Types(), shared.EventAchievementUnlocked)
}

func TestRecordAttempt_Failure(t *testing.T) {
	env := newTestEnv()
	seedLesson(env, shared.BandBeginner)
	h, _, _ := newAttemptHandler(env)
	ctx := context.Background()

	res, err := h.Handle(ctx, RecordAttemptCommand{
		UserID:      attemptUser,
		LevelID:     attemptLevel1,
		Success:     false,
		AttemptTime: 90,
	})
	require.NoError(t, err)

	assert.Zero(t, res.ExpGained)
	assert.Zero(t, res.CurrentStreak)
	assert.Empty(t, res.Achievements)

	// Failures still leave an attempt row and an audit log, but no completion.
	assert.Len(t, env.attempts.rows, 1)
	count, _ := env.completions.CountByUser(ctx, shared.UserID(attemptUser))
	assert.Zero(t, count)
	assert.Len(t, env.audit.logs, 1)

	p, err := env.progress.Get(ctx, shared.UserID(attemptUser), shared.LevelID(attemptLevel1))
	require.NoError(t, err)
	assert.Equal(t, 1, p.FailCount)
	assert.Zero(t, p.SuccessCount)
}

func TestRecordAttempt_DuplicateIdempotencyKey(t *testing.T) {
	env := newTestEnv()
	seedLesson(env, shared.BandBeginner)
	h, _, _ := newAttemptHandler(env)
	ctx := context.Background()

	cmd := RecordAttemptCommand{
		UserID:      attemptUser,
		LevelID:     attemptLevel1,
		AttemptID:   "client-attempt-1",
		Success:     true,
		AttemptTime: 30,
	}

	first, err := h.Handle(ctx, cmd)
	require.NoError(t, err)
	require.False(t, first.Duplicate)
	expAfterFirst, _ := env.stats.Get(ctx, shared.UserID(attemptUser))

	// The replay acknowledges without writing anything.
	second, err := h.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Len(t, env.attempts.rows, 1)
	after, _ := env.stats.Get(ctx, shared.UserID(attemptUser))
	assert.Equal(t, expAfterFirst.Exp, after.Exp)
}

func TestRecordAttempt_LessonScoped(t *testing.T) {
	env := newTestEnv()
	seedLesson(env, shared.BandBeginner)
	h, summaries, _ := newAttemptHandler(env)
	ctx := context.Background()

	res, err := h.Handle(ctx, RecordAttemptCommand{
		UserID:      attemptUser,
		LevelID:     attemptLevel1,
		LessonID:    attemptLesson,
		Success:     true,
		AttemptTime: 30,
	})
	require.NoError(t, err)

	// Lesson attempts earn the flat reward, not the difficulty formula.
	assert.Equal(t, progression.LessonSuccessExp, res.ExpGained)

	// Success advances to the next level number within the lesson.
	assert.Equal(t, attemptLevel2, res.NextLevelID)

	// The preferred difficulty for the lesson is stored for cold starts.
	d, err := env.progress.GetPreferredDifficulty(ctx, shared.UserID(attemptUser), shared.LessonID(attemptLesson))
	require.NoError(t, err)
	assert.Equal(t, res.Difficulty, d)

	// The summary window was primed so the next read sees this attempt.
	require.Len(t, summaries.primed, 1)
	assert.Equal(t, 1, summaries.primed[0].LevelNumber)
	assert.True(t, summaries.primed[0].Success)
}

func TestRecordAttempt_EndOfLesson(t *testing.T) {
	env := newTestEnv()
	seedLesson(env, shared.BandBeginner)
	h, _, _ := newAttemptHandler(env)

	// Success on the last level: no next variant exists.
	res, err := h.Handle(context.Background(), RecordAttemptCommand{
		UserID:      attemptUser,
		LevelID:     attemptLevel2,
		LessonID:    attemptLesson,
		Success:     true,
		AttemptTime: 25,
	})
	require.NoError(t, err)
	assert.Empty(t, res.NextLevelID)
}

func TestRecordAttempt_KernelFailureDegradesToDefaults(t *testing.T) {
	env := newTestEnv()
	seedLesson(env, shared.BandBeginner)
	summaries := &memSummaries{}
	events := &eventRecorder{}
	h := NewRecordAttemptHandler(
		env.uow(),
		summaries,
		&fakeKernel{err: shared.ErrKernelUnavailable},
		adaptive.NewEngine(adaptive.DefaultRuleConfig()),
		nil,
		config.KernelConfig{},
		events,
		nil,
		nil,
	)

	// A dead kernel never fails the attempt.
	res, err := h.Handle(context.Background(), RecordAttemptCommand{
		UserID:      attemptUser,
		LevelID:     attemptLevel1,
		Success:     true,
		AttemptTime: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, adaptive.SourceDefaults, res.KernelSource)
	assert.Equal(t, 50, res.ExpGained)
}

func TestRecordAttempt_Validation(t *testing.T) {
	env := newTestEnv()
	h, _, _ := newAttemptHandler(env)
	ctx := context.Background()

	_, err := h.Handle(ctx, RecordAttemptCommand{UserID: "nope", LevelID: attemptLevel1})
	assert.Error(t, err)

	_, err = h.Handle(ctx, RecordAttemptCommand{UserID: attemptUser, LevelID: "nope"})
	assert.Error(t, err)

	_, err = h.Handle(ctx, RecordAttemptCommand{
		UserID: attemptUser, LevelID: attemptLevel1, AttemptTime: puzzle.MaxAttemptTimeSeconds + 1,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidAttemptTime)
}

func TestRecordAttempt_StreakGrowsExpGain(t *testing.T) {
	env := newTestEnv()
	seedLesson(env, shared.BandBeginner)
	h, _, _ := newAttemptHandler(env)
	ctx := context.Background()

	first, err := h.Handle(ctx, RecordAttemptCommand{
		UserID: attemptUser, LevelID: attemptLevel1, Success: true, AttemptTime: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, first.ExpGained)

	// The second success carries the streak bonus from streak 1.
	second, err := h.Handle(ctx, cmdOnLevel(attemptLevel2, true))
	require.NoError(t, err)
	assert.Equal(t, 53, second.ExpGained, "50 * 1.05 rounded")
	assert.Equal(t, 2, second.CurrentStreak)
}

func cmdOnLevel(levelID string, success bool) RecordAttemptCommand {
	return RecordAttemptCommand{
		UserID:      attemptUser,
		LevelID:     levelID,
		Success:     success,
		AttemptTime: 20,
	}
}
