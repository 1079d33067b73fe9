package puzzle

import (
	"context"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// LevelRepository reads the content hierarchy. Content CRUD is an admin
// concern outside this service; the repository is read-only here.
type LevelRepository interface {
	// GetByID loads a level, or shared.ErrLevelNotFound.
	GetByID(ctx context.Context, id shared.LevelID) (*Level, error)

	// FindVariant finds the level with the exact (lesson, number, difficulty)
	// triple, or shared.ErrLevelNotFound.
	FindVariant(ctx context.Context, lessonID shared.LessonID, levelNumber int, difficulty shared.Difficulty) (*Level, error)

	// GetLesson loads a lesson, or shared.ErrNotFound.
	GetLesson(ctx context.Context, id shared.LessonID) (*Lesson, error)

	// PickRandom draws a random level of the given difficulty for battle
	// problem assignment, or shared.ErrLevelNotFound when the pool is empty.
	PickRandom(ctx context.Context, difficulty shared.Difficulty) (*Level, error)
}

// ProgressRepository persists per-(user, level) adaptive state.
type ProgressRepository interface {
	// Get loads a progress row, or shared.ErrProgressNotFound.
	Get(ctx context.Context, userID shared.UserID, levelID shared.LevelID) (*Progress, error)

	// GetForUpdate loads the row under a FOR UPDATE lock, inserting a
	// default row first when none exists. Must run inside a transaction.
	GetForUpdate(ctx context.Context, userID shared.UserID, levelID shared.LevelID) (*Progress, error)

	// Save upserts the full progress row.
	Save(ctx context.Context, p *Progress) error

	// GetPreferredDifficulty returns the lesson-scoped preferred difficulty,
	// or shared.ErrNotFound when the user has no attempts in the lesson.
	GetPreferredDifficulty(ctx context.Context, userID shared.UserID, lessonID shared.LessonID) (shared.Difficulty, error)

	// SetPreferredDifficulty upserts the lesson-scoped preferred difficulty.
	SetPreferredDifficulty(ctx context.Context, userID shared.UserID, lessonID shared.LessonID, d shared.Difficulty) error
}

// AttemptRepository persists the append-only attempt log.
type AttemptRepository interface {
	// Insert appends one attempt row.
	Insert(ctx context.Context, a *Attempt) error

	// ExistsByIdempotencyKey reports whether the user already has an attempt
	// stored under the client-provided attempt id.
	ExistsByIdempotencyKey(ctx context.Context, userID shared.UserID, key string) (bool, error)

	// RecentByLesson returns up to limit observations for the (user, lesson)
	// pair, newest first, plus the total attempt count in the lesson.
	RecentByLesson(ctx context.Context, userID shared.UserID, lessonID shared.LessonID, limit int) ([]Observation, int, error)

	// SuccessTimes returns the durations of all successful attempts on the
	// (user, level) pair.
	SuccessTimes(ctx context.Context, userID shared.UserID, levelID shared.LevelID) ([]int, error)
}

// CompletionRepository persists first-success rows.
type CompletionRepository interface {
	// Upsert records the first success; replays are no-ops and report
	// inserted=false.
	Upsert(ctx context.Context, c *Completion) (inserted bool, err error)

	// CountByUser returns how many levels the user has completed.
	CountByUser(ctx context.Context, userID shared.UserID) (int, error)
}
