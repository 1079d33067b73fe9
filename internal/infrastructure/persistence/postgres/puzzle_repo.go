package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository implements puzzle.LevelRepository for PostgreSQL.
type LevelRepository struct {
	db Querier
}

// NewLevelRepository creates a new LevelRepository.
func NewLevelRepository(conn *Connection) *LevelRepository {
	return &LevelRepository{db: conn}
}

const levelColumns = `id, lesson_id, level_number, difficulty, beta, points,
	   title, initial_code, expected_output, hint, created_at`

// GetByID returns a level by ID.
func (r *LevelRepository) GetByID(ctx context.Context, id shared.LevelID) (*puzzle.Level, error) {
	query := `SELECT ` + levelColumns + ` FROM levels WHERE id = $1`
	return r.scanLevel(r.db.QueryRow(ctx, query, id.String()))
}

// FindVariant returns the level with the exact (lesson, number, difficulty) triple.
func (r *LevelRepository) FindVariant(ctx context.Context, lessonID shared.LessonID, levelNumber int, difficulty shared.Difficulty) (*puzzle.Level, error) {
	query := `
		SELECT ` + levelColumns + `
		FROM levels
		WHERE lesson_id = $1 AND level_number = $2 AND difficulty = $3
	`
	return r.scanLevel(r.db.QueryRow(ctx, query, lessonID.String(), levelNumber, difficulty.String()))
}

// PickRandom draws a battle problem of the given difficulty.
func (r *LevelRepository) PickRandom(ctx context.Context, difficulty shared.Difficulty) (*puzzle.Level, error) {
	query := `SELECT ` + levelColumns + ` FROM levels WHERE difficulty = $1 ORDER BY random() LIMIT 1`
	return r.scanLevel(r.db.QueryRow(ctx, query, difficulty.String()))
}

// GetLesson returns a lesson by ID.
func (r *LevelRepository) GetLesson(ctx context.Context, id shared.LessonID) (*puzzle.Lesson, error) {
	query := `
		SELECT id, course_id, title, band, position
		FROM lessons
		WHERE id = $1
	`

	var l puzzle.Lesson
	var band string
	err := r.db.QueryRow(ctx, query, id.String()).Scan(
		&l.ID,
		&l.CourseID,
		&l.Title,
		&band,
		&l.Position,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	l.Band = shared.LessonBand(band)
	return &l, nil
}

func (r *LevelRepository) scanLevel(row pgx.Row) (*puzzle.Level, error) {
	var l puzzle.Level
	var difficulty string
	var beta float64

	err := row.Scan(
		&l.ID,
		&l.LessonID,
		&l.LevelNumber,
		&difficulty,
		&beta,
		&l.Points,
		&l.Title,
		&l.InitialCode,
		&l.ExpectedOutput,
		&l.Hint,
		&l.CreatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrLevelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan level: %w", err)
	}

	l.Difficulty = shared.Difficulty(difficulty)
	l.Beta = shared.Beta(beta)
	return &l, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements puzzle.ProgressRepository for PostgreSQL.
type ProgressRepository struct {
	db Querier
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *ProgressRepository) WithTx(tx pgx.Tx) *ProgressRepository {
	return &ProgressRepository{db: tx}
}

const progressColumns = `user_id, level_id, theta, prev_theta, beta, prev_beta,
	   success_count, fail_count, total_attempts,
	   COALESCE(best_completion_time, 0), COALESCE(average_completion_time, 0),
	   created_at, updated_at`

// Get returns the progress row for a (user, level) pair.
func (r *ProgressRepository) Get(ctx context.Context, userID shared.UserID, levelID shared.LevelID) (*puzzle.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM student_progress WHERE user_id = $1 AND level_id = $2`
	return r.scanProgress(r.db.QueryRow(ctx, query, userID.String(), levelID.String()))
}

// GetForUpdate loads the row under a FOR UPDATE lock, inserting a default row
// first when none exists. Must run inside a transaction.
func (r *ProgressRepository) GetForUpdate(ctx context.Context, userID shared.UserID, levelID shared.LevelID) (*puzzle.Progress, error) {
	insert := `
		INSERT INTO student_progress (user_id, level_id, theta, prev_theta, beta, prev_beta)
		VALUES ($1, $2, $3, $3, $4, $4)
		ON CONFLICT (user_id, level_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, insert,
		userID.String(),
		levelID.String(),
		shared.DefaultTheta.Float64(),
		shared.DefaultBeta.Float64(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to seed progress row: %w", err)
	}

	query := `SELECT ` + progressColumns + ` FROM student_progress WHERE user_id = $1 AND level_id = $2 FOR UPDATE`
	return r.scanProgress(r.db.QueryRow(ctx, query, userID.String(), levelID.String()))
}

// Save upserts the full progress row.
func (r *ProgressRepository) Save(ctx context.Context, p *puzzle.Progress) error {
	query := `
		INSERT INTO student_progress (
			user_id, level_id, theta, prev_theta, beta, prev_beta,
			success_count, fail_count, total_attempts,
			best_completion_time, average_completion_time, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, level_id) DO UPDATE SET
			theta = EXCLUDED.theta,
			prev_theta = EXCLUDED.prev_theta,
			beta = EXCLUDED.beta,
			prev_beta = EXCLUDED.prev_beta,
			success_count = EXCLUDED.success_count,
			fail_count = EXCLUDED.fail_count,
			total_attempts = EXCLUDED.total_attempts,
			best_completion_time = EXCLUDED.best_completion_time,
			average_completion_time = EXCLUDED.average_completion_time,
			updated_at = EXCLUDED.updated_at
	`

	var bestTime *int
	if p.BestCompletionTime > 0 {
		bestTime = &p.BestCompletionTime
	}

	_, err := r.db.Exec(ctx, query,
		p.UserID.String(),
		p.LevelID.String(),
		p.Theta.Float64(),
		p.PrevTheta.Float64(),
		p.Beta.Float64(),
		p.PrevBeta.Float64(),
		p.SuccessCount,
		p.FailCount,
		p.TotalAttempts,
		bestTime,
		p.AverageCompletionTime,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// AverageSkill aggregates the user's ability estimate across every progress
// row, for matchmaking clustering. A user with no rows gets the defaults.
func (r *ProgressRepository) AverageSkill(ctx context.Context, userID shared.UserID) (shared.Theta, shared.Beta, error) {
	var theta, beta float64
	err := r.db.QueryRow(ctx,
		"SELECT COALESCE(AVG(theta), $2), COALESCE(AVG(beta), $3) FROM student_progress WHERE user_id = $1",
		userID.String(), shared.DefaultTheta.Float64(), shared.DefaultBeta.Float64(),
	).Scan(&theta, &beta)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate skill: %w", err)
	}
	return shared.Theta(theta).Clamp(), shared.Beta(beta).Clamp(), nil
}

// GetPreferredDifficulty returns the lesson-scoped preferred difficulty.
func (r *ProgressRepository) GetPreferredDifficulty(ctx context.Context, userID shared.UserID, lessonID shared.LessonID) (shared.Difficulty, error) {
	var difficulty string
	err := r.db.QueryRow(ctx,
		"SELECT preferred_difficulty FROM lesson_preferences WHERE user_id = $1 AND lesson_id = $2",
		userID.String(), lessonID.String(),
	).Scan(&difficulty)
	if IsNoRows(err) {
		return "", shared.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get preferred difficulty: %w", err)
	}
	return shared.Difficulty(difficulty), nil
}

// SetPreferredDifficulty upserts the lesson-scoped preferred difficulty.
func (r *ProgressRepository) SetPreferredDifficulty(ctx context.Context, userID shared.UserID, lessonID shared.LessonID, d shared.Difficulty) error {
	query := `
		INSERT INTO lesson_preferences (user_id, lesson_id, preferred_difficulty, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			preferred_difficulty = EXCLUDED.preferred_difficulty,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, userID.String(), lessonID.String(), d.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set preferred difficulty: %w", err)
	}
	return nil
}

func (r *ProgressRepository) scanProgress(row pgx.Row) (*puzzle.Progress, error) {
	var p puzzle.Progress
	var theta, prevTheta, beta, prevBeta float64

	err := row.Scan(
		&p.UserID,
		&p.LevelID,
		&theta,
		&prevTheta,
		&beta,
		&prevBeta,
		&p.SuccessCount,
		&p.FailCount,
		&p.TotalAttempts,
		&p.BestCompletionTime,
		&p.AverageCompletionTime,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan progress: %w", err)
	}

	p.Theta = shared.Theta(theta)
	p.PrevTheta = shared.Theta(prevTheta)
	p.Beta = shared.Beta(beta)
	p.PrevBeta = shared.Beta(prevBeta)
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttemptRepository implements puzzle.AttemptRepository for PostgreSQL.
type AttemptRepository struct {
	db Querier
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(conn *Connection) *AttemptRepository {
	return &AttemptRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *AttemptRepository) WithTx(tx pgx.Tx) *AttemptRepository {
	return &AttemptRepository{db: tx}
}

// Insert appends one attempt row.
func (r *AttemptRepository) Insert(ctx context.Context, a *puzzle.Attempt) error {
	query := `
		INSERT INTO puzzle_attempts (
			id, user_id, level_id, lesson_id, success, attempt_time,
			theta_at_attempt, beta_at_attempt, difficulty, attempt_id,
			code_submitted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var lessonID *string
	if !a.LessonID.IsEmpty() {
		s := a.LessonID.String()
		lessonID = &s
	}
	var idempotencyKey *string
	if a.IdempotencyKey != "" {
		idempotencyKey = &a.IdempotencyKey
	}

	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.UserID.String(),
		a.LevelID.String(),
		lessonID,
		a.Success,
		a.AttemptTime,
		a.ThetaAtAttempt.Float64(),
		a.BetaAtAttempt.Float64(),
		a.Difficulty.String(),
		idempotencyKey,
		a.CodeSubmitted,
		a.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateAttempt
		}
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// ExistsByIdempotencyKey reports whether the user already stored an attempt
// under the client-provided attempt ID.
func (r *AttemptRepository) ExistsByIdempotencyKey(ctx context.Context, userID shared.UserID, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM puzzle_attempts WHERE attempt_id = $1 AND user_id = $2)",
		key, userID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check attempt idempotency: %w", err)
	}
	return exists, nil
}

// RecentByLesson returns up to limit observations for the (user, lesson) pair,
// newest first, plus the total attempt count in the lesson.
func (r *AttemptRepository) RecentByLesson(ctx context.Context, userID shared.UserID, lessonID shared.LessonID, limit int) ([]puzzle.Observation, int, error) {
	query := `
		SELECT a.level_id, l.level_number, a.success, a.difficulty, a.attempt_time, a.created_at
		FROM puzzle_attempts a
		JOIN levels l ON l.id = a.level_id
		WHERE a.user_id = $1 AND a.lesson_id = $2
		ORDER BY a.created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, userID.String(), lessonID.String(), limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query recent attempts: %w", err)
	}
	defer rows.Close()

	var observations []puzzle.Observation
	for rows.Next() {
		var obs puzzle.Observation
		var difficulty string
		if err := rows.Scan(&obs.LevelID, &obs.LevelNumber, &obs.Success, &difficulty, &obs.AttemptTime, &obs.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs.Difficulty = shared.Difficulty(difficulty)
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	var total int
	err = r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM puzzle_attempts WHERE user_id = $1 AND lesson_id = $2",
		userID.String(), lessonID.String(),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	return observations, total, nil
}

// SuccessTimes returns the durations of all successful attempts on the
// (user, level) pair.
func (r *AttemptRepository) SuccessTimes(ctx context.Context, userID shared.UserID, levelID shared.LevelID) ([]int, error) {
	query := `
		SELECT attempt_time
		FROM puzzle_attempts
		WHERE user_id = $1 AND level_id = $2 AND success
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID.String(), levelID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query success times: %w", err)
	}
	defer rows.Close()

	var times []int
	for rows.Next() {
		var t int
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan success time: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CompletionRepository implements puzzle.CompletionRepository for PostgreSQL.
type CompletionRepository struct {
	db Querier
}

// NewCompletionRepository creates a new CompletionRepository.
func NewCompletionRepository(conn *Connection) *CompletionRepository {
	return &CompletionRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *CompletionRepository) WithTx(tx pgx.Tx) *CompletionRepository {
	return &CompletionRepository{db: tx}
}

// Upsert records the first success on a (user, level) pair. Replays are
// no-ops and report inserted=false.
func (r *CompletionRepository) Upsert(ctx context.Context, c *puzzle.Completion) (bool, error) {
	query := `
		INSERT INTO lesson_level_completions (user_id, level_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, level_id) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query, c.UserID.String(), c.LevelID.String(), c.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert completion: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// CountByUser returns how many levels the user has completed.
func (r *CompletionRepository) CountByUser(ctx context.Context, userID shared.UserID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM lesson_level_completions WHERE user_id = $1",
		userID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return count, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY STORE
// ══════════════════════════════════════════════════════════════════════════════

// SummaryStore implements puzzle.SummarySource from the attempt log. The
// read-through cache sits on top of it.
type SummaryStore struct {
	attempts *AttemptRepository
}

// NewSummaryStore creates a new SummaryStore.
func NewSummaryStore(attempts *AttemptRepository) *SummaryStore {
	return &SummaryStore{attempts: attempts}
}

// GetLessonSummary builds the rolling performance window for a (user, lesson)
// pair from the newest attempts.
func (s *SummaryStore) GetLessonSummary(ctx context.Context, userID shared.UserID, lessonID shared.LessonID) (*puzzle.LessonSummary, error) {
	observations, total, err := s.attempts.RecentByLesson(ctx, userID, lessonID, puzzle.SummaryWindow)
	if err != nil {
		return nil, err
	}
	return puzzle.NewLessonSummary(userID, lessonID, observations, total), nil
}
