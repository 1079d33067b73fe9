package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StatsRepository implements progression.StatsRepository for PostgreSQL.
type StatsRepository struct {
	db Querier
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(conn *Connection) *StatsRepository {
	return &StatsRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *StatsRepository) WithTx(tx pgx.Tx) *StatsRepository {
	return &StatsRepository{db: tx}
}

const statsColumns = `user_id, exp, normalized_exp, rank_name, rank_index,
	   current_streak, longest_streak, total_success_count, total_fail_count,
	   completed_achievements, created_at, updated_at`

// Get returns the ledger row for a user.
func (r *StatsRepository) Get(ctx context.Context, userID shared.UserID) (*progression.Statistics, error) {
	query := `SELECT ` + statsColumns + ` FROM student_statistics WHERE user_id = $1`
	return r.scanStats(r.db.QueryRow(ctx, query, userID.String()))
}

// GetForUpdate loads the ledger row under a row lock.
func (r *StatsRepository) GetForUpdate(ctx context.Context, userID shared.UserID) (*progression.Statistics, error) {
	query := `SELECT ` + statsColumns + ` FROM student_statistics WHERE user_id = $1 FOR UPDATE`
	return r.scanStats(r.db.QueryRow(ctx, query, userID.String()))
}

// GetOrCreateForUpdate loads the row under a row lock, inserting a zeroed
// ledger first if the user has none yet.
func (r *StatsRepository) GetOrCreateForUpdate(ctx context.Context, userID shared.UserID) (*progression.Statistics, error) {
	fresh := progression.NewStatistics(userID)
	insert := `
		INSERT INTO student_statistics (user_id, exp, normalized_exp, rank_name, rank_index)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, insert,
		userID.String(),
		fresh.Exp,
		fresh.NormalizedExp,
		fresh.RankName,
		fresh.RankIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to seed statistics row: %w", err)
	}

	return r.GetForUpdate(ctx, userID)
}

// Save writes the full ledger row back.
func (r *StatsRepository) Save(ctx context.Context, stats *progression.Statistics) error {
	query := `
		UPDATE student_statistics SET
			exp = $1,
			normalized_exp = $2,
			rank_name = $3,
			rank_index = $4,
			current_streak = $5,
			longest_streak = $6,
			total_success_count = $7,
			total_fail_count = $8,
			completed_achievements = $9,
			updated_at = $10
		WHERE user_id = $11
	`

	result, err := r.db.Exec(ctx, query,
		stats.Exp,
		stats.NormalizedExp,
		stats.RankName,
		stats.RankIndex,
		stats.CurrentStreak,
		stats.LongestStreak,
		stats.TotalSuccessCount,
		stats.TotalFailCount,
		stats.CompletedAchievements,
		time.Now().UTC(),
		stats.UserID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save statistics: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrStatsNotFound
	}
	return nil
}

func (r *StatsRepository) scanStats(row pgx.Row) (*progression.Statistics, error) {
	var s progression.Statistics

	err := row.Scan(
		&s.UserID,
		&s.Exp,
		&s.NormalizedExp,
		&s.RankName,
		&s.RankIndex,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.TotalSuccessCount,
		&s.TotalFailCount,
		&s.CompletedAchievements,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrStatsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan statistics: %w", err)
	}
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements progression.AchievementRepository for
// PostgreSQL.
type AchievementRepository struct {
	db Querier
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *AchievementRepository) WithTx(tx pgx.Tx) *AchievementRepository {
	return &AchievementRepository{db: tx}
}

// OwnedTypes returns the set of achievement types the user has unlocked.
func (r *AchievementRepository) OwnedTypes(ctx context.Context, userID shared.UserID) (map[progression.AchievementType]bool, error) {
	rows, err := r.db.Query(ctx,
		"SELECT achievement_type FROM achievements WHERE user_id = $1",
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query owned achievements: %w", err)
	}
	defer rows.Close()

	owned := make(map[progression.AchievementType]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan achievement type: %w", err)
		}
		owned[progression.AchievementType(t)] = true
	}
	return owned, rows.Err()
}

// Insert records an unlock. Returns false without error when the (user, type)
// pair already exists.
func (r *AchievementRepository) Insert(ctx context.Context, a *progression.Achievement) (bool, error) {
	query := `
		INSERT INTO achievements (user_id, achievement_type, exp_reward, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_type) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query,
		a.UserID.String(),
		string(a.Type),
		a.ExpReward,
		a.UnlockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert achievement: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListByUser returns all unlocks for a user, newest first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]*progression.Achievement, error) {
	query := `
		SELECT achievement_type, exp_reward, unlocked_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY unlocked_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	titles := make(map[progression.AchievementType]string)
	for _, def := range progression.Catalog() {
		titles[def.Type] = def.Title
	}

	var achievements []*progression.Achievement
	for rows.Next() {
		a := &progression.Achievement{UserID: userID}
		var t string
		if err := rows.Scan(&t, &a.ExpReward, &a.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		a.Type = progression.AchievementType(t)
		a.Title = titles[a.Type]
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}
