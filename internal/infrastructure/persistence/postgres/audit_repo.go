package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codearena/arena-server/internal/domain/adaptive"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AuditRepository implements adaptive.AuditRepository for PostgreSQL. Callers
// run both inserts under savepoints so an audit failure never fails the
// surrounding attempt transaction.
type AuditRepository struct {
	db Querier
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	return &AuditRepository{db: tx}
}

// InsertLog appends an adaptive log row.
func (r *AuditRepository) InsertLog(ctx context.Context, l *adaptive.AdaptiveLog) error {
	query := `
		INSERT INTO adaptive_logs (
			id, user_id, level_id, success, theta_before, theta_after,
			beta_before, beta_after, probability, kernel_source, applied_rule,
			attempt_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	id := l.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := r.db.Exec(ctx, query,
		id,
		l.UserID.String(),
		l.LevelID.String(),
		l.Success,
		l.ThetaBefore.Float64(),
		l.ThetaAfter.Float64(),
		l.BetaBefore.Float64(),
		l.BetaAfter.Float64(),
		l.Probability,
		l.KernelSource,
		l.AppliedRule,
		l.AttemptTime,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert adaptive log: %w", err)
	}
	return nil
}

// InsertDifficultyAudit appends a write-once difficulty audit row.
func (r *AuditRepository) InsertDifficultyAudit(ctx context.Context, a *adaptive.DifficultyAudit) error {
	query := `
		INSERT INTO difficulty_audit (
			id, user_id, level_id, lesson_id, beta_before, beta_after,
			difficulty_from, difficulty_to, applied_rule, evaluations, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}

	evaluations, err := json.Marshal(a.Evaluations)
	if err != nil {
		return fmt.Errorf("failed to marshal audit evaluations: %w", err)
	}

	var lessonID *string
	if !a.LessonID.IsEmpty() {
		s := a.LessonID.String()
		lessonID = &s
	}

	_, err = r.db.Exec(ctx, query,
		id,
		a.UserID.String(),
		a.LevelID.String(),
		lessonID,
		a.BetaBefore.Float64(),
		a.BetaAfter.Float64(),
		a.DifficultyFrom.String(),
		a.DifficultyTo.String(),
		a.AppliedRule,
		evaluations,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert difficulty audit: %w", err)
	}
	return nil
}
