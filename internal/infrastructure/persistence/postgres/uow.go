package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/codearena/arena-server/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork implements command.UnitOfWork over one pooled connection: a
// single transaction per Run, repositories bound to it, savepoints for the
// optional side effects.
type UnitOfWork struct {
	conn         *Connection
	levels       *LevelRepository
	progress     *ProgressRepository
	attempts     *AttemptRepository
	completions  *CompletionRepository
	stats        *StatsRepository
	achievements *AchievementRepository
	audit        *AuditRepository
	sessions     *SessionRepository
	matches      *MatchRepository
	participants *ParticipantRepository
	challenges   *ChallengeRepository
}

// NewUnitOfWork creates a UnitOfWork over the connection.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{
		conn:         conn,
		levels:       NewLevelRepository(conn),
		progress:     NewProgressRepository(conn),
		attempts:     NewAttemptRepository(conn),
		completions:  NewCompletionRepository(conn),
		stats:        NewStatsRepository(conn),
		achievements: NewAchievementRepository(conn),
		audit:        NewAuditRepository(conn),
		sessions:     NewSessionRepository(conn),
		matches:      NewMatchRepository(conn),
		participants: NewParticipantRepository(conn),
		challenges:   NewChallengeRepository(conn),
	}
}

// Run opens one read-committed transaction and passes tx-bound repositories
// to fn. fn returning nil commits; anything else rolls back.
func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, r command.Repos) error) error {
	return u.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, u.bind(tx))
	})
}

func (u *UnitOfWork) bind(tx pgx.Tx) command.Repos {
	return command.Repos{
		Levels:       u.levels,
		Progress:     u.progress.WithTx(tx),
		Attempts:     u.attempts.WithTx(tx),
		Completions:  u.completions.WithTx(tx),
		Stats:        u.stats.WithTx(tx),
		Achievements: u.achievements.WithTx(tx),
		Audit:        u.audit.WithTx(tx),
		Sessions:     u.sessions.WithTx(tx),
		Matches:      u.matches.WithTx(tx),
		Participants: u.participants.WithTx(tx),
		Challenges:   u.challenges.WithTx(tx),
		Optional: func(ctx context.Context, name string, inner func(context.Context) error) error {
			return WithSavepoint(ctx, tx, name, func(pgx.Tx) error {
				return inner(ctx)
			})
		},
	}
}
