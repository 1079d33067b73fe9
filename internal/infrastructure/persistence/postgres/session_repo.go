package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codearena/arena-server/internal/domain/session"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository implements session.Repository for PostgreSQL.
type SessionRepository struct {
	db Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	return &SessionRepository{db: tx}
}

// Insert stores a freshly opened session.
func (r *SessionRepository) Insert(ctx context.Context, s *session.UserSession) error {
	query := `
		INSERT INTO user_sessions (
			id, user_id, session_start, session_end, last_seen_at,
			puzzles_attempted, puzzles_completed
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.UserID.String(),
		s.SessionStart,
		s.SessionEnd,
		s.LastSeenAt,
		s.PuzzlesAttempted,
		s.PuzzlesCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// ActiveByUser returns the user's newest open session.
func (r *SessionRepository) ActiveByUser(ctx context.Context, userID shared.UserID) (*session.UserSession, error) {
	query := `
		SELECT id, user_id, session_start, session_end, last_seen_at,
			   puzzles_attempted, puzzles_completed
		FROM user_sessions
		WHERE user_id = $1 AND session_end IS NULL
		ORDER BY session_start DESC
		LIMIT 1
	`

	var s session.UserSession
	err := r.db.QueryRow(ctx, query, userID.String()).Scan(
		&s.ID,
		&s.UserID,
		&s.SessionStart,
		&s.SessionEnd,
		&s.LastSeenAt,
		&s.PuzzlesAttempted,
		&s.PuzzlesCompleted,
	)
	if IsNoRows(err) {
		return nil, shared.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return &s, nil
}

// Heartbeat refreshes last-seen on the user's open session.
func (r *SessionRepository) Heartbeat(ctx context.Context, userID shared.UserID, now time.Time) error {
	result, err := r.db.Exec(ctx,
		"UPDATE user_sessions SET last_seen_at = $1 WHERE user_id = $2 AND session_end IS NULL",
		now.UTC(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to heartbeat session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNoOpenSession
	}
	return nil
}

// Close ends the user's open session.
func (r *SessionRepository) Close(ctx context.Context, userID shared.UserID, now time.Time) error {
	result, err := r.db.Exec(ctx,
		"UPDATE user_sessions SET session_end = $1, last_seen_at = $1 WHERE user_id = $2 AND session_end IS NULL",
		now.UTC(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNoOpenSession
	}
	return nil
}

// IncrementCounters bumps the attempt counters on the open session.
func (r *SessionRepository) IncrementCounters(ctx context.Context, userID shared.UserID, success bool) error {
	completed := 0
	if success {
		completed = 1
	}

	_, err := r.db.Exec(ctx, `
		UPDATE user_sessions SET
			puzzles_attempted = puzzles_attempted + 1,
			puzzles_completed = puzzles_completed + $1,
			last_seen_at = $2
		WHERE user_id = $3 AND session_end IS NULL
	`, completed, time.Now().UTC(), userID.String())
	if err != nil {
		return fmt.Errorf("failed to increment session counters: %w", err)
	}
	return nil
}

// OnlineUsers filters the given IDs down to those with an open session seen
// since the cutoff.
func (r *SessionRepository) OnlineUsers(ctx context.Context, userIDs []shared.UserID, cutoff time.Time) (map[shared.UserID]bool, error) {
	online := make(map[shared.UserID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT DISTINCT user_id
		FROM user_sessions
		WHERE user_id = ANY($1) AND session_end IS NULL AND last_seen_at >= $2
	`

	rows, err := r.db.Query(ctx, query, ids, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query online users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan online user: %w", err)
		}
		online[shared.UserID(id)] = true
	}
	return online, rows.Err()
}

// CloseStale ends open sessions unseen since the cutoff.
func (r *SessionRepository) CloseStale(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.Exec(ctx,
		"UPDATE user_sessions SET session_end = last_seen_at WHERE session_end IS NULL AND last_seen_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close stale sessions: %w", err)
	}
	return int(result.RowsAffected()), nil
}
