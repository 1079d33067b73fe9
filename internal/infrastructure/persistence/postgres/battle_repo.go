package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// MatchRepository implements battle.MatchRepository for PostgreSQL.
type MatchRepository struct {
	db Querier
}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository(conn *Connection) *MatchRepository {
	return &MatchRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *MatchRepository) WithTx(tx pgx.Tx) *MatchRepository {
	return &MatchRepository{db: tx}
}

const matchColumns = `id, status, match_type, language, level_id, cluster_id,
	   match_score, wager, created_at, started_at, completed_at, duration_seconds`

// Insert stores a new match.
func (r *MatchRepository) Insert(ctx context.Context, m *battle.Match) error {
	query := `
		INSERT INTO multiplayer_matches (
			id, status, match_type, language, level_id, cluster_id,
			match_score, wager, created_at, started_at, completed_at, duration_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		m.ID.String(),
		string(m.Status),
		string(m.MatchType),
		m.Language,
		levelIDOrNil(m.LevelID),
		m.ClusterID,
		m.MatchScore,
		m.Wager,
		m.CreatedAt,
		m.StartedAt,
		m.CompletedAt,
		m.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

// Get returns a match by ID.
func (r *MatchRepository) Get(ctx context.Context, id shared.MatchID) (*battle.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM multiplayer_matches WHERE id = $1`
	return r.scanMatch(r.db.QueryRow(ctx, query, id.String()))
}

// GetForUpdate loads the match under a FOR UPDATE lock.
func (r *MatchRepository) GetForUpdate(ctx context.Context, id shared.MatchID) (*battle.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM multiplayer_matches WHERE id = $1 FOR UPDATE`
	return r.scanMatch(r.db.QueryRow(ctx, query, id.String()))
}

// Save writes the mutable match fields.
func (r *MatchRepository) Save(ctx context.Context, m *battle.Match) error {
	query := `
		UPDATE multiplayer_matches SET
			status = $1,
			level_id = $2,
			started_at = $3,
			completed_at = $4,
			duration_seconds = $5
		WHERE id = $6
	`

	result, err := r.db.Exec(ctx, query,
		string(m.Status),
		levelIDOrNil(m.LevelID),
		m.StartedAt,
		m.CompletedAt,
		m.DurationSeconds,
		m.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrMatchNotFound
	}
	return nil
}

// ActiveByUser lists active matches the user participates in.
func (r *MatchRepository) ActiveByUser(ctx context.Context, userID shared.UserID) ([]*battle.Match, error) {
	return r.byUserAndStatus(ctx, userID, battle.StatusActive)
}

// PendingByUser lists pending matches the user participates in.
func (r *MatchRepository) PendingByUser(ctx context.Context, userID shared.UserID) ([]*battle.Match, error) {
	return r.byUserAndStatus(ctx, userID, battle.StatusPending)
}

func (r *MatchRepository) byUserAndStatus(ctx context.Context, userID shared.UserID, status battle.MatchStatus) ([]*battle.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM multiplayer_matches m
		JOIN match_participants p ON p.match_id = m.id
		WHERE p.user_id = $1 AND m.status = $2
		ORDER BY m.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID.String(), string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query matches by user: %w", err)
	}
	defer rows.Close()

	return r.scanMatches(rows)
}

// CancelPendingForUsers cancels every other pending match involving any of
// the users, keeping the one just formed. Returns cancelled match IDs.
func (r *MatchRepository) CancelPendingForUsers(ctx context.Context, userIDs []shared.UserID, keep shared.MatchID) ([]shared.MatchID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}

	query := `
		UPDATE multiplayer_matches SET
			status = 'cancelled',
			completed_at = $1
		WHERE status = 'pending'
		  AND id <> $2
		  AND id IN (SELECT match_id FROM match_participants WHERE user_id = ANY($3))
		RETURNING id
	`

	rows, err := r.db.Query(ctx, query, time.Now().UTC(), keep.String(), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending matches: %w", err)
	}
	defer rows.Close()

	var cancelled []shared.MatchID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cancelled match id: %w", err)
		}
		cancelled = append(cancelled, shared.MatchID(id))
	}
	return cancelled, rows.Err()
}

// StalePending lists pending matches created before the cutoff.
func (r *MatchRepository) StalePending(ctx context.Context, cutoff time.Time) ([]*battle.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM multiplayer_matches
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale pending matches: %w", err)
	}
	defer rows.Close()

	return r.scanMatches(rows)
}

// PendingQueueWaiters lists pending ranked matches usable as matchmaking
/// waiters: pending, younger than maxAge, below minSize enrolled participants.
func (r *MatchRepository) PendingQueueWaiters(ctx context.Context, maxAge time.Duration, minSize int) ([]*battle.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM multiplayer_matches m
		WHERE m.status = 'pending'
		  AND m.match_type = 'ranked'
		  AND m.created_at > $1
		  AND (SELECT COUNT(*) FROM match_participants p WHERE p.match_id = m.id) < $2
		ORDER BY m.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, time.Now().UTC().Add(-maxAge), minSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending queue waiters: %w", err)
	}
	defer rows.Close()

	return r.scanMatches(rows)
}

func (r *MatchRepository) scanMatch(row pgx.Row) (*battle.Match, error) {
	var m battle.Match
	var status, matchType string
	var levelID *string

	err := row.Scan(
		&m.ID,
		&status,
		&matchType,
		&m.Language,
		&levelID,
		&m.ClusterID,
		&m.MatchScore,
		&m.Wager,
		&m.CreatedAt,
		&m.StartedAt,
		&m.CompletedAt,
		&m.DurationSeconds,
	)
	if IsNoRows(err) {
		return nil, shared.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}

	m.Status = battle.MatchStatus(status)
	m.MatchType = battle.MatchType(matchType)
	if levelID != nil {
		m.LevelID = shared.LevelID(*levelID)
	}
	return &m, nil
}

func (r *MatchRepository) scanMatches(rows pgx.Rows) ([]*battle.Match, error) {
	var matches []*battle.Match
	for rows.Next() {
		var m battle.Match
		var status, matchType string
		var levelID *string

		err := rows.Scan(
			&m.ID,
			&status,
			&matchType,
			&m.Language,
			&levelID,
			&m.ClusterID,
			&m.MatchScore,
			&m.Wager,
			&m.CreatedAt,
			&m.StartedAt,
			&m.CompletedAt,
			&m.DurationSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}

		m.Status = battle.MatchStatus(status)
		m.MatchType = battle.MatchType(matchType)
		if levelID != nil {
			m.LevelID = shared.LevelID(*levelID)
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

func levelIDOrNil(id shared.LevelID) *string {
	if id.IsEmpty() {
		return nil
	}
	s := id.String()
	return &s
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository implements battle.ParticipantRepository for PostgreSQL.
type ParticipantRepository struct {
	db Querier
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(conn *Connection) *ParticipantRepository {
	return &ParticipantRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *ParticipantRepository) WithTx(tx pgx.Tx) *ParticipantRepository {
	return &ParticipantRepository{db: tx}
}

const participantColumns = `match_id, user_id, is_winner, completed_code, code_snapshot,
	   exp_gained, exp_lost, completion_time, rank_at_join, theta_at_join,
	   beta_at_join, success_count, fail_count, joined_at`

// Insert enrolls a participant.
func (r *ParticipantRepository) Insert(ctx context.Context, p *battle.Participant) error {
	query := `
		INSERT INTO match_participants (
			match_id, user_id, is_winner, completed_code, code_snapshot,
			exp_gained, exp_lost, completion_time, rank_at_join, theta_at_join,
			beta_at_join, success_count, fail_count, joined_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.Exec(ctx, query,
		p.MatchID.String(),
		p.UserID.String(),
		p.IsWinner,
		p.CompletedCode,
		p.CodeSnapshot,
		p.ExpGained,
		p.ExpLost,
		p.CompletionTime,
		p.RankAtJoin,
		p.ThetaAtJoin.Float64(),
		p.BetaAtJoin.Float64(),
		p.SuccessCount,
		p.FailCount,
		p.JoinedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

// Get returns one participant row.
func (r *ParticipantRepository) Get(ctx context.Context, matchID shared.MatchID, userID shared.UserID) (*battle.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM match_participants WHERE match_id = $1 AND user_id = $2`
	return r.scanParticipant(r.db.QueryRow(ctx, query, matchID.String(), userID.String()))
}

// ListByMatch returns all participants of a match in join order.
func (r *ParticipantRepository) ListByMatch(ctx context.Context, matchID shared.MatchID) ([]*battle.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM match_participants
		WHERE match_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.db.Query(ctx, query, matchID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []*battle.Participant
	for rows.Next() {
		var p battle.Participant
		var theta, beta float64

		err := rows.Scan(
			&p.MatchID,
			&p.UserID,
			&p.IsWinner,
			&p.CompletedCode,
			&p.CodeSnapshot,
			&p.ExpGained,
			&p.ExpLost,
			&p.CompletionTime,
			&p.RankAtJoin,
			&theta,
			&beta,
			&p.SuccessCount,
			&p.FailCount,
			&p.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}

		p.ThetaAtJoin = shared.Theta(theta)
		p.BetaAtJoin = shared.Beta(beta)
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

// Save writes the mutable participant fields.
func (r *ParticipantRepository) Save(ctx context.Context, p *battle.Participant) error {
	query := `
		UPDATE match_participants SET
			is_winner = $1,
			completed_code = $2,
			code_snapshot = $3,
			exp_gained = $4,
			exp_lost = $5,
			completion_time = $6,
			success_count = $7,
			fail_count = $8
		WHERE match_id = $9 AND user_id = $10
	`

	result, err := r.db.Exec(ctx, query,
		p.IsWinner,
		p.CompletedCode,
		p.CodeSnapshot,
		p.ExpGained,
		p.ExpLost,
		p.CompletionTime,
		p.SuccessCount,
		p.FailCount,
		p.MatchID.String(),
		p.UserID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotParticipant
	}
	return nil
}

// WinCountByUser returns how many matches the user has won.
func (r *ParticipantRepository) WinCountByUser(ctx context.Context, userID shared.UserID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM match_participants WHERE user_id = $1 AND is_winner",
		userID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count wins: %w", err)
	}
	return count, nil
}

func (r *ParticipantRepository) scanParticipant(row pgx.Row) (*battle.Participant, error) {
	var p battle.Participant
	var theta, beta float64

	err := row.Scan(
		&p.MatchID,
		&p.UserID,
		&p.IsWinner,
		&p.CompletedCode,
		&p.CodeSnapshot,
		&p.ExpGained,
		&p.ExpLost,
		&p.CompletionTime,
		&p.RankAtJoin,
		&theta,
		&beta,
		&p.SuccessCount,
		&p.FailCount,
		&p.JoinedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotParticipant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}

	p.ThetaAtJoin = shared.Theta(theta)
	p.BetaAtJoin = shared.Beta(beta)
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeRepository implements battle.ChallengeRepository for PostgreSQL.
type ChallengeRepository struct {
	db Querier
}

// NewChallengeRepository creates a new ChallengeRepository.
func NewChallengeRepository(conn *Connection) *ChallengeRepository {
	return &ChallengeRepository{db: conn}
}

// WithTx returns a copy bound to the given transaction.
func (r *ChallengeRepository) WithTx(tx pgx.Tx) *ChallengeRepository {
	return &ChallengeRepository{db: tx}
}

const challengeColumns = `id, challenger_id, opponent_id, language, exp_wager,
	   status, match_id, created_at, responded_at`

// Insert stores a new invite.
func (r *ChallengeRepository) Insert(ctx context.Context, c *battle.Challenge) error {
	query := `
		INSERT INTO battle_challenges (
			id, challenger_id, opponent_id, language, exp_wager,
			status, match_id, created_at, responded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var matchID *string
	if !c.MatchID.IsEmpty() {
		s := c.MatchID.String()
		matchID = &s
	}

	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.ChallengerID.String(),
		c.OpponentID.String(),
		c.Language,
		c.ExpWager,
		string(c.Status),
		matchID,
		c.CreatedAt,
		c.RespondedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert challenge: %w", err)
	}
	return nil
}

// Get returns an invite by ID.
func (r *ChallengeRepository) Get(ctx context.Context, id string) (*battle.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM battle_challenges WHERE id = $1`
	return r.scanChallenge(r.db.QueryRow(ctx, query, id))
}

// GetForUpdate loads the invite under a FOR UPDATE lock.
func (r *ChallengeRepository) GetForUpdate(ctx context.Context, id string) (*battle.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM battle_challenges WHERE id = $1 FOR UPDATE`
	return r.scanChallenge(r.db.QueryRow(ctx, query, id))
}

// Save writes the mutable invite fields.
func (r *ChallengeRepository) Save(ctx context.Context, c *battle.Challenge) error {
	query := `
		UPDATE battle_challenges SET
			status = $1,
			match_id = $2,
			responded_at = $3
		WHERE id = $4
	`

	var matchID *string
	if !c.MatchID.IsEmpty() {
		s := c.MatchID.String()
		matchID = &s
	}

	result, err := r.db.Exec(ctx, query, string(c.Status), matchID, c.RespondedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrChallengeNotFound
	}
	return nil
}

// PendingForOpponent lists unanswered invites addressed to the user.
func (r *ChallengeRepository) PendingForOpponent(ctx context.Context, userID shared.UserID) ([]*battle.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM battle_challenges
		WHERE opponent_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*battle.Challenge
	for rows.Next() {
		var c battle.Challenge
		var status string
		var matchID *string

		err := rows.Scan(
			&c.ID,
			&c.ChallengerID,
			&c.OpponentID,
			&c.Language,
			&c.ExpWager,
			&status,
			&matchID,
			&c.CreatedAt,
			&c.RespondedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}

		c.Status = battle.ChallengeStatus(status)
		if matchID != nil {
			c.MatchID = shared.MatchID(*matchID)
		}
		challenges = append(challenges, &c)
	}
	return challenges, rows.Err()
}

func (r *ChallengeRepository) scanChallenge(row pgx.Row) (*battle.Challenge, error) {
	var c battle.Challenge
	var status string
	var matchID *string

	err := row.Scan(
		&c.ID,
		&c.ChallengerID,
		&c.OpponentID,
		&c.Language,
		&c.ExpWager,
		&status,
		&matchID,
		&c.CreatedAt,
		&c.RespondedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan challenge: %w", err)
	}

	c.Status = battle.ChallengeStatus(status)
	if matchID != nil {
		c.MatchID = shared.MatchID(*matchID)
	}
	return &c, nil
}
