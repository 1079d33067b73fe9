package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codearena/arena-server/internal/domain/leaderboard"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Repository for PostgreSQL.
// Snapshots live in leaderboard_entries; BuildBoard and LiveStanding compute
// against the live ledger tables.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

// ReplaceBoard atomically swaps the full snapshot of one board. Delete and
// reinsert run in one transaction so readers never see a half-built board.
func (r *LeaderboardRepository) ReplaceBoard(ctx context.Context, boardType leaderboard.BoardType, entries []leaderboard.Entry) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM leaderboard_entries WHERE board_type = $1", string(boardType)); err != nil {
			return fmt.Errorf("failed to clear board: %w", err)
		}

		query := `
			INSERT INTO leaderboard_entries (
				board_type, rank_position, user_id, display_name, rank_name,
				exp, score, snapshot_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for _, e := range entries {
			_, err := tx.Exec(ctx, query,
				string(boardType),
				e.Position,
				e.UserID.String(),
				e.DisplayName,
				e.RankName,
				e.Exp,
				e.Score,
				e.SnapshotAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert board entry: %w", err)
			}
		}
		return nil
	})
}

// Top returns the first limit entries of a board, position order.
func (r *LeaderboardRepository) Top(ctx context.Context, boardType leaderboard.BoardType, limit int) ([]leaderboard.Entry, error) {
	query := `
		SELECT board_type, rank_position, user_id, display_name, rank_name,
			   exp, score, snapshot_at
		FROM leaderboard_entries
		WHERE board_type = $1
		ORDER BY rank_position ASC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, string(boardType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query board: %w", err)
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

// PositionOf looks a user up in the snapshot.
func (r *LeaderboardRepository) PositionOf(ctx context.Context, boardType leaderboard.BoardType, userID shared.UserID) (*leaderboard.Entry, error) {
	query := `
		SELECT board_type, rank_position, user_id, display_name, rank_name,
			   exp, score, snapshot_at
		FROM leaderboard_entries
		WHERE board_type = $1 AND user_id = $2
	`

	var e leaderboard.Entry
	var bt string
	err := r.conn.QueryRow(ctx, query, string(boardType), userID.String()).Scan(
		&bt, &e.Position, &e.UserID, &e.DisplayName, &e.RankName, &e.Exp, &e.Score, &e.SnapshotAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board position: %w", err)
	}
	e.BoardType = leaderboard.BoardType(bt)
	return &e, nil
}

// SnapshotAge returns the age of the newest entry and the row count.
func (r *LeaderboardRepository) SnapshotAge(ctx context.Context, boardType leaderboard.BoardType) (time.Duration, int, error) {
	var newest *time.Time
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT MAX(snapshot_at), COUNT(*) FROM leaderboard_entries WHERE board_type = $1",
		string(boardType),
	).Scan(&newest, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get snapshot age: %w", err)
	}
	if count == 0 || newest == nil {
		return 0, 0, nil
	}
	return time.Since(*newest), count, nil
}

// BuildBoard computes a fresh ranking from the live ledger tables.
func (r *LeaderboardRepository) BuildBoard(ctx context.Context, boardType leaderboard.BoardType, limit int) ([]leaderboard.Entry, error) {
	query, err := buildBoardQuery(boardType)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build board: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var entries []leaderboard.Entry
	position := 1
	for rows.Next() {
		e := leaderboard.Entry{
			BoardType:  boardType,
			Position:   position,
			SnapshotAt: now,
		}
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.RankName, &e.Exp, &e.Score); err != nil {
			return nil, fmt.Errorf("failed to scan board row: %w", err)
		}
		entries = append(entries, e)
		position++
	}
	return entries, rows.Err()
}

// LiveStanding computes a user's position with a count query, for users
// beyond the snapshot depth.
func (r *LeaderboardRepository) LiveStanding(ctx context.Context, boardType leaderboard.BoardType, userID shared.UserID) (*leaderboard.Standing, error) {
	scoreQuery, aheadQuery, err := liveStandingQueries(boardType)
	if err != nil {
		return nil, err
	}

	var score int
	err = r.conn.QueryRow(ctx, scoreQuery, userID.String()).Scan(&score)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get live score: %w", err)
	}

	var ahead int
	if err := r.conn.QueryRow(ctx, aheadQuery, score).Scan(&ahead); err != nil {
		return nil, fmt.Errorf("failed to count standing: %w", err)
	}

	return &leaderboard.Standing{
		BoardType: boardType,
		Position:  ahead + 1,
		Score:     score,
		Cached:    false,
	}, nil
}

func (r *LeaderboardRepository) scanEntries(rows pgx.Rows) ([]leaderboard.Entry, error) {
	var entries []leaderboard.Entry
	for rows.Next() {
		var e leaderboard.Entry
		var bt string
		err := rows.Scan(&bt, &e.Position, &e.UserID, &e.DisplayName, &e.RankName, &e.Exp, &e.Score, &e.SnapshotAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board entry: %w", err)
		}
		e.BoardType = leaderboard.BoardType(bt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// buildBoardQuery returns the live ranking query for a board. Every query
// yields (user_id, display_name, rank_name, exp, score) in rank order.
func buildBoardQuery(boardType leaderboard.BoardType) (string, error) {
	switch boardType {
	case leaderboard.BoardOverall:
		return `
			SELECT s.user_id, u.display_name, s.rank_name, s.exp, s.exp
			FROM student_statistics s
			JOIN users u ON u.id = s.user_id AND u.is_active
			ORDER BY s.exp DESC, u.display_name ASC
			LIMIT $1
		`, nil
	case leaderboard.BoardMultiplayer:
		return `
			SELECT s.user_id, u.display_name, s.rank_name, s.exp,
				   COUNT(p.match_id)::int AS wins
			FROM student_statistics s
			JOIN users u ON u.id = s.user_id AND u.is_active
			JOIN match_participants p ON p.user_id = s.user_id AND p.is_winner
			GROUP BY s.user_id, u.display_name, s.rank_name, s.exp
			ORDER BY wins DESC, s.exp DESC
			LIMIT $1
		`, nil
	case leaderboard.BoardAchievements:
		return `
			SELECT s.user_id, u.display_name, s.rank_name, s.exp, s.completed_achievements
			FROM student_statistics s
			JOIN users u ON u.id = s.user_id AND u.is_active
			WHERE s.completed_achievements > 0
			ORDER BY s.completed_achievements DESC, s.exp DESC
			LIMIT $1
		`, nil
	case leaderboard.BoardStreaks:
		return `
			SELECT s.user_id, u.display_name, s.rank_name, s.exp, s.longest_streak
			FROM student_statistics s
			JOIN users u ON u.id = s.user_id AND u.is_active
			WHERE s.longest_streak > 0
			ORDER BY s.longest_streak DESC, s.exp DESC
			LIMIT $1
		`, nil
	default:
		return "", shared.ErrInvalidBoard
	}
}

// liveStandingQueries returns the per-user score query and the
// players-ranked-ahead count query for a board.
func liveStandingQueries(boardType leaderboard.BoardType) (score, ahead string, err error) {
	switch boardType {
	case leaderboard.BoardOverall:
		return "SELECT exp FROM student_statistics WHERE user_id = $1",
			"SELECT COUNT(*) FROM student_statistics s JOIN users u ON u.id = s.user_id AND u.is_active WHERE s.exp > $1",
			nil
	case leaderboard.BoardMultiplayer:
		return "SELECT COUNT(*)::int FROM match_participants WHERE user_id = $1 AND is_winner",
			`SELECT COUNT(*) FROM (
				SELECT p.user_id
				FROM match_participants p
				JOIN users u ON u.id = p.user_id AND u.is_active
				WHERE p.is_winner
				GROUP BY p.user_id
				HAVING COUNT(*) > $1
			) ranked`,
			nil
	case leaderboard.BoardAchievements:
		return "SELECT completed_achievements FROM student_statistics WHERE user_id = $1",
			"SELECT COUNT(*) FROM student_statistics s JOIN users u ON u.id = s.user_id AND u.is_active WHERE s.completed_achievements > $1",
			nil
	case leaderboard.BoardStreaks:
		return "SELECT longest_streak FROM student_statistics WHERE user_id = $1",
			"SELECT COUNT(*) FROM student_statistics s JOIN users u ON u.id = s.user_id AND u.is_active WHERE s.longest_streak > $1",
			nil
	default:
		return "", "", shared.ErrInvalidBoard
	}
}
