package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{db: conn}
}

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id shared.UserID) (*user.User, error) {
	query := `
		SELECT id, login, display_name, user_type, is_active, COALESCE(school_id, ''), created_at
		FROM users
		WHERE id = $1
	`

	var u user.User
	var userType string
	err := r.db.QueryRow(ctx, query, id.String()).Scan(
		&u.ID,
		&u.Login,
		&u.DisplayName,
		&userType,
		&u.Active,
		&u.SchoolID,
		&u.CreatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Type = user.Type(userType)
	return &u, nil
}

// DisplayNames resolves display names for a batch of user IDs.
func (r *UserRepository) DisplayNames(ctx context.Context, ids []shared.UserID) (map[shared.UserID]string, error) {
	names := make(map[shared.UserID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id.String()
	}

	query := fmt.Sprintf(`
		SELECT id, display_name
		FROM users
		WHERE id IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query display names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan display name: %w", err)
		}
		names[shared.UserID(id)] = name
	}

	return names, rows.Err()
}
