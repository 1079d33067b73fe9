// Package user holds the thin identity model. Registration and auth live
// outside this service; users arrive here already authenticated.
package user

import (
	"context"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Type distinguishes students from admins.
type Type string

const (
	TypeStudent Type = "student"
	TypeAdmin   Type = "admin"
)

// User is the identity record. Users are deactivated, never deleted.
type User struct {
	ID          shared.UserID
	Login       string
	DisplayName string
	Type        Type
	Active      bool
	SchoolID    string
	CreatedAt   time.Time
}

// IsStudent reports whether progression applies to this user.
func (u *User) IsStudent() bool {
	return u.Type == TypeStudent
}

// Repository reads identities.
type Repository interface {
	// GetByID loads a user, or shared.ErrNotFound.
	GetByID(ctx context.Context, id shared.UserID) (*User, error)

	// DisplayNames resolves display names for a batch of ids; missing ids
	// are absent from the result.
	DisplayNames(ctx context.Context, ids []shared.UserID) (map[shared.UserID]string, error)
}
