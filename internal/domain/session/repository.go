package session

import (
	"context"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Repository persists sessions. IncrementCounters is called from inside the
// attempt transaction under a savepoint; its failure never fails the attempt.
type Repository interface {
	// Insert stores a freshly opened session.
	Insert(ctx context.Context, s *UserSession) error

	// ActiveByUser returns the user's newest open session, or
	// shared.ErrSessionNotFound.
	ActiveByUser(ctx context.Context, userID shared.UserID) (*UserSession, error)

	// Heartbeat refreshes last-seen on the user's open session.
	Heartbeat(ctx context.Context, userID shared.UserID, now time.Time) error

	// Close ends the user's open session.
	Close(ctx context.Context, userID shared.UserID, now time.Time) error

	// IncrementCounters bumps the attempt counters on the open session.
	IncrementCounters(ctx context.Context, userID shared.UserID, success bool) error

	// OnlineUsers filters the given ids down to those with an open session
	// seen since the cutoff.
	OnlineUsers(ctx context.Context, userIDs []shared.UserID, cutoff time.Time) (map[shared.UserID]bool, error)

	// CloseStale ends open sessions unseen since the cutoff and returns how
	// many were closed.
	CloseStale(ctx context.Context, cutoff time.Time) (int, error)
}

// PresenceSource answers the live-socket half of the online check. The
// realtime hub implements it.
type PresenceSource interface {
	// IsConnected reports whether the user has a live socket right now.
	IsConnected(userID shared.UserID) bool
}
