package battle

import (
	"context"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// MatchRepository persists matches. Outcome-writing callers must load under
// GetForUpdate so settlement is totally ordered per match.
type MatchRepository interface {
	// Insert stores a new match.
	Insert(ctx context.Context, m *Match) error

	// Get loads a match, or shared.ErrMatchNotFound.
	Get(ctx context.Context, id shared.MatchID) (*Match, error)

	// GetForUpdate loads the match under a FOR UPDATE lock. Must run inside
	// a transaction.
	GetForUpdate(ctx context.Context, id shared.MatchID) (*Match, error)

	// Save writes the mutable match fields.
	Save(ctx context.Context, m *Match) error

	// ActiveByUser lists active matches the user participates in.
	ActiveByUser(ctx context.Context, userID shared.UserID) ([]*Match, error)

	// PendingByUser lists pending matches the user participates in.
	PendingByUser(ctx context.Context, userID shared.UserID) ([]*Match, error)

	// CancelPendingForUsers cancels every other pending match involving any
	// of the users, keeping the one just formed. Returns cancelled match ids.
	CancelPendingForUsers(ctx context.Context, userIDs []shared.UserID, keep shared.MatchID) ([]shared.MatchID, error)

	// StalePending lists pending matches created before the cutoff.
	StalePending(ctx context.Context, cutoff time.Time) ([]*Match, error)

	// PendingQueueWaiters lists solo-pending ranked matches usable as
	// matchmaking waiters: pending, younger than maxAge, below minSize
	// participants.
	PendingQueueWaiters(ctx context.Context, maxAge time.Duration, minSize int) ([]*Match, error)
}

// ParticipantRepository persists per-(match, user) rows.
type ParticipantRepository interface {
	// Insert enrolls a participant; duplicate (match, user) pairs conflict.
	Insert(ctx context.Context, p *Participant) error

	// Get loads one participant, or shared.ErrNotParticipant.
	Get(ctx context.Context, matchID shared.MatchID, userID shared.UserID) (*Participant, error)

	// ListByMatch loads all participants of a match, join order.
	ListByMatch(ctx context.Context, matchID shared.MatchID) ([]*Participant, error)

	// Save writes the mutable participant fields.
	Save(ctx context.Context, p *Participant) error

	// WinCountByUser returns how many matches the user has won, for the
	// multiplayer leaderboard.
	WinCountByUser(ctx context.Context, userID shared.UserID) (int, error)
}

// ChallengeRepository persists direct invites.
type ChallengeRepository interface {
	// Insert stores a new invite.
	Insert(ctx context.Context, c *Challenge) error

	// Get loads an invite, or shared.ErrChallengeNotFound.
	Get(ctx context.Context, id string) (*Challenge, error)

	// GetForUpdate loads the invite under a FOR UPDATE lock.
	GetForUpdate(ctx context.Context, id string) (*Challenge, error)

	// Save writes the mutable invite fields.
	Save(ctx context.Context, c *Challenge) error

	// PendingForOpponent lists unanswered invites addressed to the user.
	PendingForOpponent(ctx context.Context, userID shared.UserID) ([]*Challenge, error)
}
