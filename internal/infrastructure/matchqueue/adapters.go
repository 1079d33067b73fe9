package matchqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/matchmaking"
	"github.com/codearena/arena-server/internal/domain/session"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/domain/user"
)

// ─────────────────────────────────────────────────────────────────────────────
// WAITER SOURCE
// ─────────────────────────────────────────────────────────────────────────────

// PendingMatchWaiters adapts solo-pending ranked matches into queue tickets.
// An HTTP join lands as a pending match; each pass fuses its participants
// into the candidate pool until it fills or ages out. Implements WaiterSource.
type PendingMatchWaiters struct {
	matches      battle.MatchRepository
	participants battle.ParticipantRepository
	users        user.Repository
}

// NewPendingMatchWaiters creates the adapter.
func NewPendingMatchWaiters(matches battle.MatchRepository, participants battle.ParticipantRepository, users user.Repository) *PendingMatchWaiters {
	return &PendingMatchWaiters{matches: matches, participants: participants, users: users}
}

// PendingWaiters lists every participant of a fusable pending match as a
// ticket. Pending matches carry no size preference, so fused tickets ask for
// the minimum group.
func (w *PendingMatchWaiters) PendingWaiters(ctx context.Context) ([]matchmaking.Ticket, error) {
	matches, err := w.matches.PendingQueueWaiters(ctx, matchmaking.PendingWaiterMaxAge, battle.MinMatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending waiters: %w", err)
	}

	var tickets []matchmaking.Ticket
	var ids []shared.UserID
	for _, m := range matches {
		participants, err := w.participants.ListByMatch(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}
		for _, p := range participants {
			tickets = append(tickets, matchmaking.Ticket{
				UserID:         p.UserID,
				MatchType:      battle.TypeRanked,
				Language:       m.Language,
				MatchSize:      battle.MinMatchSize,
				RankName:       p.RankAtJoin,
				Theta:          p.ThetaAtJoin,
				Beta:           p.BetaAtJoin,
				PendingMatchID: m.ID,
				EnqueuedAt:     m.CreatedAt,
			})
			ids = append(ids, p.UserID)
		}
	}

	if w.users != nil && len(ids) > 0 {
		names, err := w.users.DisplayNames(ctx, ids)
		if err == nil {
			for i := range tickets {
				tickets[i].DisplayName = names[tickets[i].UserID]
			}
		}
	}
	return tickets, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ONLINE CHECKER
// ─────────────────────────────────────────────────────────────────────────────

// RemotePresence answers connectivity for sockets on peer instances; the
// redis presence tracker implements it.
type RemotePresence interface {
	ConnectedSet(ctx context.Context, ids []shared.UserID) (map[shared.UserID]bool, error)
}

// CompositeOnlineChecker counts a user as online when any signal says so: an
// open session seen within the window, a live local socket, or a presence key
// left by a peer instance. Implements OnlineChecker.
type CompositeOnlineChecker struct {
	sessions session.Repository
	local    session.PresenceSource
	remote   RemotePresence
}

// NewCompositeOnlineChecker creates the checker. local and remote may be nil.
func NewCompositeOnlineChecker(sessions session.Repository, local session.PresenceSource, remote RemotePresence) *CompositeOnlineChecker {
	return &CompositeOnlineChecker{sessions: sessions, local: local, remote: remote}
}

// OnlineSet reports which of the given users are online right now.
func (c *CompositeOnlineChecker) OnlineSet(ctx context.Context, ids []shared.UserID) (map[shared.UserID]bool, error) {
	online := make(map[shared.UserID]bool, len(ids))

	if c.sessions != nil {
		cutoff := time.Now().UTC().Add(-session.OnlineWindow)
		fromSessions, err := c.sessions.OnlineUsers(ctx, ids, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to check sessions: %w", err)
		}
		for id, ok := range fromSessions {
			if ok {
				online[id] = true
			}
		}
	}

	if c.local != nil {
		for _, id := range ids {
			if !online[id] && c.local.IsConnected(id) {
				online[id] = true
			}
		}
	}

	if c.remote != nil {
		var unknown []shared.UserID
		for _, id := range ids {
			if !online[id] {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			fromRemote, err := c.remote.ConnectedSet(ctx, unknown)
			if err == nil {
				for id, ok := range fromRemote {
					if ok {
						online[id] = true
					}
				}
			}
		}
	}
	return online, nil
}
