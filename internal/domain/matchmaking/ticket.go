// Package matchmaking models the queue: waiting tickets, the two grouping
// phases, and the in-process skill clustering fallback.
package matchmaking

import (
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/shared"
)

const (
	// TickInterval is how often the matcher drains the queue.
	TickInterval = 2 * time.Second

	// MinGroupSize is the smallest group the matcher will cluster.
	MinGroupSize = battle.MinMatchSize

	// PhaseOneMinScore gates same-rank clusters.
	PhaseOneMinScore = 0.2

	// PhaseTwoMinScore gates the more lenient cross-rank pass.
	PhaseTwoMinScore = 0.15

	// PendingWaiterMaxAge bounds how long a solo-pending match counts as a
	// queue waiter.
	PendingWaiterMaxAge = 10 * time.Minute

	// MinQueueExp is the exp floor to enter the queue, equal to the entry fee.
	MinQueueExp = battle.QueueEntryExp
)

// Ticket is one waiting player, from either the socket queue or a DB-pending
// solo match.
type Ticket struct {
	UserID      shared.UserID
	DisplayName string
	MatchType   battle.MatchType
	Language    string
	MatchSize   int
	RankName    string
	Theta       shared.Theta
	Beta        shared.Beta

	// PendingMatchID is set when the ticket was fused in from a DB-pending
	// match rather than a live socket join.
	PendingMatchID shared.MatchID

	EnqueuedAt time.Time
}

// ClampMatchSize forces a ranked request into the allowed group bounds.
func ClampMatchSize(size int) int {
	if size < battle.MinMatchSize {
		return battle.MinMatchSize
	}
	if size > battle.MaxMatchSize {
		return battle.MaxMatchSize
	}
	return size
}

// GroupKey buckets compatible waiters. Rank is empty in the phase-2 pass.
type GroupKey struct {
	MatchType battle.MatchType
	Language  string
	MatchSize int
	Rank      string
}

// PhaseOneKey groups by rank as well; only equal-rank players cluster.
func (t Ticket) PhaseOneKey() GroupKey {
	return GroupKey{MatchType: t.MatchType, Language: t.Language, MatchSize: t.MatchSize, Rank: t.RankName}
}

// PhaseTwoKey drops the rank dimension for the lenient cross-rank pass.
func (t Ticket) PhaseTwoKey() GroupKey {
	return GroupKey{MatchType: t.MatchType, Language: t.Language, MatchSize: t.MatchSize}
}

func (k GroupKey) String() string {
	if k.Rank == "" {
		return fmt.Sprintf("%s/%s/%d", k.MatchType, k.Language, k.MatchSize)
	}
	return fmt.Sprintf("%s/%s/%d/%s", k.MatchType, k.Language, k.MatchSize, k.Rank)
}

// QueueStatus is the waiter-facing progress snapshot broadcast while a group
// is still short of MinGroupSize.
type QueueStatus struct {
	CurrentCount  int
	RequiredCount int
	Waiters       []WaiterInfo
}

// WaiterInfo is the display data of a co-waiting player.
type WaiterInfo struct {
	UserID      shared.UserID
	DisplayName string
	RankName    string
}
