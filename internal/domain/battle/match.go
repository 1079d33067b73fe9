// Package battle models multiplayer matches: the lifecycle state machine,
// participants, submission validation and the exp settlement policy.
package battle

import (
	"time"

	"github.com/google/uuid"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// MatchStatus is the match lifecycle state.
type MatchStatus string

const (
	// StatusPending means the match is formed but no participant is ready yet.
	StatusPending MatchStatus = "pending"

	// StatusActive means the battle is running and accepts submissions.
	StatusActive MatchStatus = "active"

	// StatusCompleted is terminal: the outcome is settled.
	StatusCompleted MatchStatus = "completed"

	// StatusCancelled is terminal: the match never started.
	StatusCancelled MatchStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s MatchStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// MatchType distinguishes queue-formed ranked groups from direct challenges.
type MatchType string

const (
	// TypeRanked is a matchmaking-formed group of 3 to 5 players.
	TypeRanked MatchType = "ranked"

	// TypeChallenge is a direct 1v1 invite with a negotiated wager.
	TypeChallenge MatchType = "challenge"
)

const (
	// MinMatchSize and MaxMatchSize bound a ranked group.
	MinMatchSize = 3
	MaxMatchSize = 5

	// QueueEntryExp is debited from each participant when a ranked match forms,
	// and is the minimum exp required to join the queue.
	QueueEntryExp = 100

	// ForfeitPenaltyExp is debited from a player who exits or disconnects,
	// and from every enrolled participant of a kicked pending match.
	ForfeitPenaltyExp = 100

	// ReadyWindow is how long a pending match may wait before kick-unready
	// cancels it.
	ReadyWindow = 120 * time.Second

	// DefaultWager is the challenge stake when the challenger names none.
	DefaultWager = 100
)

// Match is one multiplayer battle.
type Match struct {
	ID              shared.MatchID
	Status          MatchStatus
	MatchType       MatchType
	Language        string
	LevelID         shared.LevelID
	ClusterID       string
	MatchScore      float64
	Wager           int // challenge stake; zero for ranked
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds int
}

// NewMatch creates a pending match.
func NewMatch(matchType MatchType, language string, levelID shared.LevelID) *Match {
	m := &Match{
		ID:        shared.MatchID(uuid.NewString()),
		Status:    StatusPending,
		MatchType: matchType,
		Language:  language,
		LevelID:   levelID,
		CreatedAt: time.Now().UTC(),
	}
	if matchType == TypeChallenge {
		m.Wager = DefaultWager
	}
	return m
}

// Start transitions pending → active. The first ready participant starts the
// match for everyone.
func (m *Match) Start(now time.Time) error {
	if m.Status != StatusPending {
		if m.Status == StatusActive {
			return nil // ready replay is harmless
		}
		return shared.ErrMatchNotPending
	}
	m.Status = StatusActive
	t := now.UTC()
	m.StartedAt = &t
	return nil
}

// Complete transitions active → completed and records the duration.
func (m *Match) Complete(now time.Time) error {
	if m.Status != StatusActive {
		return shared.ErrMatchNotActive
	}
	m.Status = StatusCompleted
	t := now.UTC()
	m.CompletedAt = &t
	m.DurationSeconds = m.elapsedSeconds(now)
	return nil
}

// Cancel transitions pending → cancelled.
func (m *Match) Cancel(now time.Time) error {
	if m.Status != StatusPending {
		return shared.ErrMatchNotPending
	}
	m.Status = StatusCancelled
	t := now.UTC()
	m.CompletedAt = &t
	return nil
}

// ReadyExpired reports whether a pending match has outlived its ready window.
func (m *Match) ReadyExpired(now time.Time) bool {
	return m.Status == StatusPending && now.Sub(m.CreatedAt) > ReadyWindow
}

// elapsedSeconds is the integer battle duration, clamped at zero.
func (m *Match) elapsedSeconds(now time.Time) int {
	if m.StartedAt == nil {
		return 0
	}
	secs := int(now.Sub(*m.StartedAt).Seconds())
	if secs < 0 {
		secs = 0
	}
	return secs
}

// CompletionTime is the submission latency in whole seconds for an active
// match, clamped at zero.
func (m *Match) CompletionTime(now time.Time) int {
	return m.elapsedSeconds(now)
}

// Participant is one player's row within a match. IsWinner nil means the
// outcome is still undecided.
type Participant struct {
	MatchID        shared.MatchID
	UserID         shared.UserID
	IsWinner       *bool
	CompletedCode  bool
	CodeSnapshot   string
	ExpGained      int
	ExpLost        int
	CompletionTime int

	// Snapshot at join time, for post-hoc analytics.
	RankAtJoin   string
	ThetaAtJoin  shared.Theta
	BetaAtJoin   shared.Beta
	SuccessCount int
	FailCount    int

	JoinedAt time.Time
}

// NewParticipant enrolls a user into a match with their current snapshot.
func NewParticipant(matchID shared.MatchID, userID shared.UserID) *Participant {
	return &Participant{
		MatchID:  matchID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	}
}

// Decided reports whether the participant's outcome has been recorded.
func (p *Participant) Decided() bool {
	return p.IsWinner != nil
}

// MarkWinner records a win with the credited exp.
func (p *Participant) MarkWinner(expGained int) {
	win := true
	p.IsWinner = &win
	p.CompletedCode = true
	p.ExpGained = expGained
}

// MarkLoser records a loss with the debited exp.
func (p *Participant) MarkLoser(expLost int) {
	lose := false
	p.IsWinner = &lose
	p.ExpLost = expLost
}

// Outcome is the settled per-participant result returned to idempotent
// replays of submit and exit.
type Outcome struct {
	MatchID        shared.MatchID
	Status         MatchStatus
	IsWinner       bool
	ExpGained      int
	ExpLost        int
	CompletionTime int
}

// OutcomeOf builds the stored outcome for a participant of a settled match.
func OutcomeOf(m *Match, p *Participant) Outcome {
	o := Outcome{
		MatchID:        m.ID,
		Status:         m.Status,
		ExpGained:      p.ExpGained,
		ExpLost:        p.ExpLost,
		CompletionTime: p.CompletionTime,
	}
	if p.IsWinner != nil {
		o.IsWinner = *p.IsWinner
	}
	return o
}
