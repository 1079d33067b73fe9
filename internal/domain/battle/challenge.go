package battle

import (
	"time"

	"github.com/google/uuid"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// ChallengeStatus is the direct-invite lifecycle state.
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeAccepted ChallengeStatus = "accepted"
	ChallengeDeclined ChallengeStatus = "declined"
	ChallengeExpired  ChallengeStatus = "expired"
)

// ChallengeLifetime is how long an invite stays answerable.
const ChallengeLifetime = 5 * time.Minute

// Challenge is a direct 1v1 battle invite with a wager.
type Challenge struct {
	ID           string
	ChallengerID shared.UserID
	OpponentID   shared.UserID
	Language     string
	ExpWager     int
	Status       ChallengeStatus
	MatchID      shared.MatchID // set on accept
	CreatedAt    time.Time
	RespondedAt  *time.Time
}

// NewChallenge creates a pending invite. A non-positive wager falls back to
// the default.
func NewChallenge(challenger, opponent shared.UserID, language string, wager int) *Challenge {
	if wager <= 0 {
		wager = DefaultWager
	}
	return &Challenge{
		ID:           uuid.NewString(),
		ChallengerID: challenger,
		OpponentID:   opponent,
		Language:     language,
		ExpWager:     wager,
		Status:       ChallengePending,
		CreatedAt:    time.Now().UTC(),
	}
}

// Expired reports whether the invite has outlived its answer window.
func (c *Challenge) Expired(now time.Time) bool {
	return c.Status == ChallengePending && now.Sub(c.CreatedAt) > ChallengeLifetime
}

// Accept links the invite to its created match.
func (c *Challenge) Accept(now time.Time, matchID shared.MatchID) error {
	if err := c.answerable(now); err != nil {
		return err
	}
	c.Status = ChallengeAccepted
	c.MatchID = matchID
	t := now.UTC()
	c.RespondedAt = &t
	return nil
}

// Decline closes the invite without a match.
func (c *Challenge) Decline(now time.Time) error {
	if err := c.answerable(now); err != nil {
		return err
	}
	c.Status = ChallengeDeclined
	t := now.UTC()
	c.RespondedAt = &t
	return nil
}

func (c *Challenge) answerable(now time.Time) error {
	if c.Expired(now) {
		c.Status = ChallengeExpired
		return shared.ErrChallengeExpired
	}
	if c.Status != ChallengePending {
		return shared.ErrChallengeNotPending
	}
	return nil
}
