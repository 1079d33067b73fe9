package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/domain/user"
	"github.com/codearena/arena-server/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// CreateChallengeCommand sends a direct 1v1 invite with a wager.
type CreateChallengeCommand struct {
	ChallengerID string
	OpponentID   string
	Language     string
	Wager        int
}

// Validate checks the command's input invariants.
func (c *CreateChallengeCommand) Validate() error {
	if _, err := shared.NewUserID(c.ChallengerID); err != nil {
		return err
	}
	if _, err := shared.NewUserID(c.OpponentID); err != nil {
		return err
	}
	if c.ChallengerID == c.OpponentID {
		return shared.ErrSelfChallenge
	}
	if c.Language == "" {
		return shared.NewDomainError("command", "CreateChallenge", shared.ErrEmptyValue, "language is required")
	}
	if c.Wager < 0 {
		return shared.NewDomainError("command", "CreateChallenge", shared.ErrNegativeValue, "wager cannot be negative")
	}
	return nil
}

// CreateChallengeResult carries the created invite.
type CreateChallengeResult struct {
	ChallengeID string `json:"challenge_id"`
	Wager       int    `json:"wager"`
}

// RespondChallengeCommand answers an invite.
type RespondChallengeCommand struct {
	UserID      string
	ChallengeID string
	Accept      bool
}

// Validate checks the command's input invariants.
func (c *RespondChallengeCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.ChallengeID == "" {
		return shared.NewDomainError("command", "RespondChallenge", shared.ErrEmptyValue, "challenge id is required")
	}
	return nil
}

// RespondChallengeResult reports the answer. MatchID is set on accept.
type RespondChallengeResult struct {
	Accepted bool           `json:"accepted"`
	MatchID  shared.MatchID `json:"match_id,omitempty"`
}

// ChallengeHandler handles both challenge commands.
type ChallengeHandler struct {
	uow      UnitOfWork
	users    user.Repository
	notifier notification.Notifier
	events   shared.EventPublisher
	log      *logger.Logger
}

// NewChallengeHandler creates the challenge handler.
func NewChallengeHandler(uow UnitOfWork, users user.Repository, notifier notification.Notifier, events shared.EventPublisher, log *logger.Logger) *ChallengeHandler {
	if log == nil {
		log = logger.Default()
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &ChallengeHandler{
		uow:      uow,
		users:    users,
		notifier: notifier,
		events:   events,
		log:      log.With(logger.Component("challenge")),
	}
}

// Create stores a pending invite. The challenger must be able to cover the
// wager right now; the stake itself moves only at settlement.
func (h *ChallengeHandler) Create(ctx context.Context, cmd CreateChallengeCommand) (*CreateChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	challengerID := shared.UserID(cmd.ChallengerID)
	opponentID := shared.UserID(cmd.OpponentID)

	challenge := battle.NewChallenge(challengerID, opponentID, cmd.Language, cmd.Wager)
	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		stats, err := r.Stats.Get(ctx, challengerID)
		if err != nil {
			if shared.IsNotFound(err) {
				return shared.ErrNotEnoughExp
			}
			return fmt.Errorf("failed to load statistics: %w", err)
		}
		if stats.Exp < challenge.ExpWager {
			return shared.ErrNotEnoughExp
		}
		return r.Challenges.Insert(ctx, challenge)
	})
	if err != nil {
		return nil, err
	}

	h.notifier.Emit(notification.UserRoom(opponentID), notification.EventChallengeReceived, notification.Stamp(map[string]any{
		"challenge_id":    challenge.ID,
		"challenger_id":   challengerID.String(),
		"challenger_name": h.displayName(ctx, challengerID),
		"language":        challenge.Language,
		"wager":           challenge.ExpWager,
	}))
	h.log.Info("challenge created",
		logger.UserID(cmd.ChallengerID),
		logger.String("opponent_id", cmd.OpponentID),
		logger.Int("wager", challenge.ExpWager))
	return &CreateChallengeResult{ChallengeID: challenge.ID, Wager: challenge.ExpWager}, nil
}

// Respond accepts or declines an invite. Accepting creates the challenge
// match in the same transaction.
func (h *ChallengeHandler) Respond(ctx context.Context, cmd RespondChallengeCommand) (*RespondChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	userID := shared.UserID(cmd.UserID)
	now := time.Now().UTC()

	res := &RespondChallengeResult{}
	var (
		challengerID shared.UserID
		announce     map[string]any
	)

	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		challenge, err := r.Challenges.GetForUpdate(ctx, cmd.ChallengeID)
		if err != nil {
			return err
		}
		if challenge.OpponentID != userID {
			return shared.NewDomainError("command", "RespondChallenge", shared.ErrForbidden, "challenge is addressed to another user")
		}
		challengerID = challenge.ChallengerID

		if !cmd.Accept {
			if err := challenge.Decline(now); err != nil {
				return err
			}
			return r.Challenges.Save(ctx, challenge)
		}

		// Both sides must cover the wager before the match exists.
		ids := []shared.UserID{challenge.ChallengerID, challenge.OpponentID}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		snapshots := make(map[shared.UserID]joinSnapshot, 2)
		for _, id := range ids {
			stats, err := r.Stats.GetOrCreateForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to lock statistics: %w", err)
			}
			if stats.Exp < challenge.ExpWager {
				return shared.ErrNotEnoughExp
			}
			snapshots[id] = joinSnapshot{
				rank:    stats.RankName,
				success: stats.TotalSuccessCount,
				fail:    stats.TotalFailCount,
			}
		}

		match := battle.NewMatch(battle.TypeChallenge, challenge.Language, "")
		match.Wager = challenge.ExpWager
		if err := r.Matches.Insert(ctx, match); err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}
		for _, id := range ids {
			p := battle.NewParticipant(match.ID, id)
			snap := snapshots[id]
			p.RankAtJoin = snap.rank
			p.SuccessCount = snap.success
			p.FailCount = snap.fail
			if err := r.Participants.Insert(ctx, p); err != nil {
				return fmt.Errorf("failed to insert participant: %w", err)
			}
		}

		if err := challenge.Accept(now, match.ID); err != nil {
			return err
		}
		if err := r.Challenges.Save(ctx, challenge); err != nil {
			return fmt.Errorf("failed to save challenge: %w", err)
		}

		res.Accepted = true
		res.MatchID = match.ID
		announce = map[string]any{
			"match_id":   match.ID.String(),
			"match_type": string(battle.TypeChallenge),
			"language":   challenge.Language,
			"wager":      challenge.ExpWager,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Accepted {
		payload := notification.Stamp(announce)
		h.notifier.Emit(notification.UserRoom(challengerID), notification.EventMatchFound, payload)
		h.notifier.Emit(notification.UserRoom(userID), notification.EventMatchFound, payload)
		ids := []string{challengerID.String(), cmd.UserID}
		if err := h.events.Publish(shared.NewMatchFormedEvent(res.MatchID.String(), ids, string(battle.TypeChallenge), 0, "", 0)); err != nil {
			h.log.Warn("event publish failed", logger.Err(err))
		}
	} else {
		h.notifier.Emit(notification.UserRoom(challengerID), notification.EventChallengeDeclined, notification.Stamp(map[string]any{
			"challenge_id": cmd.ChallengeID,
			"opponent_id":  cmd.UserID,
		}))
	}
	h.log.Info("challenge answered",
		logger.UserID(cmd.UserID),
		logger.String("challenge_id", cmd.ChallengeID),
		logger.Bool("accepted", res.Accepted))
	return res, nil
}

// joinSnapshot is the ledger state copied onto a participant row at enroll.
type joinSnapshot struct {
	rank    string
	success int
	fail    int
}

func (h *ChallengeHandler) displayName(ctx context.Context, id shared.UserID) string {
	if h.users == nil {
		return ""
	}
	names, err := h.users.DisplayNames(ctx, []shared.UserID{id})
	if err != nil {
		return ""
	}
	return names[id]
}
