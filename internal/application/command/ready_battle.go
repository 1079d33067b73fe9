package command

import (
	"context"
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// READY BATTLE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ReadyBattleCommand signals a participant is ready. The first ready starts
// the match for everyone; replays against an active match are harmless.
type ReadyBattleCommand struct {
	UserID  string
	MatchID string
}

// Validate checks the command's input invariants.
func (c *ReadyBattleCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !shared.MatchID(c.MatchID).IsValid() {
		return shared.NewDomainError("command", "ReadyBattle", shared.ErrInvalidID, "invalid match id")
	}
	return nil
}

// ReadyBattleResult reports the match state after the ready.
type ReadyBattleResult struct {
	MatchID   shared.MatchID     `json:"match_id"`
	Status    battle.MatchStatus `json:"status"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
}

// ReadyBattleHandler handles ReadyBattleCommand.
type ReadyBattleHandler struct {
	uow      UnitOfWork
	notifier notification.Notifier
	log      *logger.Logger
}

// NewReadyBattleHandler creates the ready handler.
func NewReadyBattleHandler(uow UnitOfWork, notifier notification.Notifier, log *logger.Logger) *ReadyBattleHandler {
	if log == nil {
		log = logger.Default()
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &ReadyBattleHandler{uow: uow, notifier: notifier, log: log.With(logger.Component("ready_battle"))}
}

// Handle starts the match on the first ready.
func (h *ReadyBattleHandler) Handle(ctx context.Context, cmd ReadyBattleCommand) (*ReadyBattleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	matchID := shared.MatchID(cmd.MatchID)
	userID := shared.UserID(cmd.UserID)

	res := &ReadyBattleResult{MatchID: matchID}
	var started bool

	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		match, err := r.Matches.GetForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		if _, err := r.Participants.Get(ctx, matchID, userID); err != nil {
			return err
		}

		wasPending := match.Status == battle.StatusPending
		if err := match.Start(time.Now()); err != nil {
			return err
		}
		if wasPending {
			if err := r.Matches.Save(ctx, match); err != nil {
				return fmt.Errorf("failed to save match: %w", err)
			}
			started = true
		}

		res.Status = match.Status
		res.StartedAt = match.StartedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if started {
		h.notifier.Emit(notification.BattleRoom(matchID), notification.EventBattleUpdate, notification.Stamp(map[string]any{
			"match_id": matchID.String(),
			"status":   string(res.Status),
		}))
		h.log.Info("battle started", logger.MatchID(cmd.MatchID), logger.UserID(cmd.UserID))
	}
	return res, nil
}
