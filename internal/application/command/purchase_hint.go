package command

import (
	"context"
	"fmt"

	"github.com/codearena/arena-server/internal/domain/progression"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURCHASE HINT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// PurchaseHintCommand spends exp to reveal a level's hint. The debit and the
// reveal commit together; an insufficient balance rejects the purchase.
type PurchaseHintCommand struct {
	UserID  string
	LevelID string
}

// Validate checks the command's input invariants.
func (c *PurchaseHintCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !shared.LevelID(c.LevelID).IsValid() {
		return shared.NewDomainError("command", "PurchaseHint", shared.ErrInvalidID, "invalid level id")
	}
	return nil
}

// PurchaseHintResult carries the revealed hint and the remaining balance.
type PurchaseHintResult struct {
	Hint         string `json:"hint"`
	ExpSpent     int    `json:"exp_spent"`
	RemainingExp int    `json:"remaining_exp"`
}

// PurchaseHintHandler handles PurchaseHintCommand.
type PurchaseHintHandler struct {
	uow    UnitOfWork
	events shared.EventPublisher
	log    *logger.Logger
}

// NewPurchaseHintHandler creates the hint purchase handler.
func NewPurchaseHintHandler(uow UnitOfWork, events shared.EventPublisher, log *logger.Logger) *PurchaseHintHandler {
	if log == nil {
		log = logger.Default()
	}
	return &PurchaseHintHandler{
		uow:    uow,
		events: events,
		log:    log.With(logger.Component("purchase_hint")),
	}
}

// Handle debits the fixed hint cost and returns the hint text.
func (h *PurchaseHintHandler) Handle(ctx context.Context, cmd PurchaseHintCommand) (*PurchaseHintResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	userID := shared.UserID(cmd.UserID)

	res := &PurchaseHintResult{ExpSpent: progression.HintExpCost}
	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		level, err := r.Levels.GetByID(ctx, shared.LevelID(cmd.LevelID))
		if err != nil {
			return err
		}

		stats, err := r.Stats.GetForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to lock statistics: %w", err)
		}
		if err := stats.DebitExp(progression.HintExpCost); err != nil {
			return err
		}
		if err := r.Stats.Save(ctx, stats); err != nil {
			return fmt.Errorf("failed to save statistics: %w", err)
		}

		res.Hint = level.Hint
		res.RemainingExp = stats.Exp
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := h.events.Publish(shared.NewExpChangedEvent(cmd.UserID, -progression.HintExpCost, res.RemainingExp, "hint_purchase")); err != nil {
		h.log.Warn("event publish failed", logger.Err(err))
	}
	h.log.Info("hint purchased", logger.UserID(cmd.UserID), logger.LevelID(cmd.LevelID), logger.ExpDelta(-progression.HintExpCost))
	return res, nil
}
