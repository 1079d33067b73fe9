package command

import (
	"context"
	"fmt"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/puzzle"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE BATTLE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateBattleCommand opens a ranked battle room with a problem already
// assigned. The creator waits as a pending participant; the matchmaking pass
// fuses further players in, same as an HTTP queue join.
type CreateBattleCommand struct {
	UserID     string
	Language   string
	Difficulty string // optional; defaults to medium
}

// Validate checks the command's input invariants.
func (c *CreateBattleCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.Language == "" {
		return shared.NewDomainError("command", "CreateBattle", shared.ErrEmptyValue, "language is required")
	}
	if c.Difficulty != "" && !shared.Difficulty(c.Difficulty).IsValid() {
		return shared.NewDomainError("command", "CreateBattle", shared.ErrInvalidInput, "unknown difficulty")
	}
	return nil
}

// CreateBattleResult is the created room.
type CreateBattleResult struct {
	MatchID shared.MatchID `json:"match_id"`
	Level   *puzzle.Level  `json:"level"`
}

// CreateBattleHandler handles CreateBattleCommand.
type CreateBattleHandler struct {
	uow    UnitOfWork
	events shared.EventPublisher
	log    *logger.Logger
}

// NewCreateBattleHandler creates the battle creation handler.
func NewCreateBattleHandler(uow UnitOfWork, events shared.EventPublisher, log *logger.Logger) *CreateBattleHandler {
	if log == nil {
		log = logger.Default()
	}
	return &CreateBattleHandler{
		uow:    uow,
		events: events,
		log:    log.With(logger.Component("create_battle")),
	}
}

// Handle debits the entry fee, draws a problem, and opens the pending match.
func (h *CreateBattleHandler) Handle(ctx context.Context, cmd CreateBattleCommand) (*CreateBattleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	userID := shared.UserID(cmd.UserID)
	difficulty := shared.Difficulty(cmd.Difficulty)
	if cmd.Difficulty == "" {
		difficulty = shared.DifficultyMedium
	}

	res := &CreateBattleResult{}
	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		pending, err := r.Matches.PendingByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list pending matches: %w", err)
		}
		if len(pending) > 0 {
			return shared.ErrQueueEntryExists
		}

		stats, err := r.Stats.GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to lock statistics: %w", err)
		}
		if err := stats.DebitExp(battle.QueueEntryExp); err != nil {
			return shared.ErrQueueExpRequired
		}
		if err := r.Stats.Save(ctx, stats); err != nil {
			return fmt.Errorf("failed to save statistics: %w", err)
		}

		level, err := r.Levels.PickRandom(ctx, difficulty)
		if err != nil {
			return fmt.Errorf("failed to pick battle problem: %w", err)
		}

		match := battle.NewMatch(battle.TypeRanked, cmd.Language, level.ID)
		if err := r.Matches.Insert(ctx, match); err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}

		p := battle.NewParticipant(match.ID, userID)
		p.RankAtJoin = stats.RankName
		p.SuccessCount = stats.TotalSuccessCount
		p.FailCount = stats.TotalFailCount
		if err := r.Participants.Insert(ctx, p); err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}

		res.MatchID = match.ID
		res.Level = level
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := h.events.Publish(shared.NewQueueJoinedEvent(cmd.UserID, string(battle.TypeRanked), cmd.Language, battle.MinMatchSize, QueueSourceHTTP)); err != nil {
		h.log.Warn("event publish failed", logger.Err(err))
	}
	h.log.Info("battle room created",
		logger.UserID(cmd.UserID),
		logger.MatchID(res.MatchID.String()),
		logger.String("difficulty", difficulty.String()))
	return res, nil
}
