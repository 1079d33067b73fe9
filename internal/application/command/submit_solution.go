package command

import (
	"context"
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT SOLUTION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SubmitSolutionCommand submits battle code. The first accepted submission
// wins and settles the match; replays after settlement get the stored
// outcome back instead of an error.
type SubmitSolutionCommand struct {
	UserID  string
	MatchID string
	Code    string
}

// Validate checks the command's input invariants.
func (c *SubmitSolutionCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !shared.MatchID(c.MatchID).IsValid() {
		return shared.NewDomainError("command", "SubmitSolution", shared.ErrInvalidID, "invalid match id")
	}
	if c.Code == "" {
		return shared.NewDomainError("command", "SubmitSolution", shared.ErrEmptyValue, "code is required")
	}
	return nil
}

// SubmitSolutionResult reports the submission verdict.
type SubmitSolutionResult struct {
	Accepted bool            `json:"accepted"`
	Outcome  *battle.Outcome `json:"outcome,omitempty"` // set when the match is settled
}

// SubmitSolutionHandler handles SubmitSolutionCommand.
type SubmitSolutionHandler struct {
	uow      UnitOfWork
	notifier notification.Notifier
	events   shared.EventPublisher
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewSubmitSolutionHandler creates the submission handler.
func NewSubmitSolutionHandler(uow UnitOfWork, notifier notification.Notifier, events shared.EventPublisher, log *logger.Logger, m *metrics.Metrics) *SubmitSolutionHandler {
	if log == nil {
		log = logger.Default()
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &SubmitSolutionHandler{
		uow:      uow,
		notifier: notifier,
		events:   events,
		log:      log.With(logger.Component("submit_solution")),
		metrics:  m,
	}
}

// Handle validates the code and, on acceptance, settles the whole match.
func (h *SubmitSolutionHandler) Handle(ctx context.Context, cmd SubmitSolutionCommand) (*SubmitSolutionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	matchID := shared.MatchID(cmd.MatchID)
	userID := shared.UserID(cmd.UserID)
	now := time.Now().UTC()

	res := &SubmitSolutionResult{}
	var (
		settled       bool
		settledMatch  *battle.Match
		winners       []string
		losers        []string
		pendingEvents []shared.Event
	)

	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		match, err := r.Matches.GetForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		me, err := r.Participants.Get(ctx, matchID, userID)
		if err != nil {
			return err
		}

		// Settled already: replay the stored outcome idempotently.
		if match.Status.IsTerminal() {
			if me.Decided() {
				o := battle.OutcomeOf(match, me)
				res.Accepted = o.IsWinner
				res.Outcome = &o
				return nil
			}
			return shared.ErrMatchAlreadySettled
		}
		if match.Status != battle.StatusActive {
			return shared.ErrMatchNotActive
		}

		reference := ""
		if !match.LevelID.IsEmpty() {
			level, err := r.Levels.GetByID(ctx, match.LevelID)
			if err != nil {
				return err
			}
			reference = level.InitialCode
		}

		me.CodeSnapshot = cmd.Code
		if !battle.ValidateSolution(cmd.Code, reference) {
			// Rejected code still leaves its snapshot behind.
			if err := r.Participants.Save(ctx, me); err != nil {
				return fmt.Errorf("failed to save participant: %w", err)
			}
			res.Accepted = false
			return nil
		}

		completionTime := match.CompletionTime(now)
		if err := match.Complete(now); err != nil {
			return err
		}

		participants, err := r.Participants.ListByMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}
		// Keep the submitted snapshot on the winner row being settled.
		for i, p := range participants {
			if p.UserID == userID {
				participants[i].CodeSnapshot = cmd.Code
			}
		}

		pendingEvents, err = settleOutcome(ctx, r, match, participants, userID, completionTime)
		if err != nil {
			return err
		}
		if err := r.Matches.Save(ctx, match); err != nil {
			return fmt.Errorf("failed to save match: %w", err)
		}

		for _, p := range participants {
			if p.UserID == userID {
				o := battle.OutcomeOf(match, p)
				res.Accepted = true
				res.Outcome = &o
			}
		}
		winners, losers = splitByOutcome(participants)
		settled = true
		settledMatch = match
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled {
		h.finish(settledMatch, userID, winners, losers, pendingEvents)
	}
	return res, nil
}

// finish runs the post-commit fan-out of a settled match.
func (h *SubmitSolutionHandler) finish(match *battle.Match, winnerID shared.UserID, winners, losers []string, events []shared.Event) {
	payload := notification.Stamp(map[string]any{
		"match_id":         match.ID.String(),
		"status":           string(match.Status),
		"winner_id":        winnerID.String(),
		"duration_seconds": match.DurationSeconds,
	})
	notification.EmitToWinner(h.notifier, match.ID, winnerID, notification.EventBattleCompleted, payload)

	events = append(events, shared.NewMatchCompletedEvent(
		match.ID.String(), string(match.MatchType), winners, losers, match.DurationSeconds, "submission"))
	for _, ev := range events {
		if err := h.events.Publish(ev); err != nil {
			h.log.Warn("event publish failed", logger.Err(err))
		}
	}

	if h.metrics != nil {
		h.metrics.BattlesCompleted.WithLabelValues("submission").Inc()
		h.metrics.BattleDuration.Observe(float64(match.DurationSeconds))
	}
	h.log.Info("battle settled",
		logger.MatchID(match.ID.String()),
		logger.UserID(winnerID.String()),
		logger.Int("duration_seconds", match.DurationSeconds))
}
