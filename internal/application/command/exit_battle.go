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
// EXIT BATTLE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// Exit reasons, carried on the completion event and the metrics label.
const (
	ExitReasonForfeit    = "forfeit"
	ExitReasonDisconnect = "disconnect"
)

// ExitBattleCommand removes a participant from their match. Leaving an active
// match is a forfeit: the exiting player pays the penalty and, in a two-sided
// fight, the remaining opponent wins.
type ExitBattleCommand struct {
	UserID  string
	MatchID string
	Reason  string
}

// Validate checks the command's input invariants.
func (c *ExitBattleCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !shared.MatchID(c.MatchID).IsValid() {
		return shared.NewDomainError("command", "ExitBattle", shared.ErrInvalidID, "invalid match id")
	}
	return nil
}

// ExitBattleHandler handles ExitBattleCommand and the disconnect sweep.
type ExitBattleHandler struct {
	uow      UnitOfWork
	matches  battle.MatchRepository
	notifier notification.Notifier
	events   shared.EventPublisher
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewExitBattleHandler creates the exit handler.
func NewExitBattleHandler(uow UnitOfWork, matches battle.MatchRepository, notifier notification.Notifier, events shared.EventPublisher, log *logger.Logger, m *metrics.Metrics) *ExitBattleHandler {
	if log == nil {
		log = logger.Default()
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &ExitBattleHandler{
		uow:      uow,
		matches:  matches,
		notifier: notifier,
		events:   events,
		log:      log.With(logger.Component("exit_battle")),
		metrics:  m,
	}
}

// Handle processes one exit. The opponent notification goes out before the
// settlement transaction so the remaining player sees the forfeit instantly,
// even when the ledger write is slow; the settlement itself stays atomic.
func (h *ExitBattleHandler) Handle(ctx context.Context, cmd ExitBattleCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	matchID := shared.MatchID(cmd.MatchID)
	userID := shared.UserID(cmd.UserID)
	reason := cmd.Reason
	if reason == "" {
		reason = ExitReasonForfeit
	}

	h.notifier.Emit(notification.BattleRoom(matchID), notification.EventOpponentExited, notification.Stamp(map[string]any{
		"match_id": matchID.String(),
		"user_id":  userID.String(),
		"reason":   reason,
	}))

	var (
		settledMatch  *battle.Match
		winnerID      shared.UserID
		cancelled     bool
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
		now := time.Now().UTC()

		switch {
		case match.Status.IsTerminal():
			// Raced with a settlement; nothing left to do.
			return nil

		case match.Status == battle.StatusPending:
			if err := match.Cancel(now); err != nil {
				return err
			}
			if err := r.Matches.Save(ctx, match); err != nil {
				return fmt.Errorf("failed to save match: %w", err)
			}
			cancelled = true
			pendingEvents = append(pendingEvents,
				shared.NewMatchCancelledEvent(matchID.String(), []string{userID.String()}, reason))
			return nil
		}

		// Active: the exit is a forfeit. The deserter pays the forfeit stake
		// (the wager in a challenge) no matter how many opponents remain.
		if me.Decided() {
			// Raced with another exit or a settlement.
			return nil
		}
		participants, err := r.Participants.ListByMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}

		var (
			deserter  *battle.Participant
			undecided []*battle.Participant
		)
		for _, p := range participants {
			if p.UserID == userID {
				deserter = p
				continue
			}
			if !p.Decided() {
				undecided = append(undecided, p)
			}
		}
		if deserter == nil {
			return shared.ErrNotParticipant
		}

		loss := battle.ForfeitPenaltyExp
		if match.MatchType == battle.TypeChallenge {
			loss = battle.LossExp(match.MatchType, match.Wager)
		}
		stats, err := r.Stats.GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to lock statistics: %w", err)
		}
		oldRank := stats.Rank()
		rankChanged := stats.AddExp(-loss)
		if err := r.Stats.Save(ctx, stats); err != nil {
			return fmt.Errorf("failed to save statistics: %w", err)
		}
		deserter.MarkLoser(loss)
		if err := r.Participants.Save(ctx, deserter); err != nil {
			return fmt.Errorf("failed to save participant: %w", err)
		}

		pendingEvents = append(pendingEvents, shared.NewExpChangedEvent(userID.String(), -loss, stats.Exp, "battle"))
		if rankChanged {
			newRank := stats.Rank()
			pendingEvents = append(pendingEvents,
				shared.NewRankChangedEvent(userID.String(), oldRank.Name, newRank.Name, oldRank.Index, newRank.Index, stats.Exp))
		}

		if len(undecided) == 1 {
			// Two-sided finish: the survivor wins and the match completes.
			// The deserter is already settled, so settleOutcome only credits.
			winnerID = undecided[0].UserID
			completionTime := match.CompletionTime(now)
			if err := match.Complete(now); err != nil {
				return err
			}
			settleEvents, err := settleOutcome(ctx, r, match, participants, winnerID, completionTime)
			if err != nil {
				return err
			}
			pendingEvents = append(pendingEvents, settleEvents...)
			if err := r.Matches.Save(ctx, match); err != nil {
				return fmt.Errorf("failed to save match: %w", err)
			}
			winners, losers = splitByOutcome(participants)
			settledMatch = match
		}
		return nil
	})
	if err != nil {
		return err
	}

	if settledMatch != nil {
		payload := notification.Stamp(map[string]any{
			"match_id":         matchID.String(),
			"status":           string(settledMatch.Status),
			"winner_id":        winnerID.String(),
			"duration_seconds": settledMatch.DurationSeconds,
			"reason":           reason,
		})
		notification.EmitToWinner(h.notifier, matchID, winnerID, notification.EventBattleCompleted, payload)
		pendingEvents = append(pendingEvents, shared.NewMatchCompletedEvent(
			matchID.String(), string(settledMatch.MatchType), winners, losers, settledMatch.DurationSeconds, reason))
		if h.metrics != nil {
			h.metrics.BattlesCompleted.WithLabelValues(reason).Inc()
			h.metrics.BattleDuration.Observe(float64(settledMatch.DurationSeconds))
		}
	}
	if cancelled {
		h.notifier.Emit(notification.BattleRoom(matchID), notification.EventPlayerLeftBattle, notification.Stamp(map[string]any{
			"match_id": matchID.String(),
			"user_id":  userID.String(),
		}))
	}
	for _, ev := range pendingEvents {
		if err := h.events.Publish(ev); err != nil {
			h.log.Warn("event publish failed", logger.Err(err))
		}
	}

	h.log.Info("battle exit processed",
		logger.MatchID(cmd.MatchID),
		logger.UserID(cmd.UserID),
		logger.String("reason", reason))
	return nil
}

// ForfeitAll forfeits every active match of a user, called when their last
// socket disconnects mid-battle.
func (h *ExitBattleHandler) ForfeitAll(ctx context.Context, userID shared.UserID) {
	active, err := h.matches.ActiveByUser(ctx, userID)
	if err != nil {
		h.log.Warn("failed to list active matches", logger.UserID(userID.String()), logger.Err(err))
		return
	}
	for _, m := range active {
		if err := h.Handle(ctx, ExitBattleCommand{
			UserID:  userID.String(),
			MatchID: m.ID.String(),
			Reason:  ExitReasonDisconnect,
		}); err != nil {
			h.log.Warn("disconnect forfeit failed",
				logger.MatchID(m.ID.String()), logger.UserID(userID.String()), logger.Err(err))
		}
	}
}
