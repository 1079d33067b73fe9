package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/codearena/arena-server/internal/domain/battle"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// KICK UNREADY COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// KickUnreadyHandler cancels pending matches that outlived the ready window
// and penalizes every enrolled participant. The scheduler drives it.
type KickUnreadyHandler struct {
	uow      UnitOfWork
	matches  battle.MatchRepository
	notifier notification.Notifier
	events   shared.EventPublisher
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewKickUnreadyHandler creates the sweep handler.
func NewKickUnreadyHandler(uow UnitOfWork, matches battle.MatchRepository, notifier notification.Notifier, events shared.EventPublisher, log *logger.Logger, m *metrics.Metrics) *KickUnreadyHandler {
	if log == nil {
		log = logger.Default()
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &KickUnreadyHandler{
		uow:      uow,
		matches:  matches,
		notifier: notifier,
		events:   events,
		log:      log.With(logger.Component("kick_unready")),
		metrics:  m,
	}
}

// Sweep cancels every expired pending match. Each match settles in its own
// transaction so one failure does not block the rest. Returns the number of
// matches cancelled.
func (h *KickUnreadyHandler) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-battle.ReadyWindow)
	stale, err := h.matches.StalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale pending matches: %w", err)
	}

	kicked := 0
	for _, m := range stale {
		if err := h.Kick(ctx, m.ID); err != nil {
			h.log.Warn("kick failed", logger.MatchID(m.ID.String()), logger.Err(err))
			continue
		}
		kicked++
	}
	if kicked > 0 {
		h.log.Info("unready matches kicked", logger.Int("count", kicked))
	}
	return kicked, nil
}

// Kick cancels one expired pending match and debits the forfeit penalty from
// each enrolled participant.
func (h *KickUnreadyHandler) Kick(ctx context.Context, matchID shared.MatchID) error {
	var (
		userIDs       []string
		pendingEvents []shared.Event
		kicked        bool
	)

	err := h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		match, err := r.Matches.GetForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if !match.ReadyExpired(now) {
			// Raced with a ready or another sweep.
			return nil
		}
		if err := match.Cancel(now); err != nil {
			return err
		}
		if err := r.Matches.Save(ctx, match); err != nil {
			return fmt.Errorf("failed to save match: %w", err)
		}

		participants, err := r.Participants.ListByMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}
		sort.Slice(participants, func(i, j int) bool { return participants[i].UserID < participants[j].UserID })

		for _, p := range participants {
			stats, err := r.Stats.GetOrCreateForUpdate(ctx, p.UserID)
			if err != nil {
				return fmt.Errorf("failed to lock statistics: %w", err)
			}
			stats.AddExp(-battle.ForfeitPenaltyExp)
			if err := r.Stats.Save(ctx, stats); err != nil {
				return fmt.Errorf("failed to save statistics: %w", err)
			}
			p.MarkLoser(battle.ForfeitPenaltyExp)
			if err := r.Participants.Save(ctx, p); err != nil {
				return fmt.Errorf("failed to save participant: %w", err)
			}
			userIDs = append(userIDs, p.UserID.String())
			pendingEvents = append(pendingEvents,
				shared.NewExpChangedEvent(p.UserID.String(), -battle.ForfeitPenaltyExp, stats.Exp, "kick_unready"))
		}

		kicked = true
		return nil
	})
	if err != nil || !kicked {
		return err
	}

	h.notifier.Emit(notification.BattleRoom(matchID), notification.EventBattleUpdate, notification.Stamp(map[string]any{
		"match_id": matchID.String(),
		"status":   string(battle.StatusCancelled),
		"reason":   "ready_window_expired",
	}))
	pendingEvents = append(pendingEvents,
		shared.NewMatchCancelledEvent(matchID.String(), userIDs, "ready_window_expired"))
	for _, ev := range pendingEvents {
		if err := h.events.Publish(ev); err != nil {
			h.log.Warn("event publish failed", logger.Err(err))
		}
	}
	if h.metrics != nil {
		h.metrics.BattlesCompleted.WithLabelValues("kick").Inc()
	}
	return nil
}
