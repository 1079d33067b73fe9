// Package eventhandler contains the reactive side of the application:
// handlers the dispatcher invokes after a command transaction commits. They
// run side effects only (socket fan-out, snapshot refreshes) and never touch
// the ledger, so a failed handler can be retried or dropped without
// corrupting state.
package eventhandler

import (
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON RANK CHANGED
// Pushes a rank_changed frame to the promoted (or demoted) user's sockets.
// ═══════════════════════════════════════════════════════════════════════════

// OnRankChangedHandler notifies a user when their rank tier changes.
type OnRankChangedHandler struct {
	notifier notification.Notifier
	log      *logger.Logger
}

// NewOnRankChangedHandler creates the rank notification handler.
func NewOnRankChangedHandler(notifier notification.Notifier, log *logger.Logger) *OnRankChangedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnRankChangedHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_rank_changed")),
	}
}

// EventType returns the event this handler subscribes to.
func (h *OnRankChangedHandler) EventType() shared.EventType {
	return shared.EventRankChanged
}

// Handle implements shared.EventHandler.
func (h *OnRankChangedHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.RankChangedEvent)
	if !ok {
		h.log.Warn("unexpected event type", logger.String("event_type", string(event.EventType())))
		return nil
	}

	h.notifier.Emit(notification.UserRoom(shared.UserID(ev.UserID)), notification.EventRankChanged, notification.Stamp(map[string]any{
		"old_rank": ev.OldRankName,
		"new_rank": ev.NewRankName,
		"exp":      ev.Exp,
		"promoted": ev.Promoted(),
	}))

	h.log.Info("rank change delivered",
		logger.UserID(ev.UserID),
		logger.RankName(ev.NewRankName),
		logger.Bool("promoted", ev.Promoted()))
	return nil
}
