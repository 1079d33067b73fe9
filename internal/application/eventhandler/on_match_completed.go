package eventhandler

import (
	"context"
	"time"

	"github.com/codearena/arena-server/internal/domain/leaderboard"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON MATCH COMPLETED
// Refreshes the multiplayer board so a settled battle shows up in standings
// without waiting for the TTL sweep.
// ═══════════════════════════════════════════════════════════════════════════

// BoardRefresher rebuilds one leaderboard snapshot.
type BoardRefresher interface {
	Refresh(ctx context.Context, board leaderboard.BoardType) error
}

// OnMatchCompletedHandler keeps battle-derived standings current.
type OnMatchCompletedHandler struct {
	boards  BoardRefresher
	timeout time.Duration
	log     *logger.Logger
}

// NewOnMatchCompletedHandler creates the post-settlement handler.
func NewOnMatchCompletedHandler(boards BoardRefresher, log *logger.Logger) *OnMatchCompletedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnMatchCompletedHandler{
		boards:  boards,
		timeout: 10 * time.Second,
		log:     log.With(logger.Component("on_match_completed")),
	}
}

// EventType returns the event this handler subscribes to.
func (h *OnMatchCompletedHandler) EventType() shared.EventType {
	return shared.EventMatchCompleted
}

// Handle implements shared.EventHandler.
func (h *OnMatchCompletedHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.MatchCompletedEvent)
	if !ok {
		h.log.Warn("unexpected event type", logger.String("event_type", string(event.EventType())))
		return nil
	}
	if h.boards == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.boards.Refresh(ctx, leaderboard.BoardMultiplayer); err != nil {
		h.log.Warn("multiplayer board refresh failed",
			logger.MatchID(ev.MatchID), logger.Err(err))
		// The TTL sweep picks it up; no retry here.
		return nil
	}

	h.log.Debug("multiplayer board refreshed",
		logger.MatchID(ev.MatchID),
		logger.String("reason", ev.Reason))
	return nil
}
