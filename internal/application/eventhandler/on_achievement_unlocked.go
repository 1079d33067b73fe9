package eventhandler

import (
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED
// Pushes the unlock toast to the user's sockets.
// ═══════════════════════════════════════════════════════════════════════════

// OnAchievementUnlockedHandler notifies a user about a fresh unlock.
type OnAchievementUnlockedHandler struct {
	notifier notification.Notifier
	log      *logger.Logger
}

// NewOnAchievementUnlockedHandler creates the achievement notification handler.
func NewOnAchievementUnlockedHandler(notifier notification.Notifier, log *logger.Logger) *OnAchievementUnlockedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnAchievementUnlockedHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_achievement_unlocked")),
	}
}

// EventType returns the event this handler subscribes to.
func (h *OnAchievementUnlockedHandler) EventType() shared.EventType {
	return shared.EventAchievementUnlocked
}

// Handle implements shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		h.log.Warn("unexpected event type", logger.String("event_type", string(event.EventType())))
		return nil
	}

	h.notifier.Emit(notification.UserRoom(shared.UserID(ev.UserID)), notification.EventAchievementUnlocked, notification.Stamp(map[string]any{
		"type":       ev.AchievementType,
		"title":      ev.Title,
		"exp_reward": ev.ExpReward,
	}))

	h.log.Info("achievement unlock delivered",
		logger.UserID(ev.UserID),
		logger.String("achievement", ev.AchievementType))
	return nil
}
