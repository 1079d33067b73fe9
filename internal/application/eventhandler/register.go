package eventhandler

import (
	"fmt"

	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/infrastructure/messaging"
	"github.com/codearena/arena-server/pkg/logger"
)

// RegisterAll wires every application event handler into the bus. Called
// once at startup, before the first publish.
func RegisterAll(bus *messaging.Bus, notifier notification.Notifier, boards BoardRefresher, log *logger.Logger) error {
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}

	rank := NewOnRankChangedHandler(notifier, log)
	if err := bus.Register(rank.EventType(), "notify_rank_changed", rank.Handle); err != nil {
		return fmt.Errorf("failed to register rank handler: %w", err)
	}

	achievement := NewOnAchievementUnlockedHandler(notifier, log)
	if err := bus.Register(achievement.EventType(), "notify_achievement_unlocked", achievement.Handle); err != nil {
		return fmt.Errorf("failed to register achievement handler: %w", err)
	}

	completed := NewOnMatchCompletedHandler(boards, log)
	if err := bus.Register(completed.EventType(), "refresh_multiplayer_board", completed.Handle); err != nil {
		return fmt.Errorf("failed to register match completed handler: %w", err)
	}
	return nil
}
