// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Attempt events
	EventAttemptRecorded   EventType = "puzzle.attempt_recorded"
	EventLevelCompleted    EventType = "puzzle.level_completed"
	EventDifficultyChanged EventType = "puzzle.difficulty_changed"

	// Progression events
	EventExpChanged          EventType = "progression.exp_changed"
	EventRankChanged         EventType = "progression.rank_changed"
	EventStreakUpdated       EventType = "progression.streak_updated"
	EventStreakBroken        EventType = "progression.streak_broken"
	EventAchievementUnlocked EventType = "progression.achievement_unlocked"

	// Matchmaking events
	EventQueueJoined  EventType = "matchmaking.queue_joined"
	EventQueueLeft    EventType = "matchmaking.queue_left"
	EventMatchFormed  EventType = "matchmaking.match_formed"

	// Battle events
	EventMatchCreated   EventType = "battle.match_created"
	EventMatchStarted   EventType = "battle.match_started"
	EventMatchCompleted EventType = "battle.match_completed"
	EventMatchCancelled EventType = "battle.match_cancelled"
	EventBattleForfeit  EventType = "battle.forfeit"

	// Challenge events
	EventChallengeCreated  EventType = "battle.challenge_created"
	EventChallengeAccepted EventType = "battle.challenge_accepted"
	EventChallengeDeclined EventType = "battle.challenge_declined"

	// Session events
	EventSessionStarted EventType = "session.started"
	EventSessionEnded   EventType = "session.ended"

	// System events
	EventLeaderboardRefreshed EventType = "system.leaderboard_refreshed"
	EventKernelDegraded       EventType = "system.kernel_degraded"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Attempt Events
// ═══════════════════════════════════════════════════════════════════════════

// AttemptRecordedEvent is emitted after an attempt transaction commits.
type AttemptRecordedEvent struct {
	BaseEvent
	UserID        string  `json:"user_id"`
	LevelID       string  `json:"level_id"`
	LessonID      string  `json:"lesson_id,omitempty"`
	Success       bool    `json:"success"`
	ExpGained     int     `json:"exp_gained"`
	NewBeta       float64 `json:"new_beta"`
	NewDifficulty string  `json:"new_difficulty"`
	KernelSource  string  `json:"kernel_source"`
}

// Payload implements Event interface.
func (e AttemptRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"level_id":       e.LevelID,
		"lesson_id":      e.LessonID,
		"success":        e.Success,
		"exp_gained":     e.ExpGained,
		"new_beta":       e.NewBeta,
		"new_difficulty": e.NewDifficulty,
		"kernel_source":  e.KernelSource,
	}
}

// NewAttemptRecordedEvent creates a new AttemptRecordedEvent.
func NewAttemptRecordedEvent(userID, levelID, lessonID string, success bool, expGained int, newBeta float64, newDifficulty, kernelSource string) AttemptRecordedEvent {
	return AttemptRecordedEvent{
		BaseEvent:     NewBaseEvent(EventAttemptRecorded, userID),
		UserID:        userID,
		LevelID:       levelID,
		LessonID:      lessonID,
		Success:       success,
		ExpGained:     expGained,
		NewBeta:       newBeta,
		NewDifficulty: newDifficulty,
		KernelSource:  kernelSource,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// ExpChangedEvent is emitted whenever a user's exp total moves.
type ExpChangedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Delta    int    `json:"delta"`
	NewTotal int    `json:"new_total"`
	Source   string `json:"source"` // e.g., "attempt", "battle_win", "hint", "achievement"
}

// Payload implements Event interface.
func (e ExpChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"delta":     e.Delta,
		"new_total": e.NewTotal,
		"source":    e.Source,
	}
}

// NewExpChangedEvent creates a new ExpChangedEvent.
func NewExpChangedEvent(userID string, delta, newTotal int, source string) ExpChangedEvent {
	return ExpChangedEvent{
		BaseEvent: NewBaseEvent(EventExpChanged, userID),
		UserID:    userID,
		Delta:     delta,
		NewTotal:  newTotal,
		Source:    source,
	}
}

// RankChangedEvent is emitted when a user's rank tier changes.
type RankChangedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	OldRankName  string `json:"old_rank_name"`
	NewRankName  string `json:"new_rank_name"`
	OldRankIndex int    `json:"old_rank_index"`
	NewRankIndex int    `json:"new_rank_index"`
	Exp          int    `json:"exp"`
}

// Payload implements Event interface.
func (e RankChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"old_rank_name":  e.OldRankName,
		"new_rank_name":  e.NewRankName,
		"old_rank_index": e.OldRankIndex,
		"new_rank_index": e.NewRankIndex,
		"exp":            e.Exp,
	}
}

// NewRankChangedEvent creates a new RankChangedEvent.
func NewRankChangedEvent(userID, oldName, newName string, oldIndex, newIndex, exp int) RankChangedEvent {
	return RankChangedEvent{
		BaseEvent:    NewBaseEvent(EventRankChanged, userID),
		UserID:       userID,
		OldRankName:  oldName,
		NewRankName:  newName,
		OldRankIndex: oldIndex,
		NewRankIndex: newIndex,
		Exp:          exp,
	}
}

// Promoted returns true if the rank moved up.
func (e RankChangedEvent) Promoted() bool {
	return e.NewRankIndex > e.OldRankIndex
}

// AchievementUnlockedEvent is emitted once per unlocked achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	AchievementType string `json:"achievement_type"`
	Title           string `json:"title"`
	ExpReward       int    `json:"exp_reward"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_type": e.AchievementType,
		"title":            e.Title,
		"exp_reward":       e.ExpReward,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementType, title string, expReward int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:          userID,
		AchievementType: achievementType,
		Title:           title,
		ExpReward:       expReward,
	}
}

// StreakBrokenEvent is emitted when a success streak resets to zero.
type StreakBrokenEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID string, previousStreak int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, userID),
		UserID:         userID,
		PreviousStreak: previousStreak,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Matchmaking Events
// ═══════════════════════════════════════════════════════════════════════════

// QueueJoinedEvent is emitted when a player enters the matchmaking queue.
type QueueJoinedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	MatchType string `json:"match_type"`
	Language  string `json:"language"`
	MatchSize int    `json:"match_size"`
	Source    string `json:"source"` // "socket" or "http"
}

// Payload implements Event interface.
func (e QueueJoinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"match_type": e.MatchType,
		"language":   e.Language,
		"match_size": e.MatchSize,
		"source":     e.Source,
	}
}

// NewQueueJoinedEvent creates a new QueueJoinedEvent.
func NewQueueJoinedEvent(userID, matchType, language string, matchSize int, source string) QueueJoinedEvent {
	return QueueJoinedEvent{
		BaseEvent: NewBaseEvent(EventQueueJoined, userID),
		UserID:    userID,
		MatchType: matchType,
		Language:  language,
		MatchSize: matchSize,
		Source:    source,
	}
}

// MatchFormedEvent is emitted when the matcher accepts a cluster.
type MatchFormedEvent struct {
	BaseEvent
	MatchID    string   `json:"match_id"`
	UserIDs    []string `json:"user_ids"`
	MatchType  string   `json:"match_type"`
	MatchScore float64  `json:"match_score"`
	ClusterID  string   `json:"cluster_id"`
	Phase      int      `json:"phase"`
}

// Payload implements Event interface.
func (e MatchFormedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"match_id":    e.MatchID,
		"user_ids":    e.UserIDs,
		"match_type":  e.MatchType,
		"match_score": e.MatchScore,
		"cluster_id":  e.ClusterID,
		"phase":       e.Phase,
	}
}

// NewMatchFormedEvent creates a new MatchFormedEvent.
func NewMatchFormedEvent(matchID string, userIDs []string, matchType string, matchScore float64, clusterID string, phase int) MatchFormedEvent {
	return MatchFormedEvent{
		BaseEvent:  NewBaseEvent(EventMatchFormed, matchID),
		MatchID:    matchID,
		UserIDs:    userIDs,
		MatchType:  matchType,
		MatchScore: matchScore,
		ClusterID:  clusterID,
		Phase:      phase,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Battle Events
// ═══════════════════════════════════════════════════════════════════════════

// MatchCompletedEvent is emitted after an outcome transaction commits.
type MatchCompletedEvent struct {
	BaseEvent
	MatchID         string   `json:"match_id"`
	MatchType       string   `json:"match_type"`
	WinnerIDs       []string `json:"winner_ids"`
	LoserIDs        []string `json:"loser_ids"`
	DurationSeconds int      `json:"duration_seconds"`
	Reason          string   `json:"reason"` // "submission", "forfeit", "disconnect"
}

// Payload implements Event interface.
func (e MatchCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"match_id":         e.MatchID,
		"match_type":       e.MatchType,
		"winner_ids":       e.WinnerIDs,
		"loser_ids":        e.LoserIDs,
		"duration_seconds": e.DurationSeconds,
		"reason":           e.Reason,
	}
}

// NewMatchCompletedEvent creates a new MatchCompletedEvent.
func NewMatchCompletedEvent(matchID, matchType string, winnerIDs, loserIDs []string, durationSeconds int, reason string) MatchCompletedEvent {
	return MatchCompletedEvent{
		BaseEvent:       NewBaseEvent(EventMatchCompleted, matchID),
		MatchID:         matchID,
		MatchType:       matchType,
		WinnerIDs:       winnerIDs,
		LoserIDs:        loserIDs,
		DurationSeconds: durationSeconds,
		Reason:          reason,
	}
}

// MatchCancelledEvent is emitted when a pending match is cancelled.
type MatchCancelledEvent struct {
	BaseEvent
	MatchID string   `json:"match_id"`
	UserIDs []string `json:"user_ids"`
	Reason  string   `json:"reason"` // "kick_unready", "superseded", "queue_abandon"
}

// Payload implements Event interface.
func (e MatchCancelledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"match_id": e.MatchID,
		"user_ids": e.UserIDs,
		"reason":   e.Reason,
	}
}

// NewMatchCancelledEvent creates a new MatchCancelledEvent.
func NewMatchCancelledEvent(matchID string, userIDs []string, reason string) MatchCancelledEvent {
	return MatchCancelledEvent{
		BaseEvent: NewBaseEvent(EventMatchCancelled, matchID),
		MatchID:   matchID,
		UserIDs:   userIDs,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// KernelDegradedEvent is emitted when a kernel call fell through a fallback tier.
type KernelDegradedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Source string `json:"source"` // "warm_service", "subprocess", "defaults"
	Cause  string `json:"cause"`
}

// Payload implements Event interface.
func (e KernelDegradedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"source":  e.Source,
		"cause":   e.Cause,
	}
}

// NewKernelDegradedEvent creates a new KernelDegradedEvent.
func NewKernelDegradedEvent(userID, source, cause string) KernelDegradedEvent {
	return KernelDegradedEvent{
		BaseEvent: NewBaseEvent(EventKernelDegraded, userID),
		UserID:    userID,
		Source:    source,
		Cause:     cause,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
