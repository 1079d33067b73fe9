package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// ErrUserIDEmpty is returned when the user ID is empty.
var ErrUserIDEmpty = errors.New("presence: user ID cannot be empty")

// channelPresence is the Pub/Sub channel for presence changes.
const channelPresence = "pubsub:presence"

// keyPresenceAll is the sorted set of connected users scored by last seen.
const keyPresenceAll = "presence:all"

// PresenceEvent is a connect/disconnect notification for Pub/Sub.
type PresenceEvent struct {
	UserID    string    `json:"user_id"`
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceTracker mirrors live websocket connections into Redis so every
// server instance can answer "does this user have a socket anywhere". The
// realtime hub answers the local half directly; the tracker covers peers.
//
// Layout:
//   - Each connected user has a key "presence:{user_id}" with TTL
//   - A sorted set "presence:all" tracks connected users by last seen
//   - Pub/Sub channel "pubsub:presence" broadcasts connect/disconnect
type PresenceTracker struct {
	cache *Cache
}

// NewPresenceTracker creates a new PresenceTracker.
func NewPresenceTracker(cache *Cache) *PresenceTracker {
	return &PresenceTracker{cache: cache}
}

// Connected marks a user as having a live socket. Called on every websocket
// connect and refreshed on heartbeats.
func (t *PresenceTracker) Connected(ctx context.Context, userID shared.UserID) error {
	if userID.IsEmpty() {
		return ErrUserIDEmpty
	}

	now := time.Now().UTC()
	pipe := t.cache.Client().Pipeline()
	pipe.Set(ctx, PresenceKey(userID.String()), now.Format(time.RFC3339), TTLPresence)
	pipe.ZAdd(ctx, keyPresenceAll, redis.Z{
		Score:  float64(now.Unix()),
		Member: userID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	t.publish(ctx, PresenceEvent{UserID: userID.String(), Connected: true, Timestamp: now})
	return nil
}

// Disconnected clears a user's presence. Called when the last local socket
// of the user closes.
func (t *PresenceTracker) Disconnected(ctx context.Context, userID shared.UserID) error {
	if userID.IsEmpty() {
		return ErrUserIDEmpty
	}

	pipe := t.cache.Client().Pipeline()
	pipe.Del(ctx, PresenceKey(userID.String()))
	pipe.ZRem(ctx, keyPresenceAll, userID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	t.publish(ctx, PresenceEvent{UserID: userID.String(), Connected: false, Timestamp: time.Now().UTC()})
	return nil
}

// IsConnected reports whether the user has a live socket on any instance.
func (t *PresenceTracker) IsConnected(ctx context.Context, userID shared.UserID) (bool, error) {
	if userID.IsEmpty() {
		return false, ErrUserIDEmpty
	}
	return t.cache.Exists(ctx, PresenceKey(userID.String()))
}

// ConnectedSet filters the given ids down to those with a live socket.
func (t *PresenceTracker) ConnectedSet(ctx context.Context, userIDs []shared.UserID) (map[shared.UserID]bool, error) {
	connected := make(map[shared.UserID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return connected, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = PresenceKey(id.String())
	}

	values, err := t.cache.Client().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, val := range values {
		if val != nil {
			connected[userIDs[i]] = true
		}
	}
	return connected, nil
}

// ConnectedCount returns how many users are currently connected.
func (t *PresenceTracker) ConnectedCount(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-TTLPresence).Unix()
	return t.cache.Client().ZCount(ctx, keyPresenceAll,
		strconv.FormatInt(cutoff, 10), "+inf").Result()
}

// CleanupStale removes sorted-set entries whose presence key has expired.
// Run periodically as a background job.
func (t *PresenceTracker) CleanupStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-TTLPresence).Unix()
	return t.cache.Client().ZRemRangeByScore(ctx, keyPresenceAll,
		"-inf", strconv.FormatInt(cutoff, 10)).Result()
}

// Subscribe creates a subscription to presence changes. Remember to call
// Close() on the returned PubSub when done.
func (t *PresenceTracker) Subscribe(ctx context.Context) *redis.PubSub {
	return t.cache.Client().Subscribe(ctx, channelPresence)
}

func (t *PresenceTracker) publish(ctx context.Context, event PresenceEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	// Fire and forget; presence fan-out is best effort.
	_ = t.cache.Client().Publish(ctx, channelPresence, data).Err()
}
