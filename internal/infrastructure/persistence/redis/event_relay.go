package redis

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/codearena/arena-server/pkg/logger"
)

// channelRoomRelay carries mirrored room emits between server instances.
const channelRoomRelay = "pubsub:room-relay"

// relayFrame is the wire form of one mirrored emit.
type relayFrame struct {
	InstanceID string          `json:"instance_id"`
	Room       string          `json:"room"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}

// RoomRelay mirrors websocket room emits across instances over Redis Pub/Sub.
// A user whose socket lives on another process still receives battle events
// addressed to its rooms. Implements realtime.Relay.
type RoomRelay struct {
	cache      *Cache
	instanceID string
	log        *logger.Logger
}

// NewRoomRelay creates a relay with a unique instance id for self-filtering.
func NewRoomRelay(cache *Cache, log *logger.Logger) *RoomRelay {
	if log == nil {
		log = logger.Default()
	}
	return &RoomRelay{
		cache:      cache,
		instanceID: uuid.NewString(),
		log:        log.With(logger.Component("room_relay")),
	}
}

// Publish mirrors one room emit to peers. Best effort: a publish failure is
// logged, never surfaced, because local delivery already happened.
func (r *RoomRelay) Publish(room, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("relay marshal failed", logger.String("event", event), logger.Err(err))
		return
	}
	frame, err := json.Marshal(relayFrame{
		InstanceID: r.instanceID,
		Room:       room,
		Event:      event,
		Payload:    raw,
	})
	if err != nil {
		return
	}
	if err := r.cache.Client().Publish(context.Background(), channelRoomRelay, frame).Err(); err != nil {
		r.log.Warn("relay publish failed", logger.String("event", event), logger.Err(err))
	}
}

// Run subscribes to the relay channel and replays peer emits through deliver
// until the context is cancelled. Frames from this instance are skipped.
func (r *RoomRelay) Run(ctx context.Context, deliver func(room, event string, payload json.RawMessage)) {
	sub := r.cache.Client().Subscribe(ctx, channelRoomRelay)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame relayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				r.log.Warn("relay frame unmarshal failed", logger.Err(err))
				continue
			}
			if frame.InstanceID == r.instanceID {
				continue
			}
			deliver(frame.Room, frame.Event, frame.Payload)
		}
	}
}
