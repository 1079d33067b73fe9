// Package realtime implements the websocket hub: per-socket clients with
// buffered write pumps, named rooms, and best-effort room fan-out. The hub is
// the concrete notification.Notifier and the local half of the online check.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// sendBufferSize bounds the per-client outbound queue. A client that cannot
// drain it is disconnected rather than allowed to stall the fan-out.
const sendBufferSize = 64

const writeDeadline = 10 * time.Second

// WireMessage is the server→client event envelope.
type WireMessage struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Client is one websocket connection owned by the hub.
type Client struct {
	UserID shared.UserID

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	rooms  map[string]bool
	closed bool
}

func newClient(conn *websocket.Conn, userID shared.UserID) *Client {
	c := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]bool),
	}
	go c.writePump()
	return c
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Rooms returns a snapshot of the rooms the client has joined.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Relay mirrors room emits to peer instances. The redis relay implements it;
// a nil relay means single-instance operation.
type Relay interface {
	Publish(room, event string, payload any)
}

// Hub owns every live socket and the room registry.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	rooms       map[string]map[*Client]bool
	userSockets map[shared.UserID]int

	relay   Relay
	log     *logger.Logger
	metrics *metrics.Metrics

	// Presence callbacks, invoked outside the hub lock when a user's first
	// socket connects or last socket closes.
	onFirstConnect func(shared.UserID)
	onLastClose    func(shared.UserID)
}

// Option configures a Hub.
type Option func(*Hub)

// WithRelay mirrors room emits to peer instances.
func WithRelay(r Relay) Option {
	return func(h *Hub) { h.relay = r }
}

// WithMetrics records connection and event counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithPresenceHooks installs first-connect and last-close callbacks.
func WithPresenceHooks(onFirstConnect, onLastClose func(shared.UserID)) Option {
	return func(h *Hub) {
		h.onFirstConnect = onFirstConnect
		h.onLastClose = onLastClose
	}
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logger.Default()
	}
	h := &Hub{
		clients:     make(map[*Client]bool),
		rooms:       make(map[string]map[*Client]bool),
		userSockets: make(map[shared.UserID]int),
		log:         log.With(logger.Component("realtime")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adopts an upgraded connection. The socket auto-joins its user room
// so user-addressed events reach it immediately.
func (h *Hub) Register(conn *websocket.Conn, userID shared.UserID) *Client {
	c := newClient(conn, userID)

	h.mu.Lock()
	h.clients[c] = true
	h.userSockets[userID]++
	first := h.userSockets[userID] == 1
	h.mu.Unlock()

	h.Join(c, notification.UserRoom(userID))

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}
	if first && h.onFirstConnect != nil {
		h.onFirstConnect(userID)
	}
	h.log.Debug("socket connected", logger.UserID(userID.String()))
	return c
}

// Unregister detaches a client, leaving all its rooms and closing the pump.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	c.mu.Lock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	c.rooms = make(map[string]bool)
	c.mu.Unlock()

	h.userSockets[c.UserID]--
	last := h.userSockets[c.UserID] <= 0
	if last {
		delete(h.userSockets, c.UserID)
	}
	h.mu.Unlock()

	c.closeSend()

	if h.metrics != nil {
		h.metrics.WSConnections.Dec()
	}
	if last && h.onLastClose != nil {
		h.onLastClose(c.UserID)
	}
	h.log.Debug("socket disconnected", logger.UserID(c.UserID.String()))
}

// Join adds the client to a room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	h.mu.Unlock()

	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

// Leave removes the client from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Emit fans a payload out to every socket in a room and mirrors it to peer
// instances. Implements notification.Notifier; delivery is best-effort.
func (h *Hub) Emit(room, event string, payload any) {
	h.EmitLocal(room, event, payload)
	if h.relay != nil {
		h.relay.Publish(room, event, payload)
	}
}

// EmitLocal delivers to local sockets only. The relay replay path uses it to
// avoid re-mirroring a mirrored emit.
func (h *Hub) EmitLocal(room, event string, payload any) {
	data, err := json.Marshal(WireMessage{
		Event:     event,
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.log.Error("emit marshal failed", logger.String("event", event), logger.Err(err))
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	if h.metrics != nil && len(members) > 0 {
		h.metrics.WSEvents.WithLabelValues(event).Inc()
	}

	for _, c := range members {
		select {
		case c.send <- data:
		default:
			// Slow client: drop the connection, not the fan-out.
			h.log.Warn("dropping slow socket", logger.UserID(c.UserID.String()))
			h.Unregister(c)
		}
	}
}

// IsConnected reports whether the user has a live socket on this instance.
// Implements session.PresenceSource.
func (h *Hub) IsConnected(userID shared.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userSockets[userID] > 0
}

// ClientCount returns the number of live sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomMembers returns the user ids currently joined to a room.
func (h *Hub) RoomMembers(room string) []shared.UserID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]shared.UserID, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		ids = append(ids, c.UserID)
	}
	return ids
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
