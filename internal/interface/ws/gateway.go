// Package ws is the realtime gateway: it upgrades authenticated requests,
// feeds client frames into the application layer, and leaves fan-out to the
// hub. One goroutine per socket reads; the hub's write pump sends.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codearena/arena-server/internal/application/command"
	"github.com/codearena/arena-server/internal/application/query"
	"github.com/codearena/arena-server/internal/domain/notification"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/infrastructure/realtime"
	"github.com/codearena/arena-server/internal/interface/auth"
	"github.com/codearena/arena-server/pkg/logger"
)

// Client→server operations.
const (
	opJoinMatchmaking  = "join_matchmaking"
	opLeaveMatchmaking = "leave_matchmaking"
	opJoinBattle       = "join_battle"
	opReady            = "ready"
	opSubmitSolution   = "submit_solution"
	opExitBattle       = "exit_battle"
	opBattleUpdate     = "battle_update"
	opHeartbeat        = "heartbeat"
)

// readDeadline bounds silence on a socket; the client heartbeat refreshes it.
const readDeadline = 120 * time.Second

const maxFrameBytes = 64 << 10

// clientFrame is the client→server message envelope.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handlers bundles the application operations the gateway drives.
type Handlers struct {
	JoinQueue *command.JoinQueueHandler
	Queue     command.TicketQueue
	Ready     *command.ReadyBattleHandler
	Submit    *command.SubmitSolutionHandler
	Exit      *command.ExitBattleHandler
	Sessions  *command.TrackSessionHandler
	Battles   *query.BattleHandler
}

// Gateway owns the upgrade endpoint and the per-socket read loops.
type Gateway struct {
	hub      *realtime.Hub
	verifier *auth.Verifier
	handlers Handlers
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewGateway creates the websocket gateway.
func NewGateway(hub *realtime.Hub, verifier *auth.Verifier, handlers Handlers, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Default()
	}
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		handlers: handlers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The bearer token is the authentication boundary; browsers
			// cannot set Authorization on websockets, hence the query token.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.With(logger.Component("ws")),
	}
}

// ServeHTTP upgrades the connection after verifying the token.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	identity, err := g.verifier.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", logger.Err(err))
		return
	}

	client := g.hub.Register(conn, identity.UserID)
	g.touchSession(identity.UserID)
	go g.readLoop(conn, client, identity.UserID)
}

// readLoop consumes frames until the socket dies, then runs the disconnect
// sequence: unregister, dequeue, and forfeit if no other socket remains.
func (g *Gateway) readLoop(conn *websocket.Conn, client *realtime.Client, userID shared.UserID) {
	defer g.disconnect(conn, client, userID)

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			g.emitError(userID, "invalid_frame", "frame is not valid JSON")
			continue
		}
		g.dispatch(client, userID, frame)
	}
}

func (g *Gateway) disconnect(conn *websocket.Conn, client *realtime.Client, userID shared.UserID) {
	rooms := client.Rooms()
	g.hub.Unregister(client)
	_ = conn.Close()

	// Another tab may still hold a socket; only a fully offline user is
	// pulled from the queue and forfeited.
	if g.hub.IsConnected(userID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if g.handlers.Queue != nil {
		g.handlers.Queue.Dequeue(ctx, userID)
	}
	inBattle := false
	for _, room := range rooms {
		if room == notification.UserRoom(userID) {
			continue
		}
		inBattle = true
	}
	if inBattle && g.handlers.Exit != nil {
		g.handlers.Exit.ForfeitAll(ctx, userID)
	}
	g.log.Debug("socket session ended", logger.UserID(userID.String()))
}

// dispatch routes one client frame.
func (g *Gateway) dispatch(client *realtime.Client, userID shared.UserID, frame clientFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch frame.Event {
	case opJoinMatchmaking:
		g.handleJoinMatchmaking(ctx, userID, frame.Data)
	case opLeaveMatchmaking:
		g.handleLeaveMatchmaking(ctx, userID)
	case opJoinBattle:
		g.handleJoinBattle(ctx, client, userID, frame.Data)
	case opReady:
		g.handleReady(ctx, userID, frame.Data)
	case opSubmitSolution:
		g.handleSubmit(ctx, userID, frame.Data)
	case opExitBattle:
		g.handleExitBattle(ctx, client, userID, frame.Data)
	case opBattleUpdate:
		g.handleBattleUpdate(client, userID, frame.Data)
	case opHeartbeat:
		g.touchSession(userID)
	default:
		g.emitError(userID, "unknown_op", "unsupported event: "+frame.Event)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Frame handlers
// ─────────────────────────────────────────────────────────────────────────────

type joinMatchmakingData struct {
	Language  string `json:"language"`
	MatchSize int    `json:"match_size,omitempty"`
}

func (g *Gateway) handleJoinMatchmaking(ctx context.Context, userID shared.UserID, data json.RawMessage) {
	var d joinMatchmakingData
	if err := json.Unmarshal(data, &d); err != nil {
		g.emitError(userID, "invalid_frame", "bad join_matchmaking payload")
		return
	}

	_, err := g.handlers.JoinQueue.Handle(ctx, command.JoinQueueCommand{
		UserID:    userID.String(),
		Language:  d.Language,
		MatchSize: d.MatchSize,
		Source:    command.QueueSourceSocket,
	})
	if err != nil {
		g.emitOpError(userID, err)
		return
	}
	g.hub.Emit(notification.UserRoom(userID), notification.EventQueueUpdate, notification.Stamp(map[string]any{
		"status": "queued",
	}))
}

func (g *Gateway) handleLeaveMatchmaking(ctx context.Context, userID shared.UserID) {
	removed := false
	if g.handlers.Queue != nil {
		removed = g.handlers.Queue.Dequeue(ctx, userID)
	}
	g.hub.Emit(notification.UserRoom(userID), notification.EventQueueUpdate, notification.Stamp(map[string]any{
		"status":  "left",
		"removed": removed,
	}))
}

type matchData struct {
	MatchID string `json:"match_id"`
}

func (g *Gateway) handleJoinBattle(ctx context.Context, client *realtime.Client, userID shared.UserID, data json.RawMessage) {
	var d matchData
	if err := json.Unmarshal(data, &d); err != nil || d.MatchID == "" {
		g.emitError(userID, "invalid_frame", "bad join_battle payload")
		return
	}

	// Participant check; non-participants cannot watch the room.
	if _, err := g.handlers.Battles.Get(ctx, userID.String(), d.MatchID); err != nil {
		g.emitOpError(userID, err)
		return
	}

	room := notification.BattleRoom(shared.MatchID(d.MatchID))
	g.hub.Join(client, room)
	g.hub.Emit(room, notification.EventPlayerJoinedBattle, notification.Stamp(map[string]any{
		"match_id": d.MatchID,
		"user_id":  userID.String(),
	}))
}

func (g *Gateway) handleReady(ctx context.Context, userID shared.UserID, data json.RawMessage) {
	var d matchData
	if err := json.Unmarshal(data, &d); err != nil || d.MatchID == "" {
		g.emitError(userID, "invalid_frame", "bad ready payload")
		return
	}

	if _, err := g.handlers.Ready.Handle(ctx, command.ReadyBattleCommand{
		UserID:  userID.String(),
		MatchID: d.MatchID,
	}); err != nil {
		g.emitOpError(userID, err)
	}
}

type submitData struct {
	MatchID string `json:"match_id"`
	Code    string `json:"code"`
}

func (g *Gateway) handleSubmit(ctx context.Context, userID shared.UserID, data json.RawMessage) {
	var d submitData
	if err := json.Unmarshal(data, &d); err != nil || d.MatchID == "" {
		g.emitError(userID, "invalid_frame", "bad submit_solution payload")
		return
	}

	res, err := g.handlers.Submit.Handle(ctx, command.SubmitSolutionCommand{
		UserID:  userID.String(),
		MatchID: d.MatchID,
		Code:    d.Code,
	})
	if err != nil {
		g.emitOpError(userID, err)
		return
	}
	if !res.Accepted {
		// Winner announcements ride the battle room; a rejection is the
		// submitter's business only.
		g.hub.Emit(notification.UserRoom(userID), notification.EventBattleUpdate, notification.Stamp(map[string]any{
			"match_id": d.MatchID,
			"accepted": false,
		}))
	}
}

func (g *Gateway) handleExitBattle(ctx context.Context, client *realtime.Client, userID shared.UserID, data json.RawMessage) {
	var d matchData
	if err := json.Unmarshal(data, &d); err != nil || d.MatchID == "" {
		g.emitError(userID, "invalid_frame", "bad exit_battle payload")
		return
	}

	err := g.handlers.Exit.Handle(ctx, command.ExitBattleCommand{
		UserID:  userID.String(),
		MatchID: d.MatchID,
		Reason:  command.ExitReasonForfeit,
	})
	if err != nil {
		g.emitOpError(userID, err)
		return
	}
	g.hub.Leave(client, notification.BattleRoom(shared.MatchID(d.MatchID)))
}

type battleUpdateData struct {
	MatchID string         `json:"match_id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// handleBattleUpdate relays a presence/typing update to the battle room. Only
// sockets that joined the room may broadcast into it.
func (g *Gateway) handleBattleUpdate(client *realtime.Client, userID shared.UserID, data json.RawMessage) {
	var d battleUpdateData
	if err := json.Unmarshal(data, &d); err != nil || d.MatchID == "" {
		g.emitError(userID, "invalid_frame", "bad battle_update payload")
		return
	}

	room := notification.BattleRoom(shared.MatchID(d.MatchID))
	member := false
	for _, joined := range client.Rooms() {
		if joined == room {
			member = true
			break
		}
	}
	if !member {
		g.emitError(userID, "forbidden", "join the battle before broadcasting")
		return
	}

	payload := d.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payload["match_id"] = d.MatchID
	payload["user_id"] = userID.String()
	g.hub.Emit(room, notification.EventBattleUpdate, notification.Stamp(payload))
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (g *Gateway) touchSession(userID shared.UserID) {
	if g.handlers.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.handlers.Sessions.Heartbeat(ctx, command.HeartbeatCommand{UserID: userID.String()}); err != nil {
		g.log.Warn("session heartbeat failed", logger.UserID(userID.String()), logger.Err(err))
	}
}

func (g *Gateway) emitError(userID shared.UserID, code, message string) {
	g.hub.Emit(notification.UserRoom(userID), "error", notification.Stamp(map[string]any{
		"code":    code,
		"message": message,
	}))
}

func (g *Gateway) emitOpError(userID shared.UserID, err error) {
	var derr *shared.DomainError
	if errors.As(err, &derr) {
		g.emitError(userID, derr.Domain+"_error", derr.Message)
		return
	}
	g.emitError(userID, "internal_error", "operation failed")
}
