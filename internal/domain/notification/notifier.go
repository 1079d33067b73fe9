// Package notification defines the room-addressed event fan-out contract the
// battle coordinator and matchmaking depend on. The socket layer implements
// it; tests use a capturing stub.
package notification

import (
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// Event names carried on the wire.
const (
	EventMatchFound          = "match_found"
	EventQueueUpdate         = "matchmaking_queue_update"
	EventParticipantsUpdated = "matchmaking_participants_updated"
	EventBattleJoined        = "battle_joined"
	EventPlayerJoinedBattle  = "player_joined_battle"
	EventPlayerLeftBattle    = "player_left_battle"
	EventBattleUpdate        = "battle_update"
	EventOpponentExited      = "opponent_exited"
	EventBattleCompleted     = "battle_completed"
	EventChallengeReceived   = "challenge_received"
	EventChallengeDeclined   = "challenge_declined"
	EventRankChanged         = "rank_changed"
	EventAchievementUnlocked = "achievement_unlocked"
)

// BattleRoom addresses everyone in a match.
func BattleRoom(matchID shared.MatchID) string {
	return fmt.Sprintf("battle:%s", matchID)
}

// UserRoom addresses one user's sockets. Every socket auto-joins its user
// room on connect.
func UserRoom(userID shared.UserID) string {
	return fmt.Sprintf("user:%s", userID)
}

// MatchmakingRoom addresses the waiters of a forming match.
func MatchmakingRoom(matchID shared.MatchID) string {
	return fmt.Sprintf("matchmaking:%s", matchID)
}

// Notifier is the narrow fan-out interface injected into the coordinator.
// Delivery is best-effort and non-blocking.
type Notifier interface {
	// Emit fans a JSON-serializable payload out to every socket in a room.
	Emit(room, event string, payload any)
}

// Stamp adds the wire timestamp to a payload map, mutating and returning it.
func Stamp(payload map[string]any) map[string]any {
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return payload
}

// EmitToWinner sends a critical end-of-match event on both the battle room
// and the winner's personal room so delivery survives a room-join race.
func EmitToWinner(n Notifier, matchID shared.MatchID, winnerID shared.UserID, event string, payload map[string]any) {
	n.Emit(BattleRoom(matchID), event, payload)
	n.Emit(UserRoom(winnerID), event, payload)
}

// NopNotifier discards everything; used where fan-out is optional.
type NopNotifier struct{}

func (NopNotifier) Emit(string, string, any) {}
