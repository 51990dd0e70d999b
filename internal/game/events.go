// internal/game/events.go
package game

// GameEventType names an outbound message.
type GameEventType string

const (
	EventPrivateSyncState GameEventType = "private_sync_state" // per-player sanitized snapshot
	EventGameEnd          GameEventType = "game_end"           // winners, durak or draw
	EventChat             GameEventType = "chat"
	EventRoomClosed       GameEventType = "room_closed" // room disposed, or player dropped after a vote
)

// GameEvent is the envelope for everything the room sends to a client. Payload and State only
// carry copies, so an event can be marshalled after the room lock is released.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	State   *ObfRoomState          `json:"state,omitempty"`
}
