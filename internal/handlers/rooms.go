// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/game"
	"github.com/jason-s-yu/durak/internal/models"
)

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	Name       string                 `json:"name"`
	PlayerName string                 `json:"playerName"`
	MaxPlayers int                    `json:"maxPlayers"`
	Mode       string                 `json:"mode"`
	Passcode   string                 `json:"passcode,omitempty"`
	Public     bool                   `json:"public,omitempty"`
	Rules      map[string]interface{} `json:"rules,omitempty"`
}

// JoinRoomRequest is the body of POST /rooms/{code}/join.
type JoinRoomRequest struct {
	Name     string `json:"name"`
	Passcode string `json:"passcode,omitempty"`
	Spectate bool   `json:"spectate,omitempty"`
}

// RoomResponse is returned by create and join. Token authenticates the /ws session.
type RoomResponse struct {
	Room     game.ObfRoomState `json:"room"`
	PlayerID uuid.UUID         `json:"playerId"`
	Token    string            `json:"token"`
}

// CreateRoomHandler creates a room and seats its creator.
func (gs *GameServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	room, player, err := gs.Store.CreateRoom(game.CreateRoomOptions{
		Name:       req.Name,
		PlayerName: req.PlayerName,
		MaxPlayers: req.MaxPlayers,
		Mode:       req.Mode,
		Passcode:   req.Passcode,
		Public:     req.Public,
		Rules:      req.Rules,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	gs.respondWithSeat(w, http.StatusCreated, room, player)
}

// JoinRoomHandler seats a player, or admits a spectator, in an existing room.
func (gs *GameServer) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	room, player, err := gs.Store.JoinRoom(r.PathValue("code"), req.Name, req.Passcode, req.Spectate)
	if err != nil {
		writeError(w, err)
		return
	}
	gs.respondWithSeat(w, http.StatusOK, room, player)
}

// ListRoomsHandler lists public rooms that are still waiting for players.
func (gs *GameServer) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": gs.Store.ListPublic()})
}

// HealthHandler reports liveness and the number of rooms in memory.
func (gs *GameServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "rooms": gs.Store.Len()})
}

func (gs *GameServer) respondWithSeat(w http.ResponseWriter, status int, room *game.Room, player *models.Player) {
	token, err := gs.Sessions.CreateToken(player.ID, room.Code)
	if err != nil {
		writeError(w, fmt.Errorf("create session token: %w", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, RoomResponse{
		Room:     room.GetCurrentObfuscatedState(player.ID),
		PlayerID: player.ID,
		Token:    token,
	})
}

// decodeBody writes a 400 and returns false when the body is not valid JSON for v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "kind": string(game.KindIllegalIntent)})
		return false
	}
	return true
}
