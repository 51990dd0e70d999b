package game

import (
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/auth"
	"github.com/jason-s-yu/durak/internal/metrics"
	"github.com/jason-s-yu/durak/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	codeLength    = 6
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxNameLength = 32
)

// RoomStore is the room registry plus the player to room index. A player id lives in at most
// one room. The store lock is never held while a room lock is being acquired.
type RoomStore struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	playerRoom map[uuid.UUID]string

	// Rules is the default rule set for new rooms.
	Rules Rules
	// Clock is handed to every room; nil means the real clock.
	Clock Clock
	// Configure wires a new room (broadcasts, hooks, logging) before anyone can join it.
	Configure func(r *Room)
}

// NewRoomStore returns an empty store.
func NewRoomStore(rules Rules) *RoomStore {
	return &RoomStore{
		rooms:      make(map[string]*Room),
		playerRoom: make(map[uuid.UUID]string),
		Rules:      rules.withDefaults(),
	}
}

// CreateRoomOptions are the parameters of a create-room request.
type CreateRoomOptions struct {
	Name       string
	PlayerName string
	MaxPlayers int
	Mode       string
	Passcode   string
	Public     bool
	Rules      map[string]interface{}
}

// RoomSummary is the public listing entry for a room.
type RoomSummary struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Mode        Mode      `json:"mode"`
	MaxPlayers  int       `json:"maxPlayers"`
	Players     int       `json:"players"`
	GameState   GameState `json:"gameState"`
	HasPasscode bool      `json:"hasPasscode"`
}

// CreateRoom builds a waiting room with a fresh code and seats its creator.
func (s *RoomStore) CreateRoom(opts CreateRoomOptions) (*Room, *models.Player, error) {
	name, err := cleanName(opts.Name, "room name")
	if err != nil {
		return nil, nil, err
	}
	playerName, err := cleanName(opts.PlayerName, "player name")
	if err != nil {
		return nil, nil, err
	}
	maxPlayers := opts.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = MaxPlayers
	}
	if maxPlayers < MinPlayers || maxPlayers > MaxPlayers {
		return nil, nil, illegal("maxPlayers must be between %d and %d", MinPlayers, MaxPlayers)
	}
	mode, err := ParseMode(opts.Mode)
	if err != nil {
		return nil, nil, illegal("%v", err)
	}
	rules, err := ParseRules(opts.Rules, s.Rules)
	if err != nil {
		return nil, nil, illegal("%v", err)
	}
	hash, err := auth.HashPasscode(opts.Passcode)
	if err != nil {
		return nil, nil, fmt.Errorf("hash room passcode: %w", err)
	}

	room := NewRoom(RoomOptions{
		Name:         name,
		Mode:         mode,
		MaxPlayers:   maxPlayers,
		Public:       opts.Public,
		PasscodeHash: hash,
		Rules:        rules,
		Clock:        s.Clock,
	})
	room.OnPlayersRemoved = s.onPlayersRemoved
	room.OnDispose = func(r *Room) { s.DeleteRoom(r.Code) }
	if s.Configure != nil {
		s.Configure(room)
	}

	creator, err := models.NewPlayer(playerName, false)
	if err != nil {
		return nil, nil, fmt.Errorf("create player: %w", err)
	}

	s.mu.Lock()
	code, err := s.newCodeLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	room.Code = code
	s.rooms[code] = room
	s.playerRoom[creator.ID] = code
	metrics.RoomsActive.Set(float64(len(s.rooms)))
	s.mu.Unlock()
	metrics.RoomsCreated.Inc()

	if err := room.Join(creator); err != nil {
		s.DeleteRoom(code)
		return nil, nil, err
	}
	log.WithFields(log.Fields{"room": code, "mode": mode, "maxPlayers": maxPlayers}).Info("room created")
	return room, creator, nil
}

// JoinRoom adds a new player or spectator to the room with the given code.
func (s *RoomStore) JoinRoom(code, name, passcode string, spectate bool) (*Room, *models.Player, error) {
	playerName, err := cleanName(name, "player name")
	if err != nil {
		return nil, nil, err
	}
	room, ok := s.GetRoom(code)
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	match, err := auth.VerifyPasscode(passcode, room.PasscodeHash())
	if err != nil {
		return nil, nil, fmt.Errorf("verify room passcode: %w", err)
	}
	if !match {
		return nil, nil, forbidden("wrong passcode")
	}

	p, err := models.NewPlayer(playerName, spectate)
	if err != nil {
		return nil, nil, fmt.Errorf("create player: %w", err)
	}

	s.mu.Lock()
	if s.rooms[room.Code] != room {
		s.mu.Unlock()
		return nil, nil, ErrRoomNotFound
	}
	s.playerRoom[p.ID] = room.Code
	s.mu.Unlock()

	if err := room.Join(p); err != nil {
		s.mu.Lock()
		delete(s.playerRoom, p.ID)
		s.mu.Unlock()
		return nil, nil, err
	}
	return room, p, nil
}

// GetRoom looks a room up by code, case-insensitively.
func (s *RoomStore) GetRoom(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[strings.ToUpper(strings.TrimSpace(code))]
	return r, ok
}

// RoomForPlayer returns the room a player is seated in.
func (s *RoomStore) RoomForPlayer(playerID uuid.UUID) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.playerRoom[playerID]
	if !ok {
		return nil, false
	}
	r, ok := s.rooms[code]
	return r, ok
}

// LeaveRoom takes a player out of their room and closes the room if nobody is left connected.
func (s *RoomStore) LeaveRoom(playerID uuid.UUID) error {
	room, ok := s.RoomForPlayer(playerID)
	if !ok {
		return notFound("player is not in a room")
	}
	_, empty, err := room.Leave(playerID)
	if err != nil {
		return err
	}
	if empty {
		s.DeleteRoom(room.Code)
	}
	return nil
}

// DeleteRoom removes a room and every index entry pointing at it, then disposes the room.
func (s *RoomStore) DeleteRoom(code string) {
	s.mu.Lock()
	room, ok := s.rooms[code]
	if ok {
		delete(s.rooms, code)
		for pid, c := range s.playerRoom {
			if c == code {
				delete(s.playerRoom, pid)
			}
		}
	}
	metrics.RoomsActive.Set(float64(len(s.rooms)))
	s.mu.Unlock()

	if ok {
		room.Dispose()
	}
}

// ListPublic summarizes public rooms that still have open seats, oldest first.
func (s *RoomStore) ListPublic() []RoomSummary {
	rooms := s.snapshot()
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		if !r.Public {
			continue
		}
		sum, ok := r.summary()
		if ok && sum.GameState == StateWaiting && sum.Players < sum.MaxPlayers {
			out = append(out, sum)
		}
	}
	return out
}

// Len returns the number of live rooms.
func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Close disposes every room.
func (s *RoomStore) Close() {
	for _, r := range s.snapshot() {
		s.DeleteRoom(r.Code)
	}
}

// snapshot copies the registry in creation order so rooms can be locked without the store lock.
func (s *RoomStore) snapshot() []*Room {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms
}

// onPlayersRemoved runs with the room lock held; room before store is the allowed order.
func (s *RoomStore) onPlayersRemoved(r *Room, ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if s.playerRoom[id] == r.Code {
			delete(s.playerRoom, id)
		}
	}
}

// newCodeLocked assumes s.mu is held.
func (s *RoomStore) newCodeLocked() (string, error) {
	buf := make([]byte, codeLength)
	for attempt := 0; attempt < 100; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		for i, b := range buf {
			buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
		}
		code := string(buf)
		if _, taken := s.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate room code: no free code after 100 attempts")
}

// summary locks the room.
func (r *Room) summary() (RoomSummary, bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.disposed {
		return RoomSummary{}, false
	}
	return RoomSummary{
		Code:        r.Code,
		Name:        r.Name,
		Mode:        r.Mode,
		MaxPlayers:  r.MaxPlayers,
		Players:     r.seatedCount(),
		GameState:   r.GameState,
		HasPasscode: r.passcodeHash != "",
	}, true
}

func cleanName(name, field string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", illegal("%s is required", field)
	}
	if utf8.RuneCountInString(n) > maxNameLength {
		return "", illegal("%s longer than %d characters", field, maxNameLength)
	}
	return n, nil
}
