// internal/game/room.go
package game

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/cache"
	"github.com/jason-s-yu/durak/internal/models"
	log "github.com/sirupsen/logrus"
)

// GameState is the coarse lifecycle of a room.
type GameState string

const (
	StateWaiting  GameState = "waiting"
	StatePlaying  GameState = "playing"
	StateVoting   GameState = "voting"
	StateFinished GameState = "finished"
)

// GamePhase is the step of the bout currently being played.
type GamePhase string

const (
	PhaseWaiting   GamePhase = "waiting"
	PhaseAttacking GamePhase = "attacking"
	PhaseDefending GamePhase = "defending"
	PhaseThrowIn   GamePhase = "throwIn"
	PhaseVoting    GamePhase = "voting"
)

const (
	// MinPlayers is the smallest table a round can be dealt to.
	MinPlayers = 2
	// MaxPlayers is the largest table a room accepts.
	MaxPlayers = 6
	// MaxChatLength bounds chat messages in runes.
	MaxChatLength = 300
)

// errStale marks a timer intent that arrived after its window closed. It is swallowed by Handle.
var errStale = errors.New("stale timer")

// ActionLogger receives one record per applied intent. cache.Publisher satisfies it.
type ActionLogger interface {
	PublishGameAction(ctx context.Context, record cache.GameActionRecord) error
}

// GameResult summarizes a finished round for recording and metrics.
type GameResult struct {
	GameID      uuid.UUID
	RoomID      uuid.UUID
	RoomCode    string
	Mode        Mode
	RoundNumber int
	Players     []ResultPlayer
	Winners     []models.Winner
	DurakID     uuid.UUID
	IsDraw      bool
	StartedAt   time.Time
	EndedAt     time.Time
}

// ResultPlayer is a seated player as recorded in a GameResult.
type ResultPlayer struct {
	ID       uuid.UUID
	Name     string
	Position int
}

// RoundStart describes a freshly dealt round.
type RoundStart struct {
	GameID      uuid.UUID
	RoomCode    string
	Mode        Mode
	RoundNumber int
	TrumpCard   models.Card
	Deck        []models.Card
	Hands       map[uuid.UUID][]models.Card
	StartedAt   time.Time
}

// Room holds the whole state of one table in memory. Every exported method takes Mu; the
// unexported helpers assume it is already held.
type Room struct {
	ID         uuid.UUID
	Code       string
	Name       string
	Mode       Mode
	MaxPlayers int
	Public     bool
	Rules      Rules

	passcodeHash string

	Players   []*models.Player
	GameState GameState
	GamePhase GamePhase

	Deck         []*models.Card
	Discard      []*models.Card
	Battlefield  []*models.BattlefieldPair
	ThrowInCards []*models.ThrowInEntry
	TrumpCard    *models.Card
	TrumpSuit    string

	InitialAttackerID   uuid.UUID
	CurrentDefenderID   uuid.UUID
	AdditionalAttackers map[uuid.UUID]bool

	Winners     []models.Winner
	DurakID     uuid.UUID
	IsDraw      bool
	RoundNumber int

	// throw-in window, frozen when the defender takes
	maxThrowInTotal   int
	validThrowInRanks map[string]bool
	ThrowInDeadline   time.Time
	throwInTimer      Timer
	throwInGen        int

	VoteDeadline time.Time
	voteTimer    Timer
	voteGen      int

	disposeTimer Timer
	disposed     bool

	CreatedAt    time.Time
	LastActivity time.Time
	StartedAt    time.Time
	FinishedAt   time.Time

	gameID      uuid.UUID
	actionIndex int
	rng         *rand.Rand
	clock       Clock

	Mu sync.Mutex

	// BroadcastToPlayerFn delivers an event to one player. It is called with Mu held and must not block.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent)

	// OnGameEnd is invoked with Mu held once a round produces a result.
	OnGameEnd func(result GameResult)

	// OnRoundStart is invoked with Mu held after every deal.
	OnRoundStart func(start RoundStart)

	// OnPlayersRemoved is invoked with Mu held when players are dropped from the room.
	OnPlayersRemoved func(r *Room, playerIDs []uuid.UUID)

	// OnDispose is invoked without Mu once the room has closed itself.
	OnDispose func(r *Room)

	// ActionLog receives action records; nil disables history publishing.
	ActionLog ActionLogger
}

// RoomOptions configures NewRoom.
type RoomOptions struct {
	Name         string
	Mode         Mode
	MaxPlayers   int
	Public       bool
	PasscodeHash string
	Rules        Rules
	Clock        Clock
	Rand         *rand.Rand
}

// NewRoom builds an empty waiting room. Code is assigned by the store.
func NewRoom(opts RoomOptions) *Room {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeClassic
	}
	maxPlayers := opts.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = MaxPlayers
	}
	now := clock.Now()
	return &Room{
		ID:                  uuid.New(),
		Name:                opts.Name,
		Mode:                mode,
		MaxPlayers:          maxPlayers,
		Public:              opts.Public,
		Rules:               opts.Rules.withDefaults(),
		passcodeHash:        opts.PasscodeHash,
		Players:             []*models.Player{},
		GameState:           StateWaiting,
		GamePhase:           PhaseWaiting,
		AdditionalAttackers: make(map[uuid.UUID]bool),
		validThrowInRanks:   make(map[string]bool),
		CreatedAt:           now,
		LastActivity:        now,
		rng:                 rng,
		clock:               clock,
	}
}

// PasscodeHash returns the encoded passcode hash, empty for open rooms. It never changes after creation.
func (r *Room) PasscodeHash() string {
	return r.passcodeHash
}

// Handle validates and applies a single intent. Accepted intents are logged and every connected
// player receives a fresh sanitized snapshot; rejected intents leave the room untouched.
func (r *Room) Handle(in Intent) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.disposed {
		if in.Synthetic() {
			return nil
		}
		return notFound("room is closed")
	}

	if !in.Synthetic() {
		if r.getPlayer(in.PlayerID) == nil {
			return notFound("player is not in this room")
		}
		if r.GameState == StatePlaying {
			r.checkForWinner(in.PlayerID)
			if r.GameState != StatePlaying {
				r.broadcastSyncStateToAll()
				return illegal("round is over")
			}
		}
	}

	var err error
	switch in.Kind {
	case IntentSetReady:
		err = r.setReady(in.PlayerID, in.Ready)
	case IntentAttack:
		err = r.attack(in.PlayerID, in.CardIndex)
	case IntentDefend:
		err = r.defend(in.PlayerID, in.CardIndex, in.TargetIndex)
	case IntentDeflect:
		err = r.deflect(in.PlayerID, in.CardIndex)
	case IntentTake:
		err = r.take(in.PlayerID)
	case IntentThrowIn:
		err = r.throwIn(in.PlayerID, in.CardIndex)
	case IntentFinishThrowIn:
		err = r.finishThrowIn(in.PlayerID)
	case IntentEndAttack:
		err = r.endAttack(in.PlayerID)
	case IntentVote:
		err = r.vote(in.PlayerID, in.Vote)
	case IntentThrowInExpired:
		err = r.throwInExpired(in.Generation)
	case IntentVoteExpired:
		err = r.voteExpired(in.Generation)
	default:
		err = illegal("unknown intent %q", in.Kind)
	}
	if errors.Is(err, errStale) {
		log.WithFields(log.Fields{"room": r.Code, "intent": in.Kind, "generation": in.Generation}).Debug("ignoring stale timer")
		return nil
	}
	if err != nil {
		return err
	}

	r.LastActivity = r.clock.Now()
	r.logAction(in.PlayerID, string(in.Kind), in.payload())
	r.broadcastSyncStateToAll()
	return nil
}

// Join seats a new player, or admits a spectator. Players may only take a seat while the room is waiting.
func (r *Room) Join(p *models.Player) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.disposed {
		return notFound("room is closed")
	}
	if r.getPlayer(p.ID) != nil {
		return illegal("player already joined")
	}
	if !p.IsSpectator {
		if r.GameState != StateWaiting {
			return capacity("game already in progress")
		}
		if r.seatedCount() >= r.MaxPlayers {
			return capacity("room is full")
		}
	}
	r.Players = append(r.Players, p)
	r.LastActivity = r.clock.Now()
	log.WithFields(log.Fields{"room": r.Code, "player": p.ID, "spectator": p.IsSpectator}).Info("player joined room")
	r.logAction(p.ID, "player_join", map[string]interface{}{"name": p.Name, "spectator": p.IsSpectator})
	r.broadcastSyncStateToAll()
	return nil
}

// Leave removes a player from a waiting or finished room, dealing if everyone still seated is
// ready. During a round the player keeps their seat and cards and is only marked disconnected; in
// a vote it also counts as a "no".
// Returns whether the player was removed and whether the room has no one left.
func (r *Room) Leave(playerID uuid.UUID) (removed bool, empty bool, err error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p := r.getPlayer(playerID)
	if p == nil {
		return false, false, notFound("player is not in this room")
	}

	switch {
	case p.IsSpectator, r.GameState == StateWaiting, r.GameState == StateFinished:
		r.removePlayers([]uuid.UUID{playerID})
		removed = true
	case r.GameState == StateVoting:
		p.Connected = false
		no := false
		p.VotedPlayAgain = &no
		if r.allVoted() {
			r.resolveVote()
		}
	default:
		p.Connected = false
	}
	r.LastActivity = r.clock.Now()
	r.logAction(playerID, "player_leave", map[string]interface{}{"removed": removed})
	// the player who left may have been the only one not ready
	r.startIfAllReady()
	r.broadcastSyncStateToAll()
	return removed, r.connectedCount() == 0, nil
}

// Disconnect marks a player offline without touching their cards or role.
// Returns true when nobody in the room is connected anymore.
func (r *Room) Disconnect(playerID uuid.UUID) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if p := r.getPlayer(playerID); p != nil && p.Connected {
		p.Connected = false
		r.logAction(playerID, "player_disconnect", nil)
		r.broadcastSyncStateToAll()
	}
	return r.connectedCount() == 0
}

// Reconnect rebinds a returning player by id and sends them the current snapshot.
func (r *Room) Reconnect(playerID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.disposed {
		return notFound("room is closed")
	}
	p := r.getPlayer(playerID)
	if p == nil {
		return notFound("player is not in this room")
	}
	if !p.Connected {
		p.Connected = true
		r.logAction(playerID, "player_reconnect", nil)
	}
	r.broadcastSyncStateToAll()
	return nil
}

// Chat relays a trimmed message to everyone connected to the room.
func (r *Room) Chat(playerID uuid.UUID, text string) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.disposed {
		return notFound("room is closed")
	}
	p := r.getPlayer(playerID)
	if p == nil {
		return notFound("player is not in this room")
	}
	msg := strings.TrimSpace(text)
	if msg == "" {
		return illegal("empty chat message")
	}
	if utf8.RuneCountInString(msg) > MaxChatLength {
		return illegal("chat message longer than %d characters", MaxChatLength)
	}
	r.fireEvent(GameEvent{
		Type: EventChat,
		Payload: map[string]interface{}{
			"playerId": p.ID,
			"name":     p.Name,
			"text":     msg,
			"ts":       r.clock.Now().UnixMilli(),
		},
	})
	return nil
}

// SendSyncState pushes the current snapshot to a single player.
func (r *Room) SendSyncState(playerID uuid.UUID) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.sendSyncState(playerID)
}

// Dispose closes the room for good: timers are stopped, every later timer callback becomes a
// no-op and connected players are told the room is gone. Safe to call more than once.
func (r *Room) Dispose() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.dispose("closed")
}

// Disposed reports whether Dispose has run.
func (r *Room) Disposed() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.disposed
}

// PlayerIDs returns the ids of everyone currently in the room.
func (r *Room) PlayerIDs() []uuid.UUID {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.Players))
	for _, p := range r.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

// dispose assumes lock is held.
func (r *Room) dispose(reason string) {
	if r.disposed {
		return
	}
	r.disposed = true
	stopTimer(r.throwInTimer)
	stopTimer(r.voteTimer)
	stopTimer(r.disposeTimer)
	r.throwInTimer, r.voteTimer, r.disposeTimer = nil, nil, nil
	r.throwInGen++
	r.voteGen++
	r.fireEvent(GameEvent{
		Type:    EventRoomClosed,
		Payload: map[string]interface{}{"reason": reason},
	})
	log.WithFields(log.Fields{"room": r.Code, "reason": reason}).Info("room disposed")
}

// scheduleDisposal closes a finished room after the grace period.
// Assumes lock is held.
func (r *Room) scheduleDisposal() {
	stopTimer(r.disposeTimer)
	r.disposeTimer = r.clock.AfterFunc(r.Rules.finishGrace(), func() {
		r.Mu.Lock()
		if r.disposed || r.GameState != StateFinished {
			r.Mu.Unlock()
			return
		}
		r.dispose("finished")
		onDispose := r.OnDispose
		r.Mu.Unlock()
		if onDispose != nil {
			onDispose(r)
		}
	})
}

// removePlayers drops players from the room and notifies the owner of the player index.
// Assumes lock is held.
func (r *Room) removePlayers(ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.Players[:0]
	for _, p := range r.Players {
		if !drop[p.ID] {
			kept = append(kept, p)
		}
	}
	r.Players = kept
	if r.OnPlayersRemoved != nil {
		r.OnPlayersRemoved(r, ids)
	}
}

// getPlayer assumes lock is held.
func (r *Room) getPlayer(id uuid.UUID) *models.Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// seatedCount counts non-spectators. Assumes lock is held.
func (r *Room) seatedCount() int {
	n := 0
	for _, p := range r.Players {
		if !p.IsSpectator {
			n++
		}
	}
	return n
}

// connectedCount assumes lock is held.
func (r *Room) connectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// fireEvent sends the same event to every connected player.
// Assumes lock is held.
func (r *Room) fireEvent(ev GameEvent) {
	for _, p := range r.Players {
		r.fireEventToPlayer(p, ev)
	}
}

// fireEventToPlayer assumes lock is held.
func (r *Room) fireEventToPlayer(p *models.Player, ev GameEvent) {
	if r.BroadcastToPlayerFn == nil || !p.Connected {
		return
	}
	r.BroadcastToPlayerFn(p.ID, ev)
}

// sendSyncState assumes lock is held.
func (r *Room) sendSyncState(playerID uuid.UUID) {
	p := r.getPlayer(playerID)
	if p == nil {
		return
	}
	state := r.viewFor(playerID)
	r.fireEventToPlayer(p, GameEvent{Type: EventPrivateSyncState, State: &state})
}

// broadcastSyncStateToAll sends every connected player their own sanitized snapshot.
// Assumes lock is held.
func (r *Room) broadcastSyncStateToAll() {
	for _, p := range r.Players {
		if !p.Connected {
			continue
		}
		state := r.viewFor(p.ID)
		r.fireEventToPlayer(p, GameEvent{Type: EventPrivateSyncState, State: &state})
	}
}

// logAction publishes an action record for the historian without blocking the room.
// Assumes lock is held.
func (r *Room) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	if r.ActionLog == nil {
		return
	}
	r.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["roomCode"] = r.Code
	payload["round"] = r.RoundNumber
	gameID := r.gameID
	if gameID == uuid.Nil {
		gameID = r.ID
	}
	record := cache.GameActionRecord{
		GameID:        gameID,
		ActionIndex:   r.actionIndex,
		ActorUserID:   actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     r.clock.Now().UnixMilli(),
	}
	logger := r.ActionLog
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := logger.PublishGameAction(ctx, rec); err != nil {
			log.WithError(err).WithFields(log.Fields{"game": rec.GameID, "action": rec.ActionIndex}).Warn("failed to publish game action")
		}
	}(record)
}
