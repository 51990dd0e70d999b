// internal/game/sync_state.go
package game

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/models"
)

// ObfCard is a value copy of a visible card.
type ObfCard struct {
	ID      uuid.UUID `json:"id"`
	Rank    string    `json:"rank"`
	Suit    string    `json:"suit"`
	Value   int       `json:"value"`
	IsTrump bool      `json:"isTrump"`
}

// ObfPair is a battlefield pair as clients see it.
type ObfPair struct {
	Attack     ObfCard   `json:"attack"`
	Defense    *ObfCard  `json:"defense,omitempty"`
	AttackerID uuid.UUID `json:"attackerId"`
}

// ObfThrowIn is a pending throw-in card.
type ObfThrowIn struct {
	Card     ObfCard   `json:"card"`
	PlayerID uuid.UUID `json:"playerId"`
}

// ObfPlayerState is one player from the point of view of the requesting player. Hand is only
// filled in for the requester; everybody else is reduced to HandSize.
type ObfPlayerState struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Position       int       `json:"position"`
	HandSize       int       `json:"handSize"`
	Hand           []ObfCard `json:"hand,omitempty"`
	Connected      bool      `json:"connected"`
	IsActive       bool      `json:"isActive"`
	HasWon         bool      `json:"hasWon"`
	IsSpectator    bool      `json:"isSpectator"`
	Ready          bool      `json:"ready"`
	VotedPlayAgain *bool     `json:"votedPlayAgain"`
	IsAttacker     bool      `json:"isAttacker"`
	IsDefender     bool      `json:"isDefender"`
}

// ObfRoomState is the sanitized snapshot sent in private_sync_state events.
type ObfRoomState struct {
	RoomID      uuid.UUID `json:"roomId"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Mode        Mode      `json:"mode"`
	MaxPlayers  int       `json:"maxPlayers"`
	HasPasscode bool      `json:"hasPasscode"`
	GameState   GameState `json:"gameState"`
	GamePhase   GamePhase `json:"gamePhase"`
	RoundNumber int       `json:"roundNumber"`
	You         uuid.UUID `json:"you"`

	DeckCount    int          `json:"deckCount"`
	DiscardCount int          `json:"discardCount"`
	TrumpCard    *ObfCard     `json:"trumpCard,omitempty"`
	TrumpSuit    string       `json:"trumpSuit,omitempty"`
	Battlefield  []ObfPair    `json:"battlefield"`
	ThrowInCards []ObfThrowIn `json:"throwInCards"`

	InitialAttackerID   uuid.UUID   `json:"initialAttackerId"`
	CurrentDefenderID   uuid.UUID   `json:"currentDefenderId"`
	AdditionalAttackers []uuid.UUID `json:"additionalAttackers"`

	MaxThrowInTotal   int      `json:"maxThrowInTotal,omitempty"`
	ValidThrowInRanks []string `json:"validThrowInRanks,omitempty"`
	ThrowInDeadline   int64    `json:"throwInDeadline,omitempty"` // unix ms
	VoteDeadline      int64    `json:"voteDeadline,omitempty"`    // unix ms

	Winners []models.Winner `json:"winners"`
	DurakID *uuid.UUID      `json:"durakId,omitempty"`
	IsDraw  bool            `json:"isDraw"`

	Players []ObfPlayerState `json:"players"`
}

// GetCurrentObfuscatedState builds the snapshot for forPlayer.
func (r *Room) GetCurrentObfuscatedState(forPlayer uuid.UUID) ObfRoomState {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.viewFor(forPlayer)
}

// viewFor assumes lock is held.
func (r *Room) viewFor(forPlayer uuid.UUID) ObfRoomState {
	view := ObfRoomState{
		RoomID:            r.ID,
		Code:              r.Code,
		Name:              r.Name,
		Mode:              r.Mode,
		MaxPlayers:        r.MaxPlayers,
		HasPasscode:       r.passcodeHash != "",
		GameState:         r.GameState,
		GamePhase:         r.GamePhase,
		RoundNumber:       r.RoundNumber,
		You:               forPlayer,
		DeckCount:         len(r.Deck),
		DiscardCount:      len(r.Discard),
		TrumpSuit:         r.TrumpSuit,
		Battlefield:       make([]ObfPair, 0, len(r.Battlefield)),
		ThrowInCards:      make([]ObfThrowIn, 0, len(r.ThrowInCards)),
		InitialAttackerID: r.InitialAttackerID,
		CurrentDefenderID: r.CurrentDefenderID,
		MaxThrowInTotal:   r.maxThrowInTotal,
		ThrowInDeadline:   unixMilli(r.ThrowInDeadline),
		VoteDeadline:      unixMilli(r.VoteDeadline),
		Winners:           append([]models.Winner{}, r.Winners...),
		IsDraw:            r.IsDraw,
		Players:           make([]ObfPlayerState, 0, len(r.Players)),
	}
	if r.TrumpCard != nil {
		tc := obfCard(r.TrumpCard)
		view.TrumpCard = &tc
	}
	if r.DurakID != uuid.Nil {
		id := r.DurakID
		view.DurakID = &id
	}
	for _, pair := range r.Battlefield {
		op := ObfPair{Attack: obfCard(pair.Attack), AttackerID: pair.AttackerID}
		if pair.Defense != nil {
			d := obfCard(pair.Defense)
			op.Defense = &d
		}
		view.Battlefield = append(view.Battlefield, op)
	}
	for _, entry := range r.ThrowInCards {
		view.ThrowInCards = append(view.ThrowInCards, ObfThrowIn{Card: obfCard(entry.Card), PlayerID: entry.PlayerID})
	}
	view.AdditionalAttackers = make([]uuid.UUID, 0, len(r.AdditionalAttackers))
	for id := range r.AdditionalAttackers {
		view.AdditionalAttackers = append(view.AdditionalAttackers, id)
	}
	sort.Slice(view.AdditionalAttackers, func(i, j int) bool {
		return view.AdditionalAttackers[i].String() < view.AdditionalAttackers[j].String()
	})
	for rank := range r.validThrowInRanks {
		view.ValidThrowInRanks = append(view.ValidThrowInRanks, rank)
	}
	sort.Strings(view.ValidThrowInRanks)

	for _, p := range r.Players {
		ps := ObfPlayerState{
			ID:          p.ID,
			Name:        p.Name,
			Position:    p.Position,
			HandSize:    len(p.Hand),
			Connected:   p.Connected,
			IsActive:    p.IsActive,
			HasWon:      p.HasWon,
			IsSpectator: p.IsSpectator,
			Ready:       p.Ready,
			IsAttacker:  r.GameState == StatePlaying && r.isAttacker(p.ID),
			IsDefender:  r.GameState == StatePlaying && p.ID == r.CurrentDefenderID,
		}
		if p.VotedPlayAgain != nil {
			v := *p.VotedPlayAgain
			ps.VotedPlayAgain = &v
		}
		if p.ID == forPlayer {
			ps.Hand = make([]ObfCard, 0, len(p.Hand))
			for _, c := range p.Hand {
				ps.Hand = append(ps.Hand, obfCard(c))
			}
		}
		view.Players = append(view.Players, ps)
	}
	return view
}

func obfCard(c *models.Card) ObfCard {
	return ObfCard{ID: c.ID, Rank: c.Rank, Suit: c.Suit, Value: c.Value, IsTrump: c.IsTrump}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
