package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a seat in a room. All fields are always present; VotedPlayAgain is nil until the
// player votes in a rematch window.
type Player struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Hand           []*Card   `json:"hand"`
	Connected      bool      `json:"connected"`
	Position       int       `json:"position"`
	IsActive       bool      `json:"isActive"`
	HasWon         bool      `json:"hasWon"`
	IsSpectator    bool      `json:"isSpectator"`
	Ready          bool      `json:"ready"`
	VotedPlayAgain *bool     `json:"votedPlayAgain"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// NewPlayer creates a connected, not-yet-seated player with a fresh id.
func NewPlayer(name string, spectator bool) (*Player, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	return &Player{
		ID:          id,
		Name:        name,
		Hand:        []*Card{},
		Connected:   true,
		Position:    -1,
		IsSpectator: spectator,
		JoinedAt:    time.Now(),
	}, nil
}

// Eligible reports whether the player still takes part in the rotation.
func (p *Player) Eligible() bool {
	return p.IsActive && !p.HasWon && !p.IsSpectator
}
