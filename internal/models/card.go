package models

import "github.com/google/uuid"

// Card is a single playing card. IsTrump is derived from the room's trump suit and is
// refreshed whenever the trump suit is set or the card is drawn from the deck.
type Card struct {
	ID      uuid.UUID `json:"id"`
	Suit    string    `json:"suit"`
	Rank    string    `json:"rank"`
	Value   int       `json:"value"`
	IsTrump bool      `json:"isTrump"`
}

// BattlefieldPair is one attack on the table and, once beaten, its defense.
type BattlefieldPair struct {
	Attack     *Card     `json:"attack"`
	Defense    *Card     `json:"defense"`
	AttackerID uuid.UUID `json:"attackerId"`
}

// Defended reports whether the attack has been beaten.
func (p *BattlefieldPair) Defended() bool {
	return p.Defense != nil
}

// ThrowInEntry is a card added to a take that is still pending.
type ThrowInEntry struct {
	Card     *Card     `json:"card"`
	PlayerID uuid.UUID `json:"playerId"`
}

// Winner records a player who got rid of all cards, in order of elimination.
type Winner struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}
