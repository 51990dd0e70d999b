// internal/game/deck.go
package game

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/models"
)

// Mode selects the rank set a room plays with.
type Mode string

const (
	ModeClassic  Mode = "classic"  // 36 cards, 6..A
	ModeUltimate Mode = "ultimate" // 52 cards, 2..A
)

// HandSize is the number of cards every refill tops a hand up to.
const HandSize = 6

// MaxBoutCards caps the undefended attacks, and the cards of a take, regardless of the defender's hand.
const MaxBoutCards = 6

var suits = []string{"H", "D", "C", "S"}

var rankValues = map[string]int{
	"2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8, "9": 9,
	"T": 10, "J": 11, "Q": 12, "K": 13, "A": 14,
}

var modeRanks = map[Mode][]string{
	ModeClassic:  {"6", "7", "8", "9", "T", "J", "Q", "K", "A"},
	ModeUltimate: {"2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K", "A"},
}

// ParseMode validates a client supplied mode, defaulting to classic when empty.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeClassic, nil
	}
	m := Mode(s)
	if _, ok := modeRanks[m]; !ok {
		return "", fmt.Errorf("unknown game mode %q", s)
	}
	return m, nil
}

// DeckSize returns the full deck size for a mode.
func DeckSize(m Mode) int {
	return len(suits) * len(modeRanks[m])
}

// BuildDeck builds the suits x ranks cross product for the mode and shuffles it with rng.
// Cards come back unmarked; MarkTrump is applied once the trump suit is known.
func BuildDeck(m Mode, rng *rand.Rand) []*models.Card {
	ranks := modeRanks[m]
	deck := make([]*models.Card, 0, len(suits)*len(ranks))
	for _, suit := range suits {
		for _, rank := range ranks {
			deck = append(deck, &models.Card{
				ID:    uuid.New(),
				Suit:  suit,
				Rank:  rank,
				Value: rankValues[rank],
			})
		}
	}
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// MarkTrump sets IsTrump on every card according to trumpSuit.
func MarkTrump(cards []*models.Card, trumpSuit string) {
	for _, c := range cards {
		c.IsTrump = c.Suit == trumpSuit
	}
}

// CanDefend reports whether d beats a: any trump beats a non-trump, otherwise only a
// higher card of the same suit does.
func CanDefend(d, a *models.Card) bool {
	if d == nil || a == nil {
		return false
	}
	if d.IsTrump && !a.IsTrump {
		return true
	}
	return d.Suit == a.Suit && d.Value > a.Value
}

// drawCard removes the front card of the deck and marks it against the current trump suit.
// Returns nil once the deck is exhausted.
// Assumes lock is held.
func (r *Room) drawCard() *models.Card {
	if len(r.Deck) == 0 {
		return nil
	}
	card := r.Deck[0]
	r.Deck = r.Deck[1:]
	card.IsTrump = card.Suit == r.TrumpSuit
	return card
}

// refill tops a player's hand up to HandSize one card at a time. A short deck simply leaves
// the player with fewer cards.
// Assumes lock is held.
func (r *Room) refill(p *models.Player) int {
	drawn := 0
	for len(p.Hand) < HandSize {
		card := r.drawCard()
		if card == nil {
			break
		}
		p.Hand = append(p.Hand, card)
		drawn++
	}
	return drawn
}

// tableRanks collects every rank currently on the battlefield, attacks and defenses alike.
// Assumes lock is held.
func (r *Room) tableRanks() map[string]bool {
	ranks := make(map[string]bool)
	for _, pair := range r.Battlefield {
		ranks[pair.Attack.Rank] = true
		if pair.Defense != nil {
			ranks[pair.Defense.Rank] = true
		}
	}
	return ranks
}

// cardsInPlay counts every card the room currently accounts for.
// Assumes lock is held.
func (r *Room) cardsInPlay() int {
	total := len(r.Deck) + len(r.Discard) + len(r.ThrowInCards)
	for _, p := range r.Players {
		total += len(p.Hand)
	}
	for _, pair := range r.Battlefield {
		total++
		if pair.Defense != nil {
			total++
		}
	}
	return total
}
