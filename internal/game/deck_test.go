package game

import (
	"math/rand"
	"testing"

	"github.com/jason-s-yu/durak/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDeck(t *testing.T) {
	tests := []struct {
		mode  Mode
		size  int
		ranks int
	}{
		{ModeClassic, 36, 9},
		{ModeUltimate, 52, 13},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			deck := BuildDeck(tc.mode, rand.New(rand.NewSource(1)))
			require.Len(t, deck, tc.size)
			assert.Equal(t, tc.size, DeckSize(tc.mode))

			seen := make(map[string]bool)
			ids := make(map[string]bool)
			perSuit := make(map[string]int)
			for _, c := range deck {
				key := c.Rank + c.Suit
				assert.False(t, seen[key], "duplicate card %s", key)
				seen[key] = true
				ids[c.ID.String()] = true
				perSuit[c.Suit]++
				assert.False(t, c.IsTrump)
				assert.Equal(t, rankValues[c.Rank], c.Value)
			}
			assert.Len(t, ids, tc.size)
			for _, s := range suits {
				assert.Equal(t, tc.ranks, perSuit[s])
			}
		})
	}
}

func TestBuildDeckNeverSharesCards(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := BuildDeck(ModeClassic, rng)
	b := BuildDeck(ModeClassic, rng)
	for _, ca := range a {
		for _, cb := range b {
			require.NotSame(t, ca, cb)
		}
	}
}

func TestBuildDeckShuffleIsSeeded(t *testing.T) {
	a := BuildDeck(ModeUltimate, rand.New(rand.NewSource(9)))
	b := BuildDeck(ModeUltimate, rand.New(rand.NewSource(9)))
	c := BuildDeck(ModeUltimate, rand.New(rand.NewSource(10)))
	same, differs := true, false
	for i := range a {
		if a[i].Rank+a[i].Suit != b[i].Rank+b[i].Suit {
			same = false
		}
		if a[i].Rank+a[i].Suit != c[i].Rank+c[i].Suit {
			differs = true
		}
	}
	assert.True(t, same)
	assert.True(t, differs)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeClassic, m)

	m, err = ParseMode("ultimate")
	require.NoError(t, err)
	assert.Equal(t, ModeUltimate, m)

	_, err = ParseMode("poker")
	assert.Error(t, err)
}

func TestMarkTrump(t *testing.T) {
	deck := BuildDeck(ModeClassic, rand.New(rand.NewSource(2)))
	MarkTrump(deck, "D")
	for _, c := range deck {
		assert.Equal(t, c.Suit == "D", c.IsTrump)
	}
	MarkTrump(deck, "C")
	for _, c := range deck {
		assert.Equal(t, c.Suit == "C", c.IsTrump)
	}
}

func TestCanDefendExhaustive(t *testing.T) {
	const trump = "S"
	ranks := modeRanks[ModeUltimate]
	for _, as := range suits {
		for _, ar := range ranks {
			for _, ds := range suits {
				for _, dr := range ranks {
					a := &models.Card{Suit: as, Rank: ar, Value: rankValues[ar], IsTrump: as == trump}
					d := &models.Card{Suit: ds, Rank: dr, Value: rankValues[dr], IsTrump: ds == trump}

					var want bool
					switch {
					case d.IsTrump && !a.IsTrump:
						want = true
					case ds == as:
						want = d.Value > a.Value
					}
					assert.Equal(t, want, CanDefend(d, a), "%s%s on %s%s", dr, ds, ar, as)
				}
			}
		}
	}
}

func TestCanDefendCases(t *testing.T) {
	trumped := func(c *models.Card) *models.Card { c.IsTrump = true; return c }
	tests := []struct {
		name    string
		defense *models.Card
		attack  *models.Card
		want    bool
	}{
		{"higher same suit", card("9H"), card("7H"), true},
		{"lower same suit", card("7H"), card("9H"), false},
		{"equal value", card("9H"), card("9H"), false},
		{"other suit higher", card("AD"), card("6H"), false},
		{"low trump on high plain", trumped(card("6S")), card("AH"), true},
		{"plain on trump", card("AH"), trumped(card("6S")), false},
		{"higher trump on trump", trumped(card("8S")), trumped(card("7S")), true},
		{"lower trump on trump", trumped(card("7S")), trumped(card("8S")), false},
		{"nil attack", card("7S"), nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanDefend(tc.defense, tc.attack))
		})
	}
}

func TestDrawAndRefill(t *testing.T) {
	r, players, _, _ := setupTestRoom(t, 2, 1)
	rig(r, "H", cards("7H", "8C", "9D"), [][]*models.Card{cards("6C"), cards("6D")}, 0, 1)

	r.Mu.Lock()
	drawn := r.refill(players[0])
	r.Mu.Unlock()
	assert.Equal(t, 3, drawn, "a short deck just leaves the hand short")
	assert.Len(t, players[0].Hand, 4)
	assert.Empty(t, r.Deck)
	assert.True(t, players[0].Hand[1].IsTrump)

	r.Mu.Lock()
	assert.Nil(t, r.drawCard())
	assert.Equal(t, 0, r.refill(players[1]))
	r.Mu.Unlock()
}
