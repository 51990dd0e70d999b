package game

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toVoting ends a rigged round with the last seat as durak.
func toVoting(t *testing.T, r *Room, n int) {
	t.Helper()
	hands := make([][]*models.Card, n)
	for i := range hands {
		hands[i] = []*models.Card{}
	}
	hands[n-1] = cards("6C")
	rig(r, "S", nil, hands, 0, 1)

	r.Mu.Lock()
	require.True(t, r.checkGameEnd())
	r.Mu.Unlock()
	require.Equal(t, StateVoting, r.GameState)
}

func vote(t *testing.T, r *Room, p *models.Player, yes bool) {
	t.Helper()
	require.NoError(t, r.Handle(Intent{Kind: IntentVote, PlayerID: p.ID, Vote: yes}))
}

func TestRematchAllYesStartsNextRound(t *testing.T) {
	r, players, _, _ := setupTestRoom(t, 2, 1)
	toVoting(t, r, 2)
	assert.False(t, r.VoteDeadline.IsZero())

	vote(t, r, players[0], true)
	assert.Equal(t, StateVoting, r.GameState)
	require.NotNil(t, players[0].VotedPlayAgain)
	assert.True(t, *players[0].VotedPlayAgain)

	vote(t, r, players[1], true)
	assert.Equal(t, StatePlaying, r.GameState)
	assert.Equal(t, 2, r.RoundNumber)
	assert.True(t, r.VoteDeadline.IsZero())
	assert.Empty(t, r.Winners)
	assert.Equal(t, uuid.Nil, r.DurakID)
	for _, p := range players {
		assert.Len(t, p.Hand, HandSize)
		assert.False(t, p.HasWon)
		assert.Nil(t, p.VotedPlayAgain)
	}
	assert.Equal(t, DeckSize(ModeClassic), totalCards(r))
}

func TestRematchDeclinedFinishesAndDisposesAfterGrace(t *testing.T) {
	r, players, mb, clock := setupTestRoom(t, 2, 1)
	disposed := 0
	r.OnDispose = func(*Room) { disposed++ }
	toVoting(t, r, 2)

	vote(t, r, players[0], true)
	vote(t, r, players[1], false)
	assert.Equal(t, StateFinished, r.GameState)
	assert.False(t, r.FinishedAt.IsZero())
	assert.False(t, r.Disposed())

	err := r.Handle(Intent{Kind: IntentVote, PlayerID: players[0].ID, Vote: true})
	assert.Equal(t, KindIllegalIntent, KindOf(err))

	clock.Advance(time.Duration(DefaultFinishGraceSec)*time.Second - time.Second)
	assert.False(t, r.Disposed())
	assert.Equal(t, 0, disposed)

	clock.Advance(time.Second)
	assert.True(t, r.Disposed())
	assert.Equal(t, 1, disposed)
	closed := mb.eventsOfType(players[1].ID, EventRoomClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "finished", closed[0].Payload["reason"])
}

func TestRematchDropsPlayersWhoVotedNo(t *testing.T) {
	r, players, mb, _ := setupTestRoom(t, 3, 1)
	var removed []uuid.UUID
	r.OnPlayersRemoved = func(_ *Room, ids []uuid.UUID) { removed = append(removed, ids...) }
	toVoting(t, r, 3)

	vote(t, r, players[0], true)
	vote(t, r, players[1], false)
	assert.Equal(t, StateVoting, r.GameState)
	vote(t, r, players[2], true)

	assert.Equal(t, StatePlaying, r.GameState)
	assert.Equal(t, 2, r.RoundNumber)
	assert.Equal(t, []uuid.UUID{players[1].ID}, removed)
	assert.Len(t, r.Players, 2)
	closed := mb.eventsOfType(players[1].ID, EventRoomClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "not_rejoined", closed[0].Payload["reason"])
	assert.Equal(t, 0, players[0].Position)
	assert.Equal(t, 1, players[2].Position)

	err := r.Handle(Intent{Kind: IntentVote, PlayerID: players[1].ID, Vote: true})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRevoteReplacesEarlierVote(t *testing.T) {
	r, players, _, _ := setupTestRoom(t, 3, 1)
	toVoting(t, r, 3)

	vote(t, r, players[0], false)
	vote(t, r, players[0], true)
	vote(t, r, players[1], true)
	vote(t, r, players[2], false)

	assert.Equal(t, StatePlaying, r.GameState)
	assert.Len(t, r.Players, 2)
	assert.NotNil(t, r.getPlayer(players[0].ID))
}

func TestVoteWindowExpiryCountsMissingAsNo(t *testing.T) {
	r, players, _, clock := setupTestRoom(t, 3, 1)
	toVoting(t, r, 3)

	vote(t, r, players[0], true)
	vote(t, r, players[1], true)
	clock.Advance(time.Duration(DefaultVoteWindowSec)*time.Second - time.Millisecond)
	assert.Equal(t, StateVoting, r.GameState)

	clock.Advance(time.Millisecond)
	assert.Equal(t, StatePlaying, r.GameState)
	assert.Len(t, r.Players, 2)
	assert.Nil(t, r.getPlayer(players[2].ID))
}

func TestVoteWindowExpiryWithOneYesFinishes(t *testing.T) {
	r, players, _, clock := setupTestRoom(t, 3, 1)
	toVoting(t, r, 3)

	vote(t, r, players[0], true)
	clock.Advance(time.Duration(DefaultVoteWindowSec) * time.Second)
	assert.Equal(t, StateFinished, r.GameState)
}

func TestStaleVoteTimerIsIgnored(t *testing.T) {
	r, players, _, clock := setupTestRoom(t, 2, 1)
	toVoting(t, r, 2)
	vote(t, r, players[0], true)
	vote(t, r, players[1], true)
	require.Equal(t, StatePlaying, r.GameState)

	clock.fireStopped()
	assert.Equal(t, StatePlaying, r.GameState)
	assert.Equal(t, 2, r.RoundNumber)
}

func TestLeaveDuringVoteCountsAsNo(t *testing.T) {
	r, players, _, _ := setupTestRoom(t, 2, 1)
	toVoting(t, r, 2)

	vote(t, r, players[0], true)
	removed, empty, err := r.Leave(players[1].ID)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.False(t, empty)
	assert.Equal(t, StateFinished, r.GameState)

	removed, _, err = r.Leave(players[1].ID)
	require.NoError(t, err)
	assert.True(t, removed, "a finished room lets players go")
}

func TestVoteOutsideVotingRejected(t *testing.T) {
	r, players, _, _ := setupTestRoom(t, 2, 1)
	err := r.Handle(Intent{Kind: IntentVote, PlayerID: players[0].ID, Vote: true})
	assert.Equal(t, KindIllegalIntent, KindOf(err))
}
