package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*RoomStore, *fakeClock) {
	clock := newFakeClock()
	s := NewRoomStore(Rules{})
	s.Clock = clock
	return s, clock
}

func TestCreateRoom(t *testing.T) {
	s, _ := newTestStore()
	configured := 0
	s.Configure = func(*Room) { configured++ }

	room, creator, err := s.CreateRoom(CreateRoomOptions{Name: " Friday table ", PlayerName: "ann", Mode: "ultimate", MaxPlayers: 4, Public: true})
	require.NoError(t, err)
	assert.Equal(t, 1, configured)
	assert.Len(t, room.Code, codeLength)
	assert.Equal(t, "Friday table", room.Name)
	assert.Equal(t, ModeUltimate, room.Mode)
	assert.Equal(t, 4, room.MaxPlayers)
	assert.Equal(t, DefaultRules(), room.Rules)
	assert.Equal(t, StateWaiting, room.GameState)
	assert.Equal(t, 1, s.Len())

	got, ok := s.RoomForPlayer(creator.ID)
	require.True(t, ok)
	assert.Same(t, room, got)

	byCode, ok := s.GetRoom(" " + room.Code + " ")
	require.True(t, ok)
	assert.Same(t, room, byCode)
	for _, c := range room.Code {
		assert.Contains(t, codeAlphabet, string(c))
	}
}

func TestCreateRoomValidation(t *testing.T) {
	s, _ := newTestStore()
	tests := []struct {
		name string
		opts CreateRoomOptions
	}{
		{"missing room name", CreateRoomOptions{PlayerName: "ann"}},
		{"missing player name", CreateRoomOptions{Name: "room", PlayerName: "   "}},
		{"long name", CreateRoomOptions{Name: "room", PlayerName: "abcdefghijklmnopqrstuvwxyz0123456789"}},
		{"one seat", CreateRoomOptions{Name: "room", PlayerName: "ann", MaxPlayers: 1}},
		{"seven seats", CreateRoomOptions{Name: "room", PlayerName: "ann", MaxPlayers: 7}},
		{"bad mode", CreateRoomOptions{Name: "room", PlayerName: "ann", Mode: "poker"}},
		{"bad rules", CreateRoomOptions{Name: "room", PlayerName: "ann", Rules: map[string]interface{}{"voteWindowSec": 1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := s.CreateRoom(tc.opts)
			require.Error(t, err)
			assert.Equal(t, KindIllegalIntent, KindOf(err))
		})
	}
	assert.Equal(t, 0, s.Len())
}

func TestCreateRoomWithRules(t *testing.T) {
	s, _ := newTestStore()
	room, _, err := s.CreateRoom(CreateRoomOptions{
		Name:       "room",
		PlayerName: "ann",
		Rules:      map[string]interface{}{"throwInWindowMs": float64(5000)},
	})
	require.NoError(t, err)
	assert.Equal(t, 5000, room.Rules.ThrowInWindowMs)
	assert.Equal(t, DefaultVoteWindowSec, room.Rules.VoteWindowSec)
}

func TestJoinRoom(t *testing.T) {
	s, _ := newTestStore()
	room, _, err := s.CreateRoom(CreateRoomOptions{Name: "room", PlayerName: "ann", MaxPlayers: 2})
	require.NoError(t, err)

	_, bob, err := s.JoinRoom(room.Code, "bob", "", false)
	require.NoError(t, err)
	got, ok := s.RoomForPlayer(bob.ID)
	require.True(t, ok)
	assert.Same(t, room, got)

	_, _, err = s.JoinRoom(room.Code, "carl", "", false)
	assert.Equal(t, KindCapacity, KindOf(err))

	_, watcher, err := s.JoinRoom(room.Code, "watcher", "", true)
	require.NoError(t, err)
	assert.True(t, watcher.IsSpectator)

	_, _, err = s.JoinRoom("NOPE00", "dan", "", false)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestJoinRoomFailureLeavesNoIndexEntry(t *testing.T) {
	s, _ := newTestStore()
	room, _, err := s.CreateRoom(CreateRoomOptions{Name: "room", PlayerName: "ann", MaxPlayers: 2})
	require.NoError(t, err)
	_, _, err = s.JoinRoom(room.Code, "bob", "", false)
	require.NoError(t, err)

	_, _, err = s.JoinRoom(room.Code, "carl", "", false)
	require.Error(t, err)

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.playerRoom, 2)
}

func TestJoinRoomPasscode(t *testing.T) {
	s, _ := newTestStore()
	room, _, err := s.CreateRoom(CreateRoomOptions{Name: "room", PlayerName: "ann", Passcode: "hunter2"})
	require.NoError(t, err)
	assert.NotEmpty(t, room.PasscodeHash())

	_, _, err = s.JoinRoom(room.Code, "bob", "wrong", false)
	assert.Equal(t, KindForbidden, KindOf(err))
	_, _, err = s.JoinRoom(room.Code, "bob", "", false)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, _, err = s.JoinRoom(room.Code, "bob", "hunter2", false)
	require.NoError(t, err)
}

func TestListPublic(t *testing.T) {
	s, clock := newTestStore()
	open, _, err := s.CreateRoom(CreateRoomOptions{Name: "open", PlayerName: "ann", Public: true})
	require.NoError(t, err)
	clock.Advance(time.Second)
	locked, _, err := s.CreateRoom(CreateRoomOptions{Name: "locked", PlayerName: "ann", Public: true, Passcode: "x"})
	require.NoError(t, err)
	_, _, err = s.CreateRoom(CreateRoomOptions{Name: "private", PlayerName: "ann"})
	require.NoError(t, err)
	full, _, err := s.CreateRoom(CreateRoomOptions{Name: "full", PlayerName: "ann", Public: true, MaxPlayers: 2})
	require.NoError(t, err)
	_, _, err = s.JoinRoom(full.Code, "bob", "", false)
	require.NoError(t, err)

	list := s.ListPublic()
	require.Len(t, list, 2)
	assert.Equal(t, open.Code, list[0].Code)
	assert.Equal(t, 1, list[0].Players)
	assert.False(t, list[0].HasPasscode)
	assert.Equal(t, locked.Code, list[1].Code)
	assert.True(t, list[1].HasPasscode)
}

func TestLeaveRoomDeletesEmptyRoom(t *testing.T) {
	s, _ := newTestStore()
	room, ann, err := s.CreateRoom(CreateRoomOptions{Name: "room", PlayerName: "ann"})
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(room.Code, "bob", "", false)
	require.NoError(t, err)

	require.NoError(t, s.LeaveRoom(ann.ID))
	_, ok := s.RoomForPlayer(ann.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.LeaveRoom(bob.ID))
	assert.Equal(t, 0, s.Len())
	assert.True(t, room.Disposed())

	assert.Equal(t, KindNotFound, KindOf(s.LeaveRoom(bob.ID)))
}

func TestDeleteRoomClearsIndex(t *testing.T) {
	s, _ := newTestStore()
	room, ann, err := s.CreateRoom(CreateRoomOptions{Name: "room", PlayerName: "ann"})
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(room.Code, "bob", "", false)
	require.NoError(t, err)

	s.DeleteRoom(room.Code)
	assert.True(t, room.Disposed())
	_, ok := s.GetRoom(room.Code)
	assert.False(t, ok)
	_, ok = s.RoomForPlayer(ann.ID)
	assert.False(t, ok)
	_, ok = s.RoomForPlayer(bob.ID)
	assert.False(t, ok)

	// deleting twice is harmless
	s.DeleteRoom(room.Code)
}

func TestFinishedRoomRemovesItselfFromStore(t *testing.T) {
	s, clock := newTestStore()
	room, ann, err := s.CreateRoom(CreateRoomOptions{Name: "room", PlayerName: "ann"})
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(room.Code, "bob", "", false)
	require.NoError(t, err)

	toVoting(t, room, 2)
	require.NoError(t, room.Handle(Intent{Kind: IntentVote, PlayerID: ann.ID, Vote: false}))
	require.NoError(t, room.Handle(Intent{Kind: IntentVote, PlayerID: bob.ID, Vote: false}))
	require.Equal(t, StateFinished, room.GameState)

	clock.Advance(time.Duration(DefaultFinishGraceSec) * time.Second)
	assert.True(t, room.Disposed())
	assert.Equal(t, 0, s.Len())
	_, ok := s.RoomForPlayer(bob.ID)
	assert.False(t, ok)
}

func TestSweep(t *testing.T) {
	s, clock := newTestStore()
	idle, _, err := s.CreateRoom(CreateRoomOptions{Name: "idle", PlayerName: "ann"})
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	busy, _, err := s.CreateRoom(CreateRoomOptions{Name: "busy", PlayerName: "bob"})
	require.NoError(t, err)
	abandoned, carl, err := s.CreateRoom(CreateRoomOptions{Name: "abandoned", PlayerName: "carl"})
	require.NoError(t, err)
	abandoned.Disconnect(carl.ID)

	removed := s.Sweep(clock.Now(), 5*time.Minute)
	assert.Equal(t, 2, removed)
	_, ok := s.GetRoom(idle.Code)
	assert.False(t, ok)
	_, ok = s.GetRoom(abandoned.Code)
	assert.False(t, ok)
	_, ok = s.GetRoom(busy.Code)
	assert.True(t, ok)

	assert.Equal(t, 0, s.Sweep(clock.Now(), 5*time.Minute))
}

func TestSweepStalledRound(t *testing.T) {
	s, clock := newTestStore()
	stalled, _, err := s.CreateRoom(CreateRoomOptions{Name: "stalled", PlayerName: "ann"})
	require.NoError(t, err)
	voting, _, err := s.CreateRoom(CreateRoomOptions{Name: "voting", PlayerName: "bob"})
	require.NoError(t, err)
	stalled.GameState = StatePlaying
	voting.GameState = StateVoting

	clock.Advance(10 * time.Minute)
	active, _, err := s.CreateRoom(CreateRoomOptions{Name: "active", PlayerName: "carl"})
	require.NoError(t, err)
	active.GameState = StatePlaying

	assert.Equal(t, 2, s.Sweep(clock.Now(), 5*time.Minute))
	_, ok := s.GetRoom(stalled.Code)
	assert.False(t, ok)
	_, ok = s.GetRoom(voting.Code)
	assert.False(t, ok)
	_, ok = s.GetRoom(active.Code)
	assert.True(t, ok, "a round with recent activity is kept")
}

func TestClose(t *testing.T) {
	s, _ := newTestStore()
	a, _, err := s.CreateRoom(CreateRoomOptions{Name: "a", PlayerName: "ann"})
	require.NoError(t, err)
	b, _, err := s.CreateRoom(CreateRoomOptions{Name: "b", PlayerName: "bob"})
	require.NoError(t, err)

	s.Close()
	assert.Equal(t, 0, s.Len())
	assert.True(t, a.Disposed())
	assert.True(t, b.Disposed())
}
