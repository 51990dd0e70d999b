package game

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// openVoteWindow clears previous votes and starts the rematch countdown.
// Assumes lock is held.
func (r *Room) openVoteWindow() {
	for _, p := range r.Players {
		p.VotedPlayAgain = nil
		p.Ready = false
	}
	r.voteGen++
	gen := r.voteGen
	window := r.Rules.voteWindow()
	r.VoteDeadline = r.clock.Now().Add(window)
	stopTimer(r.voteTimer)
	r.voteTimer = r.clock.AfterFunc(window, func() {
		_ = r.Handle(Intent{Kind: IntentVoteExpired, Generation: gen})
	})
}

// vote records a yes/no for another round. A second vote replaces the first.
// Assumes lock is held.
func (r *Room) vote(playerID uuid.UUID, yes bool) error {
	if r.GameState != StateVoting {
		return illegal("no rematch vote is open")
	}
	p := r.getPlayer(playerID)
	if p.IsSpectator {
		return illegal("spectators do not vote")
	}
	v := yes
	p.VotedPlayAgain = &v
	if r.allVoted() {
		r.resolveVote()
	}
	return nil
}

// voteExpired resolves the vote with whatever was collected, unless it already resolved.
// Assumes lock is held.
func (r *Room) voteExpired(gen int) error {
	if r.GameState != StateVoting || gen != r.voteGen {
		return errStale
	}
	r.resolveVote()
	return nil
}

// allVoted assumes lock is held.
func (r *Room) allVoted() bool {
	for _, p := range r.Players {
		if !p.IsSpectator && p.VotedPlayAgain == nil {
			return false
		}
	}
	return true
}

// resolveVote reseeds the room with the players who voted yes, or finishes it.
// Assumes lock is held.
func (r *Room) resolveVote() {
	stopTimer(r.voteTimer)
	r.voteTimer = nil
	r.voteGen++
	r.VoteDeadline = time.Time{}

	var yes, drop []uuid.UUID
	for _, p := range r.Players {
		if p.IsSpectator {
			continue
		}
		if p.VotedPlayAgain != nil && *p.VotedPlayAgain {
			yes = append(yes, p.ID)
		} else {
			drop = append(drop, p.ID)
		}
	}

	if len(yes) < MinPlayers {
		r.GameState = StateFinished
		r.FinishedAt = r.clock.Now()
		log.WithFields(log.Fields{"room": r.Code, "yes": len(yes)}).Info("rematch declined, room finished")
		r.logAction(uuid.Nil, "rematch_declined", map[string]interface{}{"yes": len(yes)})
		r.scheduleDisposal()
		return
	}

	for _, id := range drop {
		if p := r.getPlayer(id); p != nil {
			r.fireEventToPlayer(p, GameEvent{
				Type:    EventRoomClosed,
				Payload: map[string]interface{}{"reason": "not_rejoined"},
			})
		}
	}
	r.removePlayers(drop)

	log.WithFields(log.Fields{"room": r.Code, "players": len(yes), "dropped": len(drop)}).Info("rematch accepted")
	r.logAction(uuid.Nil, "rematch_accepted", map[string]interface{}{"players": len(yes), "dropped": len(drop)})
	r.startRound()
}
