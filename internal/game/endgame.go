package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/models"
	log "github.com/sirupsen/logrus"
)

// eliminate marks p as out once both their hand and the deck are empty. Returns true only on
// the call that actually eliminates them.
// Assumes lock is held.
func (r *Room) eliminate(p *models.Player) bool {
	if p == nil || !p.Eligible() || len(p.Hand) > 0 || len(r.Deck) > 0 {
		return false
	}
	p.HasWon = true
	p.IsActive = false
	r.Winners = append(r.Winners, models.Winner{ID: p.ID, Name: p.Name, Position: len(r.Winners) + 1})

	log.WithFields(log.Fields{"room": r.Code, "player": p.ID, "place": len(r.Winners)}).Info("player is out")
	r.logAction(p.ID, "player_out", map[string]interface{}{"place": len(r.Winners)})
	return true
}

// checkForWinner re-derives elimination for an acting player before their intent runs.
// Assumes lock is held.
func (r *Room) checkForWinner(playerID uuid.UUID) {
	r.afterHandChange(r.getPlayer(playerID))
}

// afterHandChange eliminates p if they just went out and repairs the roles they held. A defender
// who goes out mid-bout has beaten everything on the table, so the bout is settled as a
// successful defense.
// Assumes lock is held.
func (r *Room) afterHandChange(p *models.Player) {
	if !r.eliminate(p) {
		return
	}
	if r.checkGameEnd() {
		return
	}
	switch p.ID {
	case r.CurrentDefenderID:
		r.settleDefense()
		return
	case r.InitialAttackerID:
		r.passInitiative()
	}
	r.recomputeAdditionalAttackers()
}

// evaluateAll eliminates everyone who is out, in seat order.
// Assumes lock is held.
func (r *Room) evaluateAll() {
	for _, p := range r.seats() {
		r.eliminate(p)
	}
}

// passInitiative moves the initial attacker role to the next eligible player who is not defending.
// Assumes lock is held.
func (r *Room) passInitiative() {
	next := r.nextEligibleOther(r.InitialAttackerID, r.CurrentDefenderID)
	if next == nil {
		return
	}
	r.InitialAttackerID = next.ID
}

// ensureRoles repairs attacker and defender after eliminations outside of a bout.
// Assumes lock is held.
func (r *Room) ensureRoles() {
	if a := r.getPlayer(r.InitialAttackerID); a == nil || !a.Eligible() {
		r.passInitiative()
	}
	if d := r.getPlayer(r.CurrentDefenderID); d == nil || !d.Eligible() || d.ID == r.InitialAttackerID {
		if next := r.NextEligible(r.InitialAttackerID); next != nil && next.ID != r.InitialAttackerID {
			r.CurrentDefenderID = next.ID
		}
	}
}

// checkGameEnd ends the round when the deck is gone and at most one eligible player still holds
// cards, or when fewer than two eligible players are left at all. Returns true if the round is over.
// Assumes lock is held.
func (r *Room) checkGameEnd() bool {
	if r.GameState != StatePlaying {
		return r.GameState == StateVoting || r.GameState == StateFinished
	}
	eligible := r.eligiblePlayers()
	var holding []*models.Player
	for _, p := range eligible {
		if len(p.Hand) > 0 {
			holding = append(holding, p)
		}
	}
	if !(len(r.Deck) == 0 && len(holding) <= 1) && len(eligible) >= MinPlayers {
		return false
	}

	switch {
	case len(holding) == 1:
		r.DurakID = holding[0].ID
	case len(eligible) == 1:
		r.DurakID = eligible[0].ID
	default:
		r.IsDraw = true
	}
	r.endGame()
	return true
}

// endGame freezes the table, announces the result and opens the rematch vote.
// Assumes lock is held.
func (r *Room) endGame() {
	stopTimer(r.throwInTimer)
	r.throwInTimer = nil
	r.throwInGen++
	r.discardTable()

	r.GameState = StateVoting
	r.GamePhase = PhaseVoting
	r.AdditionalAttackers = make(map[uuid.UUID]bool)
	now := r.clock.Now()

	fields := log.Fields{"room": r.Code, "game": r.gameID, "round": r.RoundNumber, "winners": len(r.Winners)}
	if r.IsDraw {
		fields["draw"] = true
	} else {
		fields["durak"] = r.DurakID
	}
	log.WithFields(fields).Info("round over")

	result := r.result(now)
	r.logAction(r.DurakID, string(EventGameEnd), map[string]interface{}{
		"durak":   r.DurakID,
		"draw":    r.IsDraw,
		"winners": len(result.Winners),
	})
	r.fireEvent(GameEvent{
		Type: EventGameEnd,
		Payload: map[string]interface{}{
			"winners": result.Winners,
			"durakId": r.DurakID,
			"isDraw":  r.IsDraw,
			"round":   r.RoundNumber,
		},
	})
	if r.OnGameEnd != nil {
		r.OnGameEnd(result)
	}

	r.openVoteWindow()
}

// result copies the outcome of the round so it can leave the lock.
// Assumes lock is held.
func (r *Room) result(endedAt time.Time) GameResult {
	res := GameResult{
		GameID:      r.gameID,
		RoomID:      r.ID,
		RoomCode:    r.Code,
		Mode:        r.Mode,
		RoundNumber: r.RoundNumber,
		Winners:     append([]models.Winner(nil), r.Winners...),
		DurakID:     r.DurakID,
		IsDraw:      r.IsDraw,
		StartedAt:   r.StartedAt,
		EndedAt:     endedAt,
	}
	for _, p := range r.seats() {
		res.Players = append(res.Players, ResultPlayer{ID: p.ID, Name: p.Name, Position: p.Position})
	}
	return res
}
