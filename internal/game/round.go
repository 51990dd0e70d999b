package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/models"
	log "github.com/sirupsen/logrus"
)

// setReady toggles a seated player's ready flag and deals the first round once everyone is ready.
// Assumes lock is held.
func (r *Room) setReady(playerID uuid.UUID, ready bool) error {
	if r.GameState != StateWaiting {
		return illegal("game already started")
	}
	p := r.getPlayer(playerID)
	if p.IsSpectator {
		return illegal("spectators cannot ready up")
	}
	p.Ready = ready
	r.startIfAllReady()
	return nil
}

// startIfAllReady deals when at least two players are seated and all of them are ready.
// Assumes lock is held.
func (r *Room) startIfAllReady() {
	if r.GameState != StateWaiting || r.seatedCount() < MinPlayers {
		return
	}
	for _, pl := range r.Players {
		if !pl.IsSpectator && !pl.Ready {
			return
		}
	}
	r.startRound()
}

// startRound shuffles a fresh deck, deals, picks the trump and the first attacker.
// Assumes lock is held.
func (r *Room) startRound() {
	stopTimer(r.throwInTimer)
	stopTimer(r.voteTimer)
	stopTimer(r.disposeTimer)
	r.throwInGen++
	r.voteGen++

	r.Deck = BuildDeck(r.Mode, r.rng)
	r.TrumpCard = r.Deck[len(r.Deck)-1]
	r.TrumpSuit = r.TrumpCard.Suit
	MarkTrump(r.Deck, r.TrumpSuit)

	r.Discard = nil
	r.Battlefield = nil
	r.ThrowInCards = nil
	r.Winners = nil
	r.DurakID = uuid.Nil
	r.IsDraw = false
	r.maxThrowInTotal = 0
	r.validThrowInRanks = make(map[string]bool)
	r.ThrowInDeadline = time.Time{}
	r.VoteDeadline = time.Time{}
	r.FinishedAt = time.Time{}

	for _, p := range r.Players {
		p.Hand = []*models.Card{}
		p.VotedPlayAgain = nil
	}
	r.assignPositions()

	seats := r.seats()
	for i := 0; i < HandSize; i++ {
		for _, p := range seats {
			if c := r.drawCard(); c != nil {
				p.Hand = append(p.Hand, c)
			}
		}
	}

	r.CurrentDefenderID = uuid.Nil
	attacker := r.pickInitialAttacker()
	r.InitialAttackerID = attacker.ID
	if def := r.NextEligible(attacker.ID); def != nil {
		r.CurrentDefenderID = def.ID
	}
	r.recomputeAdditionalAttackers()

	r.RoundNumber++
	r.gameID = uuid.New()
	r.actionIndex = 0
	r.GameState = StatePlaying
	r.GamePhase = PhaseAttacking
	r.StartedAt = r.clock.Now()

	log.WithFields(log.Fields{
		"room":     r.Code,
		"game":     r.gameID,
		"round":    r.RoundNumber,
		"players":  len(seats),
		"trump":    r.TrumpSuit,
		"attacker": r.InitialAttackerID,
		"defender": r.CurrentDefenderID,
	}).Info("round started")
	r.logAction(uuid.Nil, "round_start", map[string]interface{}{
		"trump":    r.TrumpCard.Rank + r.TrumpCard.Suit,
		"attacker": r.InitialAttackerID,
		"defender": r.CurrentDefenderID,
	})

	if r.OnRoundStart != nil {
		r.OnRoundStart(r.roundStartSnapshot(seats))
	}

	// deals are never short, but a degenerate table still has to end cleanly
	r.checkGameEnd()
}

// attack puts a card from the actor's hand on the table as a new undefended pair.
// During a throw-in window the same request adds to the pending take instead.
// Assumes lock is held.
func (r *Room) attack(playerID uuid.UUID, cardIndex int) error {
	if r.GamePhase == PhaseThrowIn {
		return r.throwIn(playerID, cardIndex)
	}
	if r.GameState != StatePlaying || (r.GamePhase != PhaseAttacking && r.GamePhase != PhaseDefending) {
		return illegal("cannot attack during %s", r.GamePhase)
	}
	if !r.isAttacker(playerID) {
		return illegal("not an attacker this bout")
	}
	p := r.getPlayer(playerID)
	if cardIndex < 0 || cardIndex >= len(p.Hand) {
		return illegal("no card at index %d", cardIndex)
	}
	card := p.Hand[cardIndex]

	def := r.getPlayer(r.CurrentDefenderID)
	if def == nil {
		return illegal("no defender")
	}
	limit := min(MaxBoutCards, len(def.Hand))
	if r.undefendedCount() >= limit {
		return illegal("defender cannot cover another card")
	}
	if len(r.Battlefield) > 0 && !r.tableRanks()[card.Rank] {
		return illegal("rank %s is not on the table", card.Rank)
	}

	p.Hand = removeCard(p.Hand, cardIndex)
	r.Battlefield = append(r.Battlefield, &models.BattlefieldPair{Attack: card, AttackerID: playerID})
	r.GamePhase = PhaseDefending

	r.afterHandChange(p)
	return nil
}

// defend beats one undefended attack.
// Assumes lock is held.
func (r *Room) defend(playerID uuid.UUID, cardIndex, targetIndex int) error {
	if r.GameState != StatePlaying || r.GamePhase != PhaseDefending {
		return illegal("cannot defend during %s", r.GamePhase)
	}
	if playerID != r.CurrentDefenderID {
		return illegal("only the defender can defend")
	}
	p := r.getPlayer(playerID)
	if cardIndex < 0 || cardIndex >= len(p.Hand) {
		return illegal("no card at index %d", cardIndex)
	}
	if targetIndex < 0 || targetIndex >= len(r.Battlefield) {
		return illegal("no attack at index %d", targetIndex)
	}
	pair := r.Battlefield[targetIndex]
	if pair.Defended() {
		return illegal("attack %d is already defended", targetIndex)
	}
	card := p.Hand[cardIndex]
	if !CanDefend(card, pair.Attack) {
		return illegal("%s%s does not beat %s%s", card.Rank, card.Suit, pair.Attack.Rank, pair.Attack.Suit)
	}

	p.Hand = removeCard(p.Hand, cardIndex)
	pair.Defense = card
	if r.undefendedCount() == 0 {
		r.GamePhase = PhaseAttacking
	}

	r.afterHandChange(p)
	return nil
}

// deflect passes the bout on to the next player by adding a card of a rank already attacking.
// Only possible before anything on the table has been beaten.
// Assumes lock is held.
func (r *Room) deflect(playerID uuid.UUID, cardIndex int) error {
	if r.GameState != StatePlaying || r.GamePhase != PhaseDefending {
		return illegal("cannot deflect during %s", r.GamePhase)
	}
	if playerID != r.CurrentDefenderID {
		return illegal("only the defender can deflect")
	}
	for _, pair := range r.Battlefield {
		if pair.Defended() {
			return illegal("cannot deflect after defending")
		}
	}
	p := r.getPlayer(playerID)
	if cardIndex < 0 || cardIndex >= len(p.Hand) {
		return illegal("no card at index %d", cardIndex)
	}
	card := p.Hand[cardIndex]
	matches := false
	for _, pair := range r.Battlefield {
		if !pair.Defended() && pair.Attack.Rank == card.Rank {
			matches = true
			break
		}
	}
	if !matches {
		return illegal("rank %s does not match an attack", card.Rank)
	}
	next := r.NextEligible(playerID)
	if next == nil || next.ID == playerID {
		return illegal("nobody to deflect to")
	}
	if len(r.Battlefield)+1 > min(MaxBoutCards, len(next.Hand)) {
		return illegal("next defender cannot cover %d cards", len(r.Battlefield)+1)
	}

	p.Hand = removeCard(p.Hand, cardIndex)
	r.Battlefield = append(r.Battlefield, &models.BattlefieldPair{Attack: card, AttackerID: playerID})
	if next.ID == r.InitialAttackerID {
		r.InitialAttackerID = playerID
	}
	r.CurrentDefenderID = next.ID
	r.recomputeAdditionalAttackers()

	log.WithFields(log.Fields{"room": r.Code, "from": playerID, "to": next.ID}).Debug("bout deflected")
	r.afterHandChange(p)
	return nil
}

// take opens the throw-in window. The defender will pick up the whole table plus whatever the
// attackers add before the window closes.
// Assumes lock is held.
func (r *Room) take(playerID uuid.UUID) error {
	if r.GameState != StatePlaying || (r.GamePhase != PhaseAttacking && r.GamePhase != PhaseDefending) {
		return illegal("cannot take during %s", r.GamePhase)
	}
	if playerID != r.CurrentDefenderID {
		return illegal("only the defender can take")
	}
	if len(r.Battlefield) == 0 {
		return illegal("nothing to take")
	}

	def := r.getPlayer(playerID)
	r.maxThrowInTotal = min(MaxBoutCards, len(def.Hand))
	r.validThrowInRanks = r.tableRanks()
	r.ThrowInCards = nil
	r.GamePhase = PhaseThrowIn

	r.throwInGen++
	gen := r.throwInGen
	window := r.Rules.throwInWindow()
	r.ThrowInDeadline = r.clock.Now().Add(window)
	stopTimer(r.throwInTimer)
	r.throwInTimer = r.clock.AfterFunc(window, func() {
		_ = r.Handle(Intent{Kind: IntentThrowInExpired, Generation: gen})
	})
	return nil
}

// throwIn adds a card to a pending take.
// Assumes lock is held.
func (r *Room) throwIn(playerID uuid.UUID, cardIndex int) error {
	if r.GameState != StatePlaying || r.GamePhase != PhaseThrowIn {
		return illegal("no throw-in window is open")
	}
	if !r.isAttacker(playerID) {
		return illegal("only attackers can throw in")
	}
	p := r.getPlayer(playerID)
	if cardIndex < 0 || cardIndex >= len(p.Hand) {
		return illegal("no card at index %d", cardIndex)
	}
	card := p.Hand[cardIndex]
	if !r.validThrowInRanks[card.Rank] {
		return illegal("rank %s cannot be thrown in", card.Rank)
	}
	if len(r.Battlefield)+len(r.ThrowInCards) >= r.maxThrowInTotal {
		return illegal("defender cannot take more than %d cards", r.maxThrowInTotal)
	}

	p.Hand = removeCard(p.Hand, cardIndex)
	r.ThrowInCards = append(r.ThrowInCards, &models.ThrowInEntry{Card: card, PlayerID: playerID})

	r.afterHandChange(p)
	return nil
}

// finishThrowIn lets the initial attacker close the window early.
// Assumes lock is held.
func (r *Room) finishThrowIn(playerID uuid.UUID) error {
	if r.GameState != StatePlaying || r.GamePhase != PhaseThrowIn {
		return illegal("no throw-in window is open")
	}
	if playerID != r.InitialAttackerID {
		return illegal("only the initial attacker can finish the throw-in")
	}
	r.settleTake()
	return nil
}

// throwInExpired closes the window when its timer fires, unless it was already closed.
// Assumes lock is held.
func (r *Room) throwInExpired(gen int) error {
	if r.GameState != StatePlaying || r.GamePhase != PhaseThrowIn || gen != r.throwInGen {
		return errStale
	}
	r.settleTake()
	return nil
}

// endAttack closes a bout in which every attack was beaten.
// Assumes lock is held.
func (r *Room) endAttack(playerID uuid.UUID) error {
	if r.GameState != StatePlaying || r.GamePhase != PhaseAttacking {
		return illegal("cannot end the attack during %s", r.GamePhase)
	}
	if playerID != r.InitialAttackerID {
		return illegal("only the initial attacker can end the attack")
	}
	// a bout cannot be passed: the initial attacker must lead at least one card
	if len(r.Battlefield) == 0 {
		return illegal("the first attack of a bout is mandatory")
	}
	if r.undefendedCount() > 0 {
		return illegal("not every attack has been beaten")
	}
	r.settleDefense()
	return nil
}

// settleTake gives the table and the throw-in pile to the defender. Roles stay as they are.
// Assumes lock is held.
func (r *Room) settleTake() {
	stopTimer(r.throwInTimer)
	r.throwInTimer = nil
	r.throwInGen++
	r.ThrowInDeadline = time.Time{}

	def := r.getPlayer(r.CurrentDefenderID)
	taken := 0
	for _, pair := range r.Battlefield {
		def.Hand = append(def.Hand, pair.Attack)
		taken++
		if pair.Defense != nil {
			def.Hand = append(def.Hand, pair.Defense)
			taken++
		}
	}
	for _, entry := range r.ThrowInCards {
		def.Hand = append(def.Hand, entry.Card)
		taken++
	}
	r.Battlefield = nil
	r.ThrowInCards = nil
	r.maxThrowInTotal = 0
	r.validThrowInRanks = make(map[string]bool)

	for _, p := range r.attackersClockwise() {
		r.refill(p)
	}
	r.GamePhase = PhaseAttacking

	log.WithFields(log.Fields{"room": r.Code, "defender": def.ID, "cards": taken}).Debug("defender took the table")
	r.logAction(def.ID, "take_settled", map[string]interface{}{"cards": taken})
	r.afterSettlement()
}

// settleDefense discards a beaten bout and hands the initiative to the defender, or to the next
// player after the defender when the defender has already gone out.
// Assumes lock is held.
func (r *Room) settleDefense() {
	stopTimer(r.throwInTimer)
	r.throwInTimer = nil
	r.throwInGen++
	r.ThrowInDeadline = time.Time{}

	r.discardTable()

	oldDefenderID := r.CurrentDefenderID
	order := []*models.Player{}
	if a := r.getPlayer(r.InitialAttackerID); a != nil && a.Eligible() {
		order = append(order, a)
	}
	if d := r.getPlayer(oldDefenderID); d != nil && d.Eligible() {
		order = append(order, d)
	}
	for _, p := range r.attackersClockwise() {
		if p.ID != r.InitialAttackerID {
			order = append(order, p)
		}
	}
	for _, p := range order {
		r.refill(p)
	}
	r.evaluateAll()
	if r.checkGameEnd() {
		return
	}

	var attacker *models.Player
	if d := r.getPlayer(oldDefenderID); d != nil && d.Eligible() {
		attacker = d
	} else {
		attacker = r.NextEligible(oldDefenderID)
	}
	if attacker == nil {
		r.checkGameEnd()
		return
	}
	r.InitialAttackerID = attacker.ID
	if next := r.NextEligible(attacker.ID); next != nil && next.ID != attacker.ID {
		r.CurrentDefenderID = next.ID
	}
	r.GamePhase = PhaseAttacking
	r.recomputeAdditionalAttackers()

	r.logAction(oldDefenderID, "defense_settled", map[string]interface{}{
		"attacker": r.InitialAttackerID,
		"defender": r.CurrentDefenderID,
	})
}

// afterSettlement runs the elimination and endgame checks that follow every bout.
// Assumes lock is held.
func (r *Room) afterSettlement() {
	r.evaluateAll()
	if r.checkGameEnd() {
		return
	}
	r.ensureRoles()
	r.recomputeAdditionalAttackers()
}

// discardTable moves every table and throw-in card onto the discard pile.
// Assumes lock is held.
func (r *Room) discardTable() {
	for _, pair := range r.Battlefield {
		r.Discard = append(r.Discard, pair.Attack)
		if pair.Defense != nil {
			r.Discard = append(r.Discard, pair.Defense)
		}
	}
	for _, entry := range r.ThrowInCards {
		r.Discard = append(r.Discard, entry.Card)
	}
	r.Battlefield = nil
	r.ThrowInCards = nil
	r.maxThrowInTotal = 0
	r.validThrowInRanks = make(map[string]bool)
}

// undefendedCount assumes lock is held.
func (r *Room) undefendedCount() int {
	n := 0
	for _, pair := range r.Battlefield {
		if !pair.Defended() {
			n++
		}
	}
	return n
}

func removeCard(hand []*models.Card, idx int) []*models.Card {
	out := make([]*models.Card, 0, len(hand)-1)
	out = append(out, hand[:idx]...)
	return append(out, hand[idx+1:]...)
}

// roundStartSnapshot copies the deal so it can leave the lock.
// Assumes lock is held.
func (r *Room) roundStartSnapshot(seats []*models.Player) RoundStart {
	start := RoundStart{
		GameID:      r.gameID,
		RoomCode:    r.Code,
		Mode:        r.Mode,
		RoundNumber: r.RoundNumber,
		TrumpCard:   *r.TrumpCard,
		Deck:        make([]models.Card, 0, len(r.Deck)),
		Hands:       make(map[uuid.UUID][]models.Card, len(seats)),
		StartedAt:   r.StartedAt,
	}
	for _, c := range r.Deck {
		start.Deck = append(start.Deck, *c)
	}
	for _, p := range seats {
		hand := make([]models.Card, 0, len(p.Hand))
		for _, c := range p.Hand {
			hand = append(hand, *c)
		}
		start.Hands[p.ID] = hand
	}
	return start
}
