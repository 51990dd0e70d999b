package game

import (
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/models"
)

// assignPositions seats every non-spectator clockwise in join order.
// Assumes lock is held.
func (r *Room) assignPositions() {
	pos := 0
	for _, p := range r.Players {
		if p.IsSpectator {
			p.Position = -1
			p.IsActive = false
			continue
		}
		p.Position = pos
		p.IsActive = true
		p.HasWon = false
		pos++
	}
}

// seats returns the seated players ordered by position.
// Assumes lock is held.
func (r *Room) seats() []*models.Player {
	seated := make([]*models.Player, 0, len(r.Players))
	for _, p := range r.Players {
		if !p.IsSpectator && p.Position >= 0 {
			seated = append(seated, p)
		}
	}
	sort.SliceStable(seated, func(i, j int) bool { return seated[i].Position < seated[j].Position })
	return seated
}

// NextEligible returns the first eligible player clockwise after afterID, probing at most one
// full lap. The lap ends on afterID itself, so callers that need someone else must compare ids.
// Returns nil when afterID is not seated or nobody is eligible.
// Assumes lock is held.
func (r *Room) NextEligible(afterID uuid.UUID) *models.Player {
	seats := r.seats()
	n := len(seats)
	start := -1
	for i, p := range seats {
		if p.ID == afterID {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	for i := 1; i <= n; i++ {
		p := seats[(start+i)%n]
		if p.Eligible() {
			return p
		}
	}
	return nil
}

// nextEligibleOther is NextEligible restricted to players other than afterID and skip.
// Assumes lock is held.
func (r *Room) nextEligibleOther(afterID, skip uuid.UUID) *models.Player {
	next := r.NextEligible(afterID)
	if next != nil && next.ID == skip {
		next = r.NextEligible(skip)
	}
	if next == nil || next.ID == afterID || next.ID == skip {
		return nil
	}
	return next
}

// eligiblePlayers returns every player still in the rotation, in seat order.
// Assumes lock is held.
func (r *Room) eligiblePlayers() []*models.Player {
	var out []*models.Player
	for _, p := range r.seats() {
		if p.Eligible() {
			out = append(out, p)
		}
	}
	return out
}

// EligibleAttackers lists every eligible player holding cards except the current defender.
// Assumes lock is held.
func (r *Room) EligibleAttackers() []*models.Player {
	var out []*models.Player
	for _, p := range r.eligiblePlayers() {
		if p.ID != r.CurrentDefenderID && len(p.Hand) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// recomputeAdditionalAttackers assumes lock is held.
func (r *Room) recomputeAdditionalAttackers() {
	r.AdditionalAttackers = make(map[uuid.UUID]bool)
	for _, p := range r.EligibleAttackers() {
		if p.ID != r.InitialAttackerID {
			r.AdditionalAttackers[p.ID] = true
		}
	}
}

// isAttacker reports whether id may put cards on the table this bout.
// Assumes lock is held.
func (r *Room) isAttacker(id uuid.UUID) bool {
	if id == r.CurrentDefenderID {
		return false
	}
	return id == r.InitialAttackerID || r.AdditionalAttackers[id]
}

// attackersClockwise returns the initial attacker followed by every other eligible player in
// seat order, skipping the defender. This is the refill order after a take.
// Assumes lock is held.
func (r *Room) attackersClockwise() []*models.Player {
	var out []*models.Player
	if a := r.getPlayer(r.InitialAttackerID); a != nil && a.Eligible() {
		out = append(out, a)
	}
	seats := r.seats()
	n := len(seats)
	start := 0
	for i, p := range seats {
		if p.ID == r.InitialAttackerID {
			start = i
			break
		}
	}
	for i := 1; i < n; i++ {
		p := seats[(start+i)%n]
		if p.Eligible() && p.ID != r.CurrentDefenderID && p.ID != r.InitialAttackerID {
			out = append(out, p)
		}
	}
	return out
}

// pickInitialAttacker chooses the holder of the lowest trump, or a random eligible player when
// nobody holds one.
// Assumes lock is held.
func (r *Room) pickInitialAttacker() *models.Player {
	var holder *models.Player
	lowest := 0
	eligible := r.eligiblePlayers()
	for _, p := range eligible {
		for _, c := range p.Hand {
			if c.IsTrump && (holder == nil || c.Value < lowest) {
				holder = p
				lowest = c.Value
			}
		}
	}
	if holder != nil || len(eligible) == 0 {
		return holder
	}
	return eligible[r.rng.Intn(len(eligible))]
}
