package game

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweep deletes waiting rooms idle for longer than idleTimeout, rounds and votes stalled for as
// long, finished rooms past their grace period and rooms nobody is connected to. Returns how many rooms were removed.
func (s *RoomStore) Sweep(now time.Time, idleTimeout time.Duration) int {
	removed := 0
	for _, r := range s.snapshot() {
		reason := r.expired(now, idleTimeout)
		if reason == "" {
			continue
		}
		log.WithFields(log.Fields{"room": r.Code, "reason": reason}).Info("reaping room")
		s.DeleteRoom(r.Code)
		removed++
	}
	return removed
}

// RunReaper sweeps every interval until ctx is cancelled.
func (s *RoomStore) RunReaper(ctx context.Context, interval, idleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now, idleTimeout); n > 0 {
				log.WithField("rooms", n).Debug("reaper sweep done")
			}
		}
	}
}

// expired returns why the room should be reaped, or "" to keep it.
func (r *Room) expired(now time.Time, idleTimeout time.Duration) string {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	switch {
	case r.disposed:
		return "disposed"
	case r.connectedCount() == 0:
		return "abandoned"
	case r.GameState == StateWaiting && now.Sub(r.LastActivity) > idleTimeout:
		return "idle"
	case (r.GameState == StatePlaying || r.GameState == StateVoting) && now.Sub(r.LastActivity) > idleTimeout:
		return "stalled"
	case r.GameState == StateFinished && !r.FinishedAt.IsZero() && now.Sub(r.FinishedAt) > r.Rules.finishGrace():
		return "finished"
	}
	return ""
}
