package game

import "time"

// Timer is the handle of a scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules room timers. Rooms use the real clock unless a test swaps it.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by the time package.
var RealClock Clock = realClock{}

func stopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}
