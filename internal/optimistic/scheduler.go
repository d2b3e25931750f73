package optimistic

import "time"

// Scheduler abstracts expiry timers so the store's timeout behavior can be
// exercised in tests without wall-clock waits.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable scheduled call. Stop reports whether the call was
// cancelled before it fired.
type Timer interface {
	Stop() bool
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// WallClock returns the production Scheduler backed by time.AfterFunc.
func WallClock() Scheduler {
	return wallScheduler{}
}
