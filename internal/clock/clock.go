// Package clock abstracts time so timers can be driven deterministically
// in tests.
package clock

import "time"

// Clock schedules callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once after d. f runs on its own goroutine for the
	// real clock and synchronously inside Advance for the fake one.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or was already stopped.
	Stop() bool
}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
