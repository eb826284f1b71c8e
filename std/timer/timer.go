// Package timer provides the time source driving timeouts and sweeps.
package timer

import (
	"errors"
	"sync"
	"time"
)

// ErrCanceled is returned when canceling an event that already fired or
// was canceled before.
var ErrCanceled = errors.New("event has already been canceled")

// Timer is a clock that can schedule callbacks.
type Timer interface {
	// Now returns current time.
	Now() time.Time
	// Sleep sleeps for the duration.
	Sleep(time.Duration)
	// Schedule calls f after d and returns a function canceling the call.
	Schedule(d time.Duration, f func()) func() error
}

type wallTimer struct{}

// New returns a Timer following the system clock.
func New() Timer {
	return wallTimer{}
}

func (wallTimer) Now() time.Time {
	return time.Now()
}

func (wallTimer) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (wallTimer) Schedule(d time.Duration, f func()) func() error {
	t := time.AfterFunc(d, f)
	var once sync.Once
	return func() error {
		err := ErrCanceled
		once.Do(func() {
			if t.Stop() {
				err = nil
			}
		})
		return err
	}
}
