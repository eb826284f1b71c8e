package timer

import (
	"sync"
	"time"

	"github.com/mctp-go/mctpd/std/types/priority_queue"
)

type dummyEvent struct {
	f func()
}

// DummyTimer is a manually driven clock for tests. Time only advances on
// MoveForward, which runs every callback that became due in time order,
// including callbacks scheduled by earlier ones.
type DummyTimer struct {
	lock   sync.Mutex
	now    time.Time
	events priority_queue.Queue[*dummyEvent, int64]
}

// NewDummyTimer creates a DummyTimer starting at the Unix epoch.
func NewDummyTimer() *DummyTimer {
	return &DummyTimer{
		now:    time.Unix(0, 0).UTC(),
		events: priority_queue.New[*dummyEvent, int64](),
	}
}

func (tm *DummyTimer) Now() time.Time {
	tm.lock.Lock()
	defer tm.lock.Unlock()
	return tm.now
}

// MoveForward advances the clock by d.
func (tm *DummyTimer) MoveForward(d time.Duration) {
	tm.lock.Lock()
	target := tm.now.Add(d)
	tm.lock.Unlock()

	for {
		e := tm.nextDue(target)
		if e == nil {
			break
		}
		e.f()
	}

	tm.lock.Lock()
	tm.now = target
	tm.lock.Unlock()
}

// nextDue pops the earliest event due by target and moves the clock to it.
func (tm *DummyTimer) nextDue(target time.Time) *dummyEvent {
	tm.lock.Lock()
	defer tm.lock.Unlock()

	if tm.events.Len() == 0 {
		return nil
	}
	at := tm.events.PeekPriority()
	if at > target.UnixNano() {
		return nil
	}
	tm.now = time.Unix(0, at).UTC()
	return tm.events.Pop()
}

func (tm *DummyTimer) Schedule(d time.Duration, f func()) func() error {
	tm.lock.Lock()
	defer tm.lock.Unlock()

	item := tm.events.Push(&dummyEvent{f: f}, tm.now.Add(d).UnixNano())
	return func() error {
		tm.lock.Lock()
		defer tm.lock.Unlock()
		if !tm.events.Remove(item) {
			return ErrCanceled
		}
		return nil
	}
}

// Sleep blocks until another goroutine moves the clock past d.
func (tm *DummyTimer) Sleep(d time.Duration) {
	ch := make(chan struct{})
	tm.Schedule(d, func() { close(ch) })
	<-ch
}

// Pending returns the number of scheduled events not yet run or canceled.
func (tm *DummyTimer) Pending() int {
	tm.lock.Lock()
	defer tm.lock.Unlock()
	return tm.events.Len()
}
