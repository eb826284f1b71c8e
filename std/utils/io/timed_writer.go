package io

import (
	"io"
	"sync"
	"time"

	"github.com/mctp-go/mctpd/std/timer"
)

// TimedWriter batches whole frames for a stream socket. It flushes when
// maxQueue frames are pending or the delay passes after the first
// unflushed frame. A frame is never split across two flushes, and a zero
// delay flushes every frame.
type TimedWriter struct {
	mu    sync.Mutex
	w     io.Writer
	clock timer.Timer

	buf      []byte
	delay    time.Duration
	maxQueue int

	queued int
	cancel func() error
	err    error
}

func NewTimedWriter(w io.Writer, bufsize int) *TimedWriter {
	return &TimedWriter{
		w:        w,
		clock:    timer.New(),
		buf:      make([]byte, 0, bufsize),
		delay:    time.Millisecond,
		maxQueue: 8,
	}
}

func (w *TimedWriter) SetDelay(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delay = d
}

func (w *TimedWriter) SetMaxQueue(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxQueue = max(n, 1)
}

// SetTimer replaces the clock scheduling delayed flushes.
func (w *TimedWriter) SetTimer(t timer.Timer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clock = t
}

// Buffered returns the number of bytes waiting for a flush.
func (w *TimedWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

func (w *TimedWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Write queues p as one frame. An error from a delayed flush is returned
// once, by the next Write. Errors of a flush made by Write or Flush are
// returned only there.
func (w *TimedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.err; err != nil {
		w.err = nil
		return 0, err
	}

	if len(w.buf)+len(p) > cap(w.buf) {
		if err := w.flushLocked(); err != nil {
			return 0, err
		}
	}
	if len(p) > cap(w.buf) {
		return w.w.Write(p)
	}

	w.buf = append(w.buf, p...)
	w.queued++
	if w.delay == 0 || w.queued >= w.maxQueue {
		return len(p), w.flushLocked()
	}
	if w.cancel == nil {
		w.cancel = w.clock.Schedule(w.delay, w.delayedFlush)
	}
	return len(p), nil
}

// delayedFlush keeps its error for the next Write, since nobody waits on it.
func (w *TimedWriter) delayedFlush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		w.err = err
	}
}

func (w *TimedWriter) flushLocked() error {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.queued = 0
	if len(w.buf) == 0 {
		return nil
	}

	_, err := w.w.Write(w.buf)
	w.buf = w.buf[:0]
	return err
}
