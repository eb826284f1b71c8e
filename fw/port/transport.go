// Package port provides the byte-level bus drivers the router binds to.
// Every driver moves complete SMBus frames, destination address byte first.
package port

import (
	"errors"
	"sync/atomic"
)

// ErrClosed is returned by a transport after Close.
var ErrClosed = errors.New("transport closed")

// ErrFrameTooLarge is returned when a frame exceeds what the driver carries.
var ErrFrameTooLarge = errors.New("frame too large")

// Transport is one bus as seen by a node.
type Transport interface {
	String() string
	// TargetReceive blocks until a frame arrives on the bus and copies it
	// into buf. Frames not addressed to this node may be returned too.
	TargetReceive(buf []byte) (int, error)
	// ControllerSend writes frame to the device at the 7-bit address addr.
	ControllerSend(addr uint8, frame []byte) error
	// Close stops the transport; blocked calls return ErrClosed.
	Close() error
}

// Counters is implemented by transports that count traffic.
type Counters interface {
	NInFrames() uint64
	NOutFrames() uint64
	NInBytes() uint64
	NOutBytes() uint64
}

// transportBase provides logic common to all transport types.
type transportBase struct {
	running atomic.Bool

	nInFrames  atomic.Uint64
	nOutFrames atomic.Uint64
	nInBytes   atomic.Uint64
	nOutBytes  atomic.Uint64
}

func (t *transportBase) countIn(n int) {
	t.nInFrames.Add(1)
	t.nInBytes.Add(uint64(n))
}

func (t *transportBase) countOut(n int) {
	t.nOutFrames.Add(1)
	t.nOutBytes.Add(uint64(n))
}

// IsRunning returns true until the transport is closed.
func (t *transportBase) IsRunning() bool {
	return t.running.Load()
}

func (t *transportBase) NInFrames() uint64 {
	return t.nInFrames.Load()
}

func (t *transportBase) NOutFrames() uint64 {
	return t.nOutFrames.Load()
}

func (t *transportBase) NInBytes() uint64 {
	return t.nInBytes.Load()
}

func (t *transportBase) NOutBytes() uint64 {
	return t.nOutBytes.Load()
}

// inbox is a bounded frame queue shared by drivers that receive on their
// own goroutines.
type inbox struct {
	frames chan []byte
	closed chan struct{}
}

func makeInbox(size int) inbox {
	return inbox{
		frames: make(chan []byte, size),
		closed: make(chan struct{}),
	}
}

// put queues a copy of frame, or drops it when the queue is full.
func (in *inbox) put(frame []byte) bool {
	select {
	case in.frames <- append([]byte(nil), frame...):
		return true
	default:
		return false
	}
}

func (in *inbox) get(buf []byte) (int, error) {
	select {
	case f := <-in.frames:
		if len(f) > len(buf) {
			return 0, ErrFrameTooLarge
		}
		return copy(buf, f), nil
	case <-in.closed:
		return 0, ErrClosed
	}
}

func (in *inbox) close() {
	close(in.closed)
}
