package port

import (
	"fmt"
	"sync"

	"github.com/mctp-go/mctpd/fw/core"
)

// Bus is an in-memory shared bus. Every frame sent by one attached
// transport is seen by all the others, like a wire.
type Bus struct {
	mu    sync.Mutex
	nodes []*PipeTransport
	size  int
}

// NewBus creates a bus whose nodes queue up to size frames each.
func NewBus(size int) *Bus {
	return &Bus{size: size}
}

// Attach adds a node to the bus.
func (b *Bus) Attach() *PipeTransport {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := &PipeTransport{bus: b, index: len(b.nodes), inbox: makeInbox(b.size)}
	t.running.Store(true)
	b.nodes = append(b.nodes, t)
	return t
}

// NewPipe returns the two ends of a bus with two nodes.
func NewPipe() (*PipeTransport, *PipeTransport) {
	b := NewBus(16)
	return b.Attach(), b.Attach()
}

func (b *Bus) send(from *PipeTransport, frame []byte) {
	b.mu.Lock()
	nodes := b.nodes
	b.mu.Unlock()

	for _, n := range nodes {
		if n == from || !n.running.Load() {
			continue
		}
		if !n.put(frame) {
			core.Log.Debug(n, "Receive queue full - DROP")
			continue
		}
		n.countIn(len(frame))
	}
}

// PipeTransport is one node of a Bus.
type PipeTransport struct {
	transportBase
	inbox
	bus   *Bus
	index int
}

func (t *PipeTransport) String() string {
	return fmt.Sprintf("pipe-transport (node=%d)", t.index)
}

func (t *PipeTransport) TargetReceive(buf []byte) (int, error) {
	return t.get(buf)
}

func (t *PipeTransport) ControllerSend(_ uint8, frame []byte) error {
	if !t.running.Load() {
		return ErrClosed
	}
	t.bus.send(t, frame)
	t.countOut(len(frame))
	return nil
}

func (t *PipeTransport) Close() error {
	if t.running.Swap(false) {
		t.inbox.close()
	}
	return nil
}
