package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/mctp-go/mctpd/fw/core"
	"github.com/mctp-go/mctpd/fw/port"
	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/i2c"
	"github.com/mctp-go/mctpd/std/mctp/stack"
)

// outbound is one preallocated send slot of a port.
type outbound struct {
	buf  [mctp.MaxPayload]byte
	frag *stack.Fragmenter
	addr uint8
}

// Port binds one transport to the router through an I2C handler.
type Port struct {
	id        PortId
	name      string
	label     string
	r         *Router
	transport port.Transport
	handler   *i2c.Handler

	slots [mctp.PortTxQueue]outbound
	free  chan *outbound
	txq   chan *outbound

	nmu       sync.Mutex
	neighbors map[mctp.Eid]uint8

	// owned by the send and receive goroutines
	txFrame [i2c.MaxFrame]byte
	rxFrame [i2c.MaxFrame]byte
}

// PortOptions configures a port added to a Router.
type PortOptions struct {
	// Name used in logs and metrics; defaults to the port index
	Name string
	// Own 7-bit bus address
	Addr uint8
	i2c.HandlerOptions
}

func newPort(r *Router, id PortId, t port.Transport, opts PortOptions) *Port {
	p := &Port{
		id:        id,
		name:      opts.Name,
		label:     strconv.Itoa(int(id)),
		r:         r,
		transport: t,
		free:      make(chan *outbound, mctp.PortTxQueue),
		txq:       make(chan *outbound, mctp.PortTxQueue),
		neighbors: map[mctp.Eid]uint8{},
	}
	p.handler = i2c.NewHandler(opts.Addr, opts.HandlerOptions)
	for i := range p.slots {
		p.free <- &p.slots[i]
	}
	if opts.Name != "" {
		p.label = opts.Name
	}
	return p
}

func (p *Port) String() string {
	return fmt.Sprintf("port (%d %s)", p.id, p.name)
}

// Id returns the index of the port.
func (p *Port) Id() PortId {
	return p.id
}

// Name returns the configured port name.
func (p *Port) Name() string {
	return p.name
}

// Transport returns the bound transport.
func (p *Port) Transport() port.Transport {
	return p.transport
}

// Mtu returns the MCTP packet size used on this port.
func (p *Port) Mtu() int {
	return p.handler.Mtu()
}

// SetNeighbor records the bus address of eid.
func (p *Port) SetNeighbor(eid mctp.Eid, addr uint8) {
	p.nmu.Lock()
	defer p.nmu.Unlock()
	p.neighbors[eid] = addr
}

// Neighbor returns the bus address of eid, if known.
func (p *Port) Neighbor(eid mctp.Eid) (uint8, bool) {
	p.nmu.Lock()
	defer p.nmu.Unlock()
	addr, ok := p.neighbors[eid]
	return addr, ok
}

// learn records the address a message came from.
func (p *Port) learn(eid mctp.Eid, addr uint8) {
	if !eid.Valid() {
		return
	}
	p.nmu.Lock()
	defer p.nmu.Unlock()
	if old, ok := p.neighbors[eid]; !ok || old != addr {
		core.Log.Debug(p, "Learned neighbor", "eid", eid, "addr", addr)
		p.neighbors[eid] = addr
	}
}

// acquire waits for a free send slot until ctx is done.
func (p *Port) acquire(ctx context.Context) (*outbound, error) {
	select {
	case ob := <-p.free:
		return ob, nil
	default:
	}

	select {
	case ob := <-p.free:
		return ob, nil
	case <-p.r.quit:
		return nil, mctp.ErrClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, mctp.ErrQueueFull
		}
		return nil, ctx.Err()
	}
}

// tryAcquire takes a free send slot without waiting.
func (p *Port) tryAcquire() *outbound {
	select {
	case ob := <-p.free:
		return ob
	default:
		return nil
	}
}

func (p *Port) release(ob *outbound) {
	ob.frag = nil
	p.free <- ob
}

// enqueue hands a filled slot to the send goroutine.
// Never blocks since there are as many queue entries as slots.
func (p *Port) enqueue(ob *outbound, f *stack.Fragmenter, addr uint8) {
	ob.frag = f
	ob.addr = addr
	p.txq <- ob
}

// QueueLen returns the number of messages waiting to be sent.
func (p *Port) QueueLen() int {
	return len(p.txq)
}

func (p *Port) runSend() {
	defer p.r.wg.Done()
	for {
		select {
		case ob := <-p.txq:
			p.transmit(ob)
			p.release(ob)
		case <-p.r.quit:
			return
		}
	}
}

func (p *Port) transmit(ob *outbound) {
	if err := p.handler.SendEnqueue(ob.frag, ob.addr); err != nil {
		core.Log.Warn(p, "Unable to queue message", "err", err)
		p.r.metrics.drops.WithLabelValues(DropSend).Inc()
		return
	}

	for {
		out := p.handler.SendFill(p.txFrame[:])
		switch out.Kind {
		case i2c.SendPacket:
			if err := p.transport.ControllerSend(out.Dest, out.Packet); err != nil {
				core.Log.Warn(p, "Unable to send frame - DROP", "dest", out.Dest, "err", err)
				p.handler.SendCancel()
				p.r.metrics.drops.WithLabelValues(DropSend).Inc()
				return
			}
			p.r.metrics.txFrames.WithLabelValues(p.label).Inc()
		case i2c.SendDone:
			p.r.metrics.txMessages.WithLabelValues(p.label).Inc()
			return
		default:
			return
		}
	}
}

func (p *Port) runReceive() {
	defer p.r.wg.Done()
	for {
		n, err := p.transport.TargetReceive(p.rxFrame[:])
		if err != nil {
			if errors.Is(err, port.ErrFrameTooLarge) {
				p.r.metrics.drops.WithLabelValues(DropDecode).Inc()
				continue
			}
			if !errors.Is(err, port.ErrClosed) && p.r.IsRunning() {
				core.Log.Error(p, "Unable to receive - DOWN", "err", err)
			}
			return
		}
		p.r.metrics.rxFrames.WithLabelValues(p.label).Inc()
		p.r.receive(p, p.rxFrame[:n])
	}
}
