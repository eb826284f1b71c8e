// Package router multiplexes one MCTP stack across transport ports.
//
// Every call into the stack is made under a single mutex. Each port runs a
// receive goroutine feeding the stack and a send goroutine draining its
// bounded queue. Lock order is stackMu, then mu.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mctp-go/mctpd/fw/core"
	"github.com/mctp-go/mctpd/fw/port"
	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/i2c"
	"github.com/mctp-go/mctpd/std/mctp/stack"
	"github.com/mctp-go/mctpd/std/timer"
	"github.com/mctp-go/mctpd/std/types/optional"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrTooManyPorts   = errors.New("too many ports")
	ErrStarted        = errors.New("router already started")
	ErrListenerExists = errors.New("listener already registered")
)

// Options configures a Router.
type Options struct {
	// Initial endpoint ID; EidNull until assigned
	Eid   mctp.Eid
	Stack stack.Options
	// Wait for a send slot when the caller's context has no deadline
	QueueTimeout time.Duration
	// Mailbox size of each listener
	ListenerQueue int
	// Interval between timeout sweeps
	SweepInterval time.Duration
	// Clock driving timeouts; the wall clock when nil
	Timer timer.Timer
	// Registerer for router metrics; a private registry when nil
	Registerer prometheus.Registerer
	// Port selection for EIDs that are not direct neighbors; the router's
	// own RouteTable when nil
	Lookup PortLookup
}

// DefaultOptions returns the default router options.
func DefaultOptions() Options {
	return Options{
		Stack:         stack.DefaultOptions(),
		QueueTimeout:  time.Second,
		ListenerQueue: 4,
		SweepInterval: 500 * time.Millisecond,
	}
}

type state int

const (
	stateCreated state = iota
	stateRunning
	stateStopped
)

// Router owns the stack, the ports and the application surface:
// requests, responses and listeners.
type Router struct {
	opts    Options
	timer   timer.Timer
	routes  RouteTable
	lookup  PortLookup
	metrics *metrics

	stackMu sync.Mutex
	stack   *stack.Stack

	mu          sync.Mutex
	state       state
	ports       []*Port
	listeners   map[mctp.MsgType]*Listener
	requests    map[flowKey]*Request
	cancelSweep func() error

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a router with no ports.
func New(opts Options) *Router {
	if opts.Timer == nil {
		opts.Timer = timer.New()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.QueueTimeout <= 0 || opts.SweepInterval <= 0 || opts.ListenerQueue < 1 {
		panic("[BUG] invalid router options")
	}

	r := &Router{
		opts:      opts,
		timer:     opts.Timer,
		stack:     stack.NewStack(opts.Eid, opts.Stack),
		listeners: map[mctp.MsgType]*Listener{},
		requests:  map[flowKey]*Request{},
		quit:      make(chan struct{}),
	}
	r.lookup = opts.Lookup
	if r.lookup == nil {
		r.lookup = &r.routes
	}
	r.metrics = newMetrics(opts.Registerer, r)
	return r
}

func (r *Router) String() string {
	return "router"
}

// Eid returns the endpoint ID of this router.
func (r *Router) Eid() mctp.Eid {
	r.stackMu.Lock()
	defer r.stackMu.Unlock()
	return r.stack.Eid()
}

// SetEid changes the endpoint ID. Outstanding requests are kept.
func (r *Router) SetEid(eid mctp.Eid) error {
	if eid != mctp.EidNull && !eid.Valid() {
		return mctp.ErrBadArgument{Item: "eid", Value: eid}
	}
	r.stackMu.Lock()
	defer r.stackMu.Unlock()
	if old := r.stack.Eid(); old != eid {
		core.Log.Info(r, "Endpoint ID changed", "old", old, "new", eid)
		r.stack.SetEid(eid)
	}
	return nil
}

// Routes returns the static route table. It is consulted unless
// Options.Lookup is set.
func (r *Router) Routes() *RouteTable {
	return &r.routes
}

// AddPort binds a transport. Ports can only be added before Start.
func (r *Router) AddPort(t port.Transport, opts PortOptions) (*Port, error) {
	if opts.Addr > i2c.MaxAddr {
		return nil, mctp.ErrBadArgument{Item: "port address", Value: opts.Addr}
	}
	if opts.Mtu != 0 && (opts.Mtu < mctp.MinMtu || opts.Mtu > i2c.MaxMtu) {
		return nil, mctp.ErrBadArgument{Item: "port mtu", Value: opts.Mtu}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateCreated {
		return nil, ErrStarted
	}
	if len(r.ports) >= mctp.MaxPorts {
		return nil, ErrTooManyPorts
	}

	p := newPort(r, PortId(len(r.ports)), t, opts)
	r.ports = append(r.ports, p)
	core.Log.Info(r, "Added port", "port", p.id, "transport", t, "addr", opts.Addr, "mtu", p.Mtu())
	return p, nil
}

// Port returns the port with the given index.
func (r *Router) Port(id PortId) *Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.ports) {
		return nil
	}
	return r.ports[id]
}

// Ports returns all ports.
func (r *Router) Ports() []*Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Port(nil), r.ports...)
}

// Start launches the port goroutines and the timeout sweep.
func (r *Router) Start() error {
	eid := r.Eid()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateCreated {
		return ErrStarted
	}
	r.state = stateRunning

	for _, p := range r.ports {
		r.wg.Add(2)
		go p.runReceive()
		go p.runSend()
	}
	r.cancelSweep = r.timer.Schedule(r.opts.SweepInterval, r.runSweep)

	core.Log.Info(r, "Router started", "eid", eid, "ports", len(r.ports))
	return nil
}

// IsRunning returns true between Start and Stop.
func (r *Router) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateRunning
}

func (r *Router) isStopped() bool {
	select {
	case <-r.quit:
		return true
	default:
		return false
	}
}

// Stop closes all transports and fails pending requests and listeners
// with mctp.ErrClosed.
func (r *Router) Stop() {
	r.mu.Lock()
	if r.state == stateStopped {
		r.mu.Unlock()
		return
	}
	r.state = stateStopped
	if r.cancelSweep != nil {
		r.cancelSweep()
	}
	ports := r.ports
	r.mu.Unlock()

	close(r.quit)
	for _, p := range ports {
		if err := p.transport.Close(); err != nil {
			core.Log.Warn(p, "Unable to close transport", "err", err)
		}
	}
	r.wg.Wait()

	r.stackMu.Lock()
	r.stack.Reset()
	r.stackMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, q := range r.requests {
		q.finish(mctp.ErrClosed)
		delete(r.requests, k)
	}
	for t, l := range r.listeners {
		l.shutdown()
		delete(r.listeners, t)
	}
	core.Log.Info(r, "Router stopped")
}

// Listen registers the listener for requests of type typ.
func (r *Router) Listen(typ mctp.MsgType) (*Listener, error) {
	if typ > 0x7F {
		return nil, mctp.ErrBadArgument{Item: "message type", Value: typ}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateStopped {
		return nil, mctp.ErrClosed
	}
	if _, ok := r.listeners[typ]; ok {
		return nil, ErrListenerExists
	}
	l := &Listener{
		r:       r,
		typ:     typ,
		mailbox: make(chan *Message, r.opts.ListenerQueue),
		closed:  make(chan struct{}),
	}
	r.listeners[typ] = l
	return l, nil
}

func (r *Router) removeListener(l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners[l.typ] == l {
		delete(r.listeners, l.typ)
	}
}

// withQueueTimeout applies the default queue timeout to contexts without
// a deadline.
func (r *Router) withQueueTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.QueueTimeout)
}

// SendRequest sends a request to eid and returns the handle to wait for
// its response on. It waits for a send slot until ctx is done and fails
// with mctp.ErrQueueFull if none frees up before the deadline.
func (r *Router) SendRequest(
	ctx context.Context, eid mctp.Eid, typ mctp.MsgType, ic bool, body []byte,
) (*Request, error) {
	if r.isStopped() {
		return nil, mctp.ErrClosed
	}
	if 1+len(body) > mctp.MaxPayload {
		return nil, mctp.ErrMessageTooLarge
	}
	p, addr, err := r.route(eid, optional.None[PortId]())
	if err != nil {
		r.metrics.drops.WithLabelValues(DropNoRoute).Inc()
		return nil, err
	}

	qctx, cancel := r.withQueueTimeout(ctx)
	defer cancel()
	ob, err := p.acquire(qctx)
	if err != nil {
		if errors.Is(err, mctp.ErrQueueFull) {
			r.metrics.drops.WithLabelValues(DropQueueFull).Inc()
		}
		return nil, err
	}
	payload, err := fillPayload(ob.buf[:], typ, ic, body)
	if err != nil {
		p.release(ob)
		return nil, err
	}

	r.stackMu.Lock()
	defer r.stackMu.Unlock()

	now := r.timer.Now()
	f, err := r.stack.FragmentRequest(eid, payload, p.Mtu(), now)
	if err != nil {
		p.release(ob)
		return nil, err
	}

	req := newRequest(r, flowKey{peer: eid, tag: f.Tag().Value}, p.id, now)
	r.mu.Lock()
	r.requests[req.key] = req
	r.mu.Unlock()

	p.enqueue(ob, f, addr)
	return req, nil
}

// Respond sends body as the response to the request req, reusing its tag.
func (r *Router) Respond(ctx context.Context, req *Message, body []byte) error {
	if r.isStopped() {
		return mctp.ErrClosed
	}
	if !req.Tag.Owner {
		return mctp.ErrBadArgument{Item: "request tag", Value: req.Tag}
	}
	p := r.Port(req.Port)
	if p == nil {
		return mctp.ErrBadArgument{Item: "port", Value: req.Port}
	}

	qctx, cancel := r.withQueueTimeout(ctx)
	defer cancel()
	ob, err := p.acquire(qctx)
	if err != nil {
		if errors.Is(err, mctp.ErrQueueFull) {
			r.metrics.drops.WithLabelValues(DropQueueFull).Inc()
		}
		return err
	}
	payload, err := fillPayload(ob.buf[:], req.Type, false, body)
	if err != nil {
		p.release(ob)
		return err
	}

	r.stackMu.Lock()
	defer r.stackMu.Unlock()

	f, err := r.stack.FragmentResponse(&stack.Message{Source: req.Source, Dest: req.Dest, Tag: req.Tag}, payload, p.Mtu())
	if err != nil {
		p.release(ob)
		return err
	}
	p.enqueue(ob, f, req.addr)
	return nil
}

// Exchange sends a request and waits for its response body. Without a
// context deadline it waits until the flow times out.
func (r *Router) Exchange(
	ctx context.Context, eid mctp.Eid, typ mctp.MsgType, body []byte, resp []byte,
) (int, error) {
	req, err := r.SendRequest(ctx, eid, typ, false, body)
	if err != nil {
		return 0, err
	}
	defer req.Close()

	m, err := req.Recv(ctx, resp)
	if err != nil {
		return 0, err
	}
	if m.Type != typ {
		return 0, fmt.Errorf("response of type %s to %s request", m.Type, typ)
	}
	return len(m.Body), nil
}

func (r *Router) closeRequest(q *Request) {
	r.stackMu.Lock()
	defer r.stackMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests[q.key] == q {
		r.stack.CompleteFlow(q.key.peer, q.key.tag)
		delete(r.requests, q.key)
	}
	q.finish(mctp.ErrClosed)
}

// route finds the port and bus address carrying messages to eid.
// With the built-in route table, directly attached neighbors win over
// configured ranges. A custom PortLookup picks the port itself and the
// address comes from that port's neighbors.
func (r *Router) route(eid mctp.Eid, source optional.Optional[PortId]) (*Port, uint8, error) {
	ports := r.Ports()
	src, fromPort := source.Get()

	if fromPort && int(src) < len(ports) {
		// Already on the bus it came from
		if _, ok := ports[src].Neighbor(eid); ok {
			return nil, 0, mctp.ErrNoRoute
		}
	}

	table, builtin := r.lookup.(*RouteTable)
	if !builtin {
		id, ok := r.lookup.ByEid(eid, source).Get()
		if !ok || int(id) >= len(ports) || (fromPort && id == src) {
			return nil, 0, mctp.ErrNoRoute
		}
		addr, ok := ports[id].Neighbor(eid)
		if !ok {
			return nil, 0, mctp.ErrNoRoute
		}
		return ports[id], addr, nil
	}

	for _, p := range ports {
		if fromPort && p.id == src {
			continue
		}
		if addr, ok := p.Neighbor(eid); ok {
			return p, addr, nil
		}
	}

	id, via, ok := table.Lookup(eid, source)
	if !ok || int(id) >= len(ports) {
		return nil, 0, mctp.ErrNoRoute
	}
	p := ports[id]
	if via == mctp.EidNull {
		via = eid
	}
	addr, ok := p.Neighbor(via)
	if !ok {
		return nil, 0, mctp.ErrNoRoute
	}
	return p, addr, nil
}

// receive feeds one frame from p into the stack and dispatches the
// message it completes.
func (r *Router) receive(p *Port, frame []byte) {
	r.stackMu.Lock()
	defer r.stackMu.Unlock()

	msg, addr, err := p.handler.Receive(frame, r.stack, r.timer.Now())
	if err != nil {
		r.dropFrame(p, err)
		return
	}
	if msg == nil {
		return
	}
	p.learn(msg.Source, addr)

	switch msg.Dest {
	case r.stack.Eid(), mctp.EidNull, mctp.EidBroadcast:
		r.deliver(p, msg, addr)
	default:
		r.bridge(p, msg)
	}
}

func (r *Router) dropFrame(p *Port, err error) {
	reason := DropDecode
	switch {
	case errors.Is(err, i2c.ErrAddressMismatch):
		// Frames for other targets are normal on a shared bus
		r.metrics.drops.WithLabelValues(DropAddress).Inc()
		return
	case errors.Is(err, i2c.ErrPec):
		reason = DropPec
	case errors.Is(err, mctp.ErrSequence):
		reason = DropSequence
	case errors.Is(err, mctp.ErrNoReassemblySlot):
		reason = DropNoSlot
	case errors.Is(err, mctp.ErrUnknownConversation):
		reason = DropUnknown
	case errors.Is(err, mctp.ErrMessageTooLarge):
		reason = DropTooLarge
	}
	core.Log.Debug(p, "Invalid frame - DROP", "reason", reason, "err", err)
	r.metrics.drops.WithLabelValues(reason).Inc()
}

// deliver hands a local message to its request or listener.
// Called with stackMu held.
func (r *Router) deliver(p *Port, msg *stack.Message, addr uint8) {
	m := newMessage(msg, p.id, addr)
	r.metrics.rxMessages.WithLabelValues(p.label, m.Type.String()).Inc()

	if !m.Tag.Owner {
		key := flowKey{peer: m.Source, tag: m.Tag.Value}
		var q *Request
		if r.stack.CompleteFlow(key.peer, key.tag) {
			r.mu.Lock()
			q = r.requests[key]
			delete(r.requests, key)
			r.mu.Unlock()
		}
		if q == nil {
			core.Log.Debug(p, "Unmatched response - DROP", "msg", m)
			r.metrics.drops.WithLabelValues(DropUnmatched).Inc()
			return
		}
		r.metrics.latency.Observe(r.timer.Now().Sub(q.sent).Seconds())
		q.complete(m)
		return
	}

	r.mu.Lock()
	l := r.listeners[m.Type]
	r.mu.Unlock()
	if l == nil {
		core.Log.Debug(p, "No listener - DROP", "msg", m)
		r.metrics.drops.WithLabelValues(DropNoListener).Inc()
		return
	}
	if !l.offer(m) {
		core.Log.Debug(l, "Mailbox full - DROP", "msg", m)
		r.metrics.drops.WithLabelValues(DropListenerFull).Inc()
	}
}

// bridge forwards a message for another endpoint to the port that
// reaches it. The source EID and tag are kept and no flow is consumed.
// Called with stackMu held.
func (r *Router) bridge(in *Port, msg *stack.Message) {
	out, addr, err := r.route(msg.Dest, optional.Some(in.id))
	if err != nil {
		core.Log.Debug(in, "No route - DROP", "dest", msg.Dest, "src", msg.Source)
		r.metrics.drops.WithLabelValues(DropNoRoute).Inc()
		return
	}

	ob := out.tryAcquire()
	if ob == nil {
		core.Log.Debug(out, "Queue full - DROP", "dest", msg.Dest, "src", msg.Source)
		r.metrics.drops.WithLabelValues(DropQueueFull).Inc()
		return
	}
	payload := ob.buf[:copy(ob.buf[:], msg.Payload)]
	f, err := stack.NewFragmenter(msg.Source, msg.Dest, msg.Tag, payload, out.Mtu())
	if err != nil {
		out.release(ob)
		r.metrics.drops.WithLabelValues(DropTooLarge).Inc()
		return
	}

	out.enqueue(ob, f, addr)
	r.metrics.bridged.WithLabelValues(out.label).Inc()
	core.Log.Trace(r, "Bridged message", "src", msg.Source, "dest", msg.Dest, "from", in.id, "to", out.id)
}

// Sweep drops expired reassembly contexts and fails timed out requests
// with mctp.ErrTimedOut. It returns the number of items removed.
func (r *Router) Sweep() int {
	r.stackMu.Lock()
	defer r.stackMu.Unlock()
	return r.stack.SweepTimeouts(r.timer.Now(), r.expireFlow)
}

func (r *Router) expireFlow(peer mctp.Eid, tag mctp.TagValue) {
	key := flowKey{peer: peer, tag: tag}
	r.mu.Lock()
	q := r.requests[key]
	delete(r.requests, key)
	r.mu.Unlock()

	if q != nil {
		core.Log.Debug(q, "Request timed out")
		q.finish(mctp.ErrTimedOut)
	}
}

func (r *Router) runSweep() {
	r.Sweep()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateRunning {
		r.cancelSweep = r.timer.Schedule(r.opts.SweepInterval, r.runSweep)
	}
}
