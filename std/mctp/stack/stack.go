package stack

import (
	"fmt"
	"time"

	"github.com/mctp-go/mctpd/std/log"
	"github.com/mctp-go/mctpd/std/mctp"
)

// Options are the runtime timing parameters of a Stack.
type Options struct {
	// Lifetime of a reassembly context from its first packet.
	ReassemblyTimeout time.Duration
	// Lifetime of an outstanding request flow.
	FlowTimeout time.Duration
	// Minimum idle time before a busy context may be evicted.
	EvictGrace time.Duration
}

// DefaultOptions returns the default stack timing.
func DefaultOptions() Options {
	return Options{
		ReassemblyTimeout: mctp.ReassemblyTimeout,
		FlowTimeout:       mctp.ReassemblyTimeout,
		EvictGrace:        mctp.EvictGrace,
	}
}

// Stack is the transport-independent MCTP engine: reassembly contexts and
// the table of requests this endpoint owns.
//
// A Stack is not safe for concurrent use. Callers sharing one across
// goroutines must serialize every method call.
type Stack struct {
	eid     mctp.Eid
	opts    Options
	pool    pool
	flows   flowTable
	nextTag mctp.TagValue
	out     Message
}

// NewStack creates a Stack for endpoint own.
func NewStack(own mctp.Eid, opts Options) *Stack {
	if opts.ReassemblyTimeout <= 0 || opts.FlowTimeout <= 0 || opts.EvictGrace < 0 {
		panic("[BUG] invalid stack options")
	}
	return &Stack{eid: own, opts: opts}
}

func (s *Stack) String() string {
	return fmt.Sprintf("mctp-stack (%s)", s.eid)
}

// Eid returns the endpoint ID of this stack.
func (s *Stack) Eid() mctp.Eid {
	return s.eid
}

// SetEid changes the endpoint ID used for outgoing messages.
func (s *Stack) SetEid(eid mctp.Eid) {
	s.eid = eid
}

// Receive feeds one MCTP packet (header included) into reassembly.
// It returns the completed Message on End-of-Message, and nil while
// the message is still in progress.
func (s *Stack) Receive(pkt []byte, now time.Time) (*Message, error) {
	hdr, err := mctp.ParseHeader(pkt)
	if err != nil {
		return nil, err
	}
	data := pkt[mctp.HeaderLen:]
	if len(data) == 0 {
		return nil, mctp.ErrTruncated
	}

	key := convKey{source: hdr.Source, dest: hdr.Dest, tag: hdr.Tag}
	r := s.pool.lookup(key)
	if r != nil && r.expired(now) {
		log.Debug(s, "Reassembly expired on arrival", "src", hdr.Source, "tag", hdr.Tag)
		r.free()
		r = nil
	}

	if hdr.SOM {
		if r != nil {
			log.Debug(s, "Restarting reassembly on new SOM", "src", hdr.Source, "tag", hdr.Tag)
		} else {
			var evicted bool
			r, evicted = s.pool.claim(now, s.opts.EvictGrace)
			if r == nil {
				return nil, mctp.ErrNoReassemblySlot
			}
			if evicted {
				log.Info(s, "Evicted idle reassembly for new message", "src", hdr.Source, "tag", hdr.Tag)
			}
		}
		r.start(key, hdr.Seq, now, s.opts.ReassemblyTimeout)
	} else {
		if r == nil {
			return nil, mctp.ErrUnknownConversation
		}
		if hdr.Seq != r.nextSeq {
			log.Debug(s, "Sequence mismatch - DROP", "src", hdr.Source, "tag", hdr.Tag,
				"seq", hdr.Seq, "expected", r.nextSeq)
			r.free()
			return nil, mctp.ErrSequence
		}
		r.nextSeq = (r.nextSeq + 1) % mctp.SeqModulo
		r.lastSeen = now
	}

	if !r.append(data) {
		r.free()
		return nil, mctp.ErrMessageTooLarge
	}

	if !hdr.EOM {
		return nil, nil
	}

	s.out = Message{
		Source:  key.source,
		Dest:    key.dest,
		Tag:     key.tag,
		Payload: r.buf[:r.length],
	}
	r.active = false
	return &s.out, nil
}

// AllocTag reserves a tag for a new request to peer.
func (s *Stack) AllocTag(peer mctp.Eid, now time.Time) (mctp.TagValue, error) {
	start := s.nextTag
	for i := mctp.TagValue(0); i <= mctp.TagValueMax; i++ {
		tag := (start + i) & mctp.TagValueMax
		if s.flows.find(peer, tag) >= 0 {
			continue
		}
		if !s.flows.insert(peer, tag, now.Add(s.opts.FlowTimeout)) {
			return 0, mctp.ErrTagExhausted
		}
		s.nextTag = (tag + 1) & mctp.TagValueMax
		return tag, nil
	}
	return 0, mctp.ErrTagExhausted
}

// CompleteFlow releases the tag of a request once its response arrived.
// Returns false when no such flow is outstanding.
func (s *Stack) CompleteFlow(peer mctp.Eid, tag mctp.TagValue) bool {
	return s.flows.remove(peer, tag)
}

// HasFlow reports whether a request to peer with tag is outstanding.
func (s *Stack) HasFlow(peer mctp.Eid, tag mctp.TagValue) bool {
	return s.flows.find(peer, tag) >= 0
}

// FragmentRequest allocates a tag and prepares a request to dest.
func (s *Stack) FragmentRequest(dest mctp.Eid, msg []byte, mtu int, now time.Time) (*Fragmenter, error) {
	tag, err := s.AllocTag(dest, now)
	if err != nil {
		return nil, err
	}
	f, err := NewFragmenter(s.eid, dest, mctp.Tag{Value: tag, Owner: true}, msg, mtu)
	if err != nil {
		s.flows.remove(dest, tag)
		return nil, err
	}
	return f, nil
}

// FragmentResponse prepares a response to req, reusing its tag value with
// the owner bit cleared. No flow is created.
//
// The response comes from the EID the request was addressed to, so that it
// still matches the requester's flow after this endpoint changed its EID.
// Requests to the null or broadcast EID are answered from the own EID.
func (s *Stack) FragmentResponse(req *Message, msg []byte, mtu int) (*Fragmenter, error) {
	if !req.Tag.Owner {
		return nil, mctp.ErrBadArgument{Item: "request tag", Value: req.Tag}
	}
	src := s.eid
	if req.Dest.Valid() {
		src = req.Dest
	}
	return NewFragmenter(src, req.Source, mctp.Tag{Value: req.Tag.Value}, msg, mtu)
}

// SweepTimeouts discards reassembly contexts and flows whose deadline is
// not after now. expired, if set, is called for every removed flow.
// Returns the number of items removed.
func (s *Stack) SweepTimeouts(now time.Time, expired func(peer mctp.Eid, tag mctp.TagValue)) int {
	n := 0
	for i := range s.pool.slots {
		r := &s.pool.slots[i]
		if r.active && r.expired(now) {
			log.Debug(s, "Reassembly timed out", "src", r.key.source, "tag", r.key.tag, "bytes", r.length)
			r.free()
			n++
		}
	}
	return n + s.flows.sweep(now, expired)
}

// Reset drops every reassembly context and flow.
func (s *Stack) Reset() {
	for i := range s.pool.slots {
		s.pool.slots[i].free()
	}
	s.flows.clear()
}

// ActiveReassemblies returns the number of busy reassembly contexts.
func (s *Stack) ActiveReassemblies() int {
	return s.pool.active()
}

// ActiveFlows returns the number of outstanding request flows.
func (s *Stack) ActiveFlows() int {
	return s.flows.count
}
