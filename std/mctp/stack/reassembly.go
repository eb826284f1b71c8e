package stack

import (
	"time"

	"github.com/mctp-go/mctpd/std/mctp"
)

// convKey identifies one conversation being reassembled.
type convKey struct {
	source mctp.Eid
	dest   mctp.Eid
	tag    mctp.Tag
}

// reassembler is one fixed reassembly context.
type reassembler struct {
	active   bool
	key      convKey
	nextSeq  uint8
	length   int
	created  time.Time
	lastSeen time.Time
	deadline time.Time
	buf      [mctp.MaxPayload]byte
}

func (r *reassembler) start(key convKey, seq uint8, now time.Time, timeout time.Duration) {
	r.active = true
	r.key = key
	r.nextSeq = (seq + 1) % mctp.SeqModulo
	r.length = 0
	r.created = now
	r.lastSeen = now
	r.deadline = now.Add(timeout)
}

func (r *reassembler) free() {
	r.active = false
	r.length = 0
}

// append adds a fragment; false when the message would exceed MaxPayload.
func (r *reassembler) append(b []byte) bool {
	if r.length+len(b) > len(r.buf) {
		return false
	}
	r.length += copy(r.buf[r.length:], b)
	return true
}

func (r *reassembler) expired(now time.Time) bool {
	return !now.Before(r.deadline)
}

// pool is the fixed set of reassembly contexts.
type pool struct {
	slots [mctp.NumReceive]reassembler
}

func (p *pool) lookup(key convKey) *reassembler {
	for i := range p.slots {
		if p.slots[i].active && p.slots[i].key == key {
			return &p.slots[i]
		}
	}
	return nil
}

// claim returns a free slot, or reclaims the least recently active slot
// if it has been idle for at least grace. Ties go to the lowest index.
func (p *pool) claim(now time.Time, grace time.Duration) (*reassembler, bool) {
	var victim *reassembler
	for i := range p.slots {
		r := &p.slots[i]
		if !r.active {
			return r, false
		}
		if now.Sub(r.lastSeen) < grace {
			continue
		}
		if victim == nil || r.lastSeen.Before(victim.lastSeen) {
			victim = r
		}
	}
	if victim != nil {
		victim.free()
		return victim, true
	}
	return nil, false
}

func (p *pool) active() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].active {
			n++
		}
	}
	return n
}
