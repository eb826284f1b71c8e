package stack

import (
	"github.com/mctp-go/mctpd/std/mctp"
)

// Fragmenter splits one message into MCTP packets, one per Next call.
// It is finite and cannot be restarted once consumed.
type Fragmenter struct {
	src     mctp.Eid
	dest    mctp.Eid
	tag     mctp.Tag
	mtu     int
	seq     uint8
	payload []byte
	offset  int
	started bool
	done    bool
}

// NewFragmenter prepares msg (type byte first) for sending from src to dest.
// mtu is the maximum MCTP packet size including the header.
func NewFragmenter(src, dest mctp.Eid, tag mctp.Tag, msg []byte, mtu int) (*Fragmenter, error) {
	if mtu < mctp.MinMtu || mtu > mctp.MaxMtu {
		return nil, mctp.ErrBadArgument{Item: "mtu", Value: mtu}
	}
	if len(msg) == 0 {
		return nil, mctp.ErrBadArgument{Item: "message length", Value: 0}
	}
	if len(msg) > mctp.MaxPayload {
		return nil, mctp.ErrMessageTooLarge
	}
	return &Fragmenter{
		src:     src,
		dest:    dest,
		tag:     tag,
		mtu:     mtu,
		payload: msg,
	}, nil
}

// Next writes the next packet into out and returns it, or nil when the
// whole message has been produced. out must hold at least MinMtu bytes;
// packets are limited to min(mtu, len(out)).
func (f *Fragmenter) Next(out []byte) []byte {
	if len(out) < mctp.MinMtu {
		panic("[BUG] fragment buffer shorter than minimum MTU")
	}
	if f.done {
		return nil
	}

	size := min(f.mtu, len(out)) - mctp.HeaderLen
	rest := len(f.payload) - f.offset
	last := rest <= size
	if last {
		size = rest
	}

	mctp.Header{
		Dest:   f.dest,
		Source: f.src,
		SOM:    !f.started,
		EOM:    last,
		Seq:    f.seq,
		Tag:    f.tag,
	}.Encode(out)
	n := copy(out[mctp.HeaderLen:], f.payload[f.offset:f.offset+size])

	f.offset += n
	f.seq = (f.seq + 1) % mctp.SeqModulo
	f.started = true
	f.done = last
	return out[:mctp.HeaderLen+n]
}

// IsDone reports whether every packet has been produced.
func (f *Fragmenter) IsDone() bool {
	return f.done
}

// Remaining returns the number of payload bytes not yet fragmented.
func (f *Fragmenter) Remaining() int {
	return len(f.payload) - f.offset
}

// Count returns the total number of packets for this message.
func (f *Fragmenter) Count() int {
	per := f.mtu - mctp.HeaderLen
	return (len(f.payload) + per - 1) / per
}

func (f *Fragmenter) Tag() mctp.Tag {
	return f.tag
}

func (f *Fragmenter) Dest() mctp.Eid {
	return f.dest
}

func (f *Fragmenter) Source() mctp.Eid {
	return f.src
}
