package i2c

import (
	"fmt"
	"time"

	"github.com/mctp-go/mctpd/std/log"
	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/stack"
)

// HandlerOptions configures PEC handling and packet size of a Handler.
type HandlerOptions struct {
	// Append a PEC byte to outgoing frames.
	Pec bool
	// Reject incoming frames without a valid PEC. Leave unset when the
	// controller checks PEC in hardware.
	RequirePec bool
	// Maximum MCTP packet size, header included. Zero means MaxMtu.
	Mtu int
}

// SendKind tells what SendFill produced.
type SendKind int

const (
	// SendIdle means no message is queued.
	SendIdle SendKind = iota
	// SendPacket means a frame was written and must be transmitted.
	SendPacket
	// SendDone means the queued message has been fully sent.
	SendDone
)

func (k SendKind) String() string {
	switch k {
	case SendIdle:
		return "idle"
	case SendPacket:
		return "packet"
	case SendDone:
		return "done"
	default:
		return "unknown"
	}
}

// SendOutput is the result of one SendFill call.
type SendOutput struct {
	Kind SendKind
	// Packet is the encoded frame, valid for SendPacket only.
	Packet []byte
	// Dest is the 7-bit bus address the frame goes to.
	Dest uint8
}

// Handler binds a Stack to one I2C bus: it decodes received frames into the
// stack and turns one queued Fragmenter at a time into frames.
type Handler struct {
	own  uint8
	opts HandlerOptions

	send     *stack.Fragmenter
	sendDest uint8
	pkt      [MaxMtu]byte
}

// NewHandler creates a handler for the bus address own.
func NewHandler(own uint8, opts HandlerOptions) *Handler {
	if own > MaxAddr {
		panic(fmt.Sprintf("[BUG] invalid own I2C address %#x", own))
	}
	if opts.Mtu == 0 {
		opts.Mtu = MaxMtu
	}
	if opts.Mtu < mctp.MinMtu || opts.Mtu > MaxMtu {
		panic(fmt.Sprintf("[BUG] invalid I2C MTU %d", opts.Mtu))
	}
	return &Handler{own: own, opts: opts}
}

func (h *Handler) String() string {
	return fmt.Sprintf("i2c-handler (%#02x)", h.own)
}

// Addr returns the bus address of this handler.
func (h *Handler) Addr() uint8 {
	return h.own
}

// Mtu returns the maximum MCTP packet size sent by this handler.
func (h *Handler) Mtu() int {
	return h.opts.Mtu
}

// Receive decodes a frame and feeds its packet into s. It returns the
// message and the sender bus address once reassembly is complete, and a
// nil message while it is still in progress.
func (h *Handler) Receive(raw []byte, s *stack.Stack, now time.Time) (*stack.Message, uint8, error) {
	pkt, src, err := Decode(raw, h.own, h.opts.RequirePec)
	if err != nil {
		return nil, 0, err
	}
	msg, err := s.Receive(pkt, now)
	if err != nil {
		return nil, src, err
	}
	return msg, src, nil
}

// SendEnqueue queues f for transmission to the bus address dest.
// Only one message is in flight at a time.
func (h *Handler) SendEnqueue(f *stack.Fragmenter, dest uint8) error {
	if dest > MaxAddr {
		return ErrInvalidAddress
	}
	if h.send != nil {
		return mctp.ErrBusy
	}
	h.send = f
	h.sendDest = dest
	return nil
}

// IsSendReady reports whether a queued message still has packets to send.
func (h *Handler) IsSendReady() bool {
	return h.send != nil && !h.send.IsDone()
}

// SendFill encodes the next frame of the queued message into out, which
// must hold MaxFrame bytes.
func (h *Handler) SendFill(out []byte) SendOutput {
	if h.send == nil {
		return SendOutput{Kind: SendIdle}
	}

	pkt := h.send.Next(h.pkt[:h.opts.Mtu])
	if pkt == nil {
		dest := h.sendDest
		h.send = nil
		return SendOutput{Kind: SendDone, Dest: dest}
	}

	n, err := Encode(h.sendDest, h.own, pkt, out, h.opts.Pec)
	if err != nil {
		// Addresses and packet size were checked on enqueue
		panic(err)
	}
	if log.HasTrace() {
		log.Trace(h, "Frame out", "dest", h.sendDest, "len", n)
	}
	return SendOutput{Kind: SendPacket, Packet: out[:n], Dest: h.sendDest}
}

// SendCancel drops the queued message, if any.
func (h *Handler) SendCancel() {
	h.send = nil
}
