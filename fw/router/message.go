package router

import (
	"fmt"

	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/stack"
)

// Message is a complete message delivered to a listener or a request.
type Message struct {
	Source mctp.Eid
	Dest   mctp.Eid
	// Port the message arrived on
	Port PortId
	Tag  mctp.Tag
	Type mctp.MsgType
	IC   bool
	// Body is the payload after the message type byte
	Body []byte

	// bus address of the sender, used to respond
	addr uint8
}

func (m *Message) String() string {
	return fmt.Sprintf("%s->%s %s %s len=%d", m.Source, m.Dest, m.Type, m.Tag, len(m.Body))
}

// newMessage copies a message out of stack storage.
func newMessage(m *stack.Message, port PortId, addr uint8) *Message {
	return &Message{
		Source: m.Source,
		Dest:   m.Dest,
		Port:   port,
		Tag:    m.Tag,
		Type:   m.Type(),
		IC:     m.IC(),
		Body:   append([]byte(nil), m.Body()...),
		addr:   addr,
	}
}

// copyTo returns a copy of m whose body lives in buf.
func (m *Message) copyTo(buf []byte) (*Message, error) {
	if len(buf) < len(m.Body) {
		return nil, mctp.ErrNoSpace
	}
	out := *m
	out.Body = buf[:copy(buf, m.Body)]
	return &out, nil
}

// fillPayload writes the type byte and body into buf.
func fillPayload(buf []byte, typ mctp.MsgType, ic bool, body []byte) ([]byte, error) {
	if typ > 0x7F {
		return nil, mctp.ErrBadArgument{Item: "message type", Value: typ}
	}
	if 1+len(body) > len(buf) {
		return nil, mctp.ErrMessageTooLarge
	}
	buf[0] = mctp.TypeByte(typ, ic)
	n := copy(buf[1:], body)
	return buf[:1+n], nil
}
