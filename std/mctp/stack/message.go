package stack

import "github.com/mctp-go/mctpd/std/mctp"

// Message is a complete reassembled MCTP message.
//
// A Message returned by Stack.Receive refers to storage owned by the Stack
// and is only valid until the next call to Receive; copy it out first.
type Message struct {
	Source mctp.Eid
	Dest   mctp.Eid
	Tag    mctp.Tag
	// Payload is the whole message body, type byte first.
	Payload []byte
}

// Type returns the message type from the first payload byte.
func (m *Message) Type() mctp.MsgType {
	typ, _ := mctp.SplitTypeByte(m.Payload[0])
	return typ
}

// IC reports whether the integrity check bit is set.
func (m *Message) IC() bool {
	_, ic := mctp.SplitTypeByte(m.Payload[0])
	return ic
}

// Body returns the payload after the type byte.
func (m *Message) Body() []byte {
	return m.Payload[1:]
}
