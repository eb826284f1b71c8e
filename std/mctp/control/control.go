// Package control implements the MCTP Control Protocol (message type 0x00)
// used for endpoint discovery and EID assignment.
//
// A control message body, after the message type byte, is
//
//	[Rq][D][rsvd][instance:5] [command code] [data ...]
//
// and every response carries a completion code as its first data byte.
package control

import (
	"errors"
	"fmt"
)

// Command is a control command code.
type Command uint8

const (
	CmdSetEndpointId         Command = 0x01
	CmdGetEndpointId         Command = 0x02
	CmdGetEndpointUuid       Command = 0x03
	CmdGetVersionSupport     Command = 0x04
	CmdGetMessageTypeSupport Command = 0x05
)

func (c Command) String() string {
	switch c {
	case CmdSetEndpointId:
		return "set-endpoint-id"
	case CmdGetEndpointId:
		return "get-endpoint-id"
	case CmdGetEndpointUuid:
		return "get-endpoint-uuid"
	case CmdGetVersionSupport:
		return "get-version-support"
	case CmdGetMessageTypeSupport:
		return "get-message-type-support"
	default:
		return fmt.Sprintf("command:%#02x", uint8(c))
	}
}

// CompletionCode is the status returned in every response.
type CompletionCode uint8

const (
	CCSuccess            CompletionCode = 0x00
	CCError              CompletionCode = 0x01
	CCInvalidData        CompletionCode = 0x02
	CCInvalidLength      CompletionCode = 0x03
	CCNotReady           CompletionCode = 0x04
	CCUnsupportedCommand CompletionCode = 0x05
	// CCTypeNotSupported is specific to Get MCTP Version Support.
	CCTypeNotSupported CompletionCode = 0x80
)

func (c CompletionCode) String() string {
	switch c {
	case CCSuccess:
		return "success"
	case CCError:
		return "error"
	case CCInvalidData:
		return "invalid-data"
	case CCInvalidLength:
		return "invalid-length"
	case CCNotReady:
		return "not-ready"
	case CCUnsupportedCommand:
		return "unsupported-command"
	case CCTypeNotSupported:
		return "type-not-supported"
	default:
		return fmt.Sprintf("cc:%#02x", uint8(c))
	}
}

// ErrCompletion is returned by the Client when a response carries a
// completion code other than success.
type ErrCompletion struct {
	Command Command
	Code    CompletionCode
}

func (e ErrCompletion) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Code)
}

var (
	ErrShortMessage    = errors.New("control message too short")
	ErrUnexpectedReply = errors.New("unexpected control response")
)

const (
	flagRq       = 0x80
	flagD        = 0x40
	instanceMask = 0x1F
)

// HeaderLen is the size of the control header following the type byte.
const HeaderLen = 2

// InstanceMax is the largest instance ID.
const InstanceMax = instanceMask

// Header is the control message header.
type Header struct {
	Request  bool
	Datagram bool
	Instance uint8
	Command  Command
}

// ParseHeader decodes the header at the start of body.
func ParseHeader(body []byte) (Header, error) {
	if len(body) < HeaderLen {
		return Header{}, ErrShortMessage
	}
	return Header{
		Request:  body[0]&flagRq != 0,
		Datagram: body[0]&flagD != 0,
		Instance: body[0] & instanceMask,
		Command:  Command(body[1]),
	}, nil
}

// Append appends the encoded header to b.
func (h Header) Append(b []byte) []byte {
	flags := h.Instance & instanceMask
	if h.Request {
		flags |= flagRq
	}
	if h.Datagram {
		flags |= flagD
	}
	return append(b, flags, byte(h.Command))
}

// Version is an MCTP version number in the four byte BCD form
// [major][minor][update][alpha], where 0xF in the high nibble of
// major, minor or update marks a single digit.
type Version [4]byte

func (v Version) String() string {
	digit := func(b byte) string {
		if b&0xF0 == 0xF0 {
			return fmt.Sprintf("%d", b&0x0F)
		}
		return fmt.Sprintf("%x", b)
	}
	s := digit(v[0]) + "." + digit(v[1])
	if v[2] != 0xFF {
		s += "." + digit(v[2])
	}
	if v[3] != 0x00 {
		s += string(rune(v[3]))
	}
	return s
}
