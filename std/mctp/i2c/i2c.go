// Package i2c implements the MCTP SMBus/I2C transport binding (DSP0237).
//
// A frame on the wire is
//
//	[dest<<1|W] [0x0F] [byte count] [src<<1|1] [MCTP packet ...] [PEC]
//
// where the byte count covers the source address byte and the MCTP packet.
package i2c

import (
	"errors"

	"github.com/mctp-go/mctpd/std/mctp"
)

const (
	// CommandCode is the SMBus command code assigned to MCTP.
	CommandCode = 0x0F
	// HeaderLen is the number of framing bytes before the MCTP packet.
	HeaderLen = 4
	// MaxMtu is the largest MCTP packet one frame can carry.
	MaxMtu = 254
	// MaxAddr is the largest 7-bit bus address.
	MaxAddr = 0x7F
	// MaxFrame is the size of the largest frame, PEC included.
	MaxFrame = HeaderLen + MaxMtu + 1
)

var (
	// ErrTruncated is the same error the stack returns for short packets.
	ErrTruncated       = mctp.ErrTruncated
	ErrAddressMismatch = errors.New("frame not addressed to this endpoint")
	ErrBadCommandCode  = errors.New("bad SMBus command code")
	ErrLengthMismatch  = errors.New("byte count does not match frame length")
	ErrPec             = errors.New("PEC mismatch")
	ErrInvalidAddress  = errors.New("invalid I2C address")
	ErrPayloadTooLarge = errors.New("packet too large for one I2C frame")
)

// FrameLen returns the size of the frame carrying an n byte packet.
func FrameLen(n int, pec bool) int {
	if pec {
		return HeaderLen + n + 1
	}
	return HeaderLen + n
}

// Encode writes the frame carrying pkt from src to dest into out and
// returns its length. out must be at least FrameLen(len(pkt), pec) long.
func Encode(dest, src uint8, pkt []byte, out []byte, pec bool) (int, error) {
	if dest > MaxAddr || src > MaxAddr {
		return 0, ErrInvalidAddress
	}
	if len(pkt) > MaxMtu {
		return 0, ErrPayloadTooLarge
	}
	n := FrameLen(len(pkt), pec)
	if len(out) < n {
		panic("[BUG] I2C frame buffer too small")
	}

	out[0] = dest << 1
	out[1] = CommandCode
	out[2] = byte(1 + len(pkt))
	out[3] = src<<1 | 1
	copy(out[HeaderLen:], pkt)
	if pec {
		out[n-1] = Pec(out[:n-1])
	}
	return n, nil
}

// Decode validates a frame received at address own and returns the MCTP
// packet it carries together with the sender address. The packet aliases raw.
//
// With requirePec set the trailing PEC byte must be present and correct.
// Otherwise the PEC is assumed checked by hardware: a trailing PEC byte is
// allowed and stripped without being verified.
func Decode(raw []byte, own uint8, requirePec bool) ([]byte, uint8, error) {
	need := HeaderLen
	if requirePec {
		need++
	}
	if len(raw) < need {
		return nil, 0, ErrTruncated
	}
	if raw[0] != own<<1 {
		return nil, 0, ErrAddressMismatch
	}
	if raw[1] != CommandCode {
		return nil, 0, ErrBadCommandCode
	}

	count := int(raw[2])
	rest := len(raw) - 3
	switch {
	case count < 1:
		return nil, 0, ErrLengthMismatch
	case requirePec && count != rest-1:
		return nil, 0, ErrLengthMismatch
	case !requirePec && count != rest && count != rest-1:
		return nil, 0, ErrLengthMismatch
	}

	if requirePec && Pec(raw[:len(raw)-1]) != raw[len(raw)-1] {
		return nil, 0, ErrPec
	}
	if raw[3]&1 == 0 {
		return nil, 0, ErrInvalidAddress
	}
	return raw[HeaderLen : 3+count], raw[3] >> 1, nil
}
