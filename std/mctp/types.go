package mctp

import "fmt"

// Eid is an MCTP endpoint ID.
type Eid uint8

const (
	// EidNull is used by endpoints that have not been assigned an EID.
	EidNull Eid = 0x00
	// EidBroadcast addresses every endpoint on a bus.
	EidBroadcast Eid = 0xFF
)

func (e Eid) String() string {
	return fmt.Sprintf("eid:%d", uint8(e))
}

// Valid reports whether e is assignable to an endpoint (DSP0236 8.2).
func (e Eid) Valid() bool {
	return e >= 8 && e != EidBroadcast
}

// TagValue is the 3-bit message tag.
type TagValue uint8

// TagValueMax is the largest tag value.
const TagValueMax TagValue = 7

// Tag is a tag value together with the tag-owner bit.
// Owner is set on requests and cleared on responses.
type Tag struct {
	Value TagValue
	Owner bool
}

func (t Tag) String() string {
	if t.Owner {
		return fmt.Sprintf("TO:%d", t.Value)
	}
	return fmt.Sprintf("~TO:%d", t.Value)
}

// MsgType is the 7-bit message type carried in the first message byte.
type MsgType uint8

const (
	MsgTypeControl    MsgType = 0x00
	MsgTypePldm       MsgType = 0x01
	MsgTypeNcsi       MsgType = 0x02
	MsgTypeEthernet   MsgType = 0x03
	MsgTypeNvme       MsgType = 0x04
	MsgTypeSpdm       MsgType = 0x05
	MsgTypeSecured    MsgType = 0x06
	MsgTypeVendorPci  MsgType = 0x7E
	MsgTypeVendorIana MsgType = 0x7F
)

// MsgIC is the integrity check bit of the type byte.
const MsgIC = 0x80

// TypeByte builds the first message byte.
func TypeByte(typ MsgType, ic bool) byte {
	b := byte(typ) & 0x7F
	if ic {
		b |= MsgIC
	}
	return b
}

// SplitTypeByte is the inverse of TypeByte.
func SplitTypeByte(b byte) (MsgType, bool) {
	return MsgType(b & 0x7F), b&MsgIC != 0
}

func (t MsgType) String() string {
	switch t {
	case MsgTypeControl:
		return "control"
	case MsgTypePldm:
		return "pldm"
	case MsgTypeNcsi:
		return "ncsi"
	case MsgTypeEthernet:
		return "ethernet"
	case MsgTypeNvme:
		return "nvme-mi"
	case MsgTypeSpdm:
		return "spdm"
	case MsgTypeSecured:
		return "secured"
	case MsgTypeVendorPci:
		return "vendor-pci"
	case MsgTypeVendorIana:
		return "vendor-iana"
	default:
		return fmt.Sprintf("type:%#02x", uint8(t))
	}
}
