package mctp

// HeaderLen is the size of the MCTP transport header.
const HeaderLen = 4

// HeaderVersion is the only supported header version.
const HeaderVersion = 0x01

const (
	flagSOM   = 0x80
	flagEOM   = 0x40
	flagTO    = 0x08
	seqShift  = 4
	seqMask   = 0x03
	tagMask   = 0x07
	verMask   = 0x0F
	SeqModulo = 4
)

// Header is a decoded MCTP transport header.
//
//	byte 0: [rsvd:4][version:4]
//	byte 1: destination EID
//	byte 2: source EID
//	byte 3: [SOM][EOM][seq:2][TO][tag:3]
type Header struct {
	Dest   Eid
	Source Eid
	SOM    bool
	EOM    bool
	Seq    uint8
	Tag    Tag
}

// ParseHeader decodes the header at the start of pkt.
func ParseHeader(pkt []byte) (Header, error) {
	if len(pkt) < HeaderLen {
		return Header{}, ErrTruncated
	}
	if pkt[0]&verMask != HeaderVersion {
		return Header{}, ErrBadVersion
	}
	flags := pkt[3]
	return Header{
		Dest:   Eid(pkt[1]),
		Source: Eid(pkt[2]),
		SOM:    flags&flagSOM != 0,
		EOM:    flags&flagEOM != 0,
		Seq:    (flags >> seqShift) & seqMask,
		Tag: Tag{
			Value: TagValue(flags & tagMask),
			Owner: flags&flagTO != 0,
		},
	}, nil
}

// Encode writes the header into the first HeaderLen bytes of b.
// A shorter buffer is a programming error.
func (h Header) Encode(b []byte) {
	if len(b) < HeaderLen {
		panic("[BUG] MCTP header buffer shorter than header")
	}
	flags := (h.Seq&seqMask)<<seqShift | byte(h.Tag.Value)&tagMask
	if h.SOM {
		flags |= flagSOM
	}
	if h.EOM {
		flags |= flagEOM
	}
	if h.Tag.Owner {
		flags |= flagTO
	}
	b[0] = HeaderVersion
	b[1] = byte(h.Dest)
	b[2] = byte(h.Source)
	b[3] = flags
}
