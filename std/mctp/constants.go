package mctp

import "time"

// Compile-time sizing of the engine. Pools and queues are fixed arrays of
// these sizes; nothing grows at runtime.
const (
	// MaxPayload is the largest reassembled message, type byte included.
	MaxPayload = 1032
	// NumReceive is the number of concurrent reassembly contexts.
	NumReceive = 4
	// Flows is the number of outstanding requests this node may own.
	Flows = 64
	// MaxMtu is the largest MCTP packet (header included) any binding may use.
	MaxMtu = 255
	// MinMtu fits a header and one payload byte.
	MinMtu = HeaderLen + 1
	// PortTxQueue is the number of outbound message slots per port.
	PortTxQueue = 4
	// MaxPorts is the number of transport ports a router can own.
	MaxPorts = 2
)

// ReassemblyTimeout is the default lifetime of a reassembly context and of
// an outstanding flow.
const ReassemblyTimeout = 6000 * time.Millisecond

// EvictGrace is the default minimum idle time before a busy reassembly
// context can be reclaimed for a new message.
const EvictGrace = 1000 * time.Millisecond

// MCTP base specification version advertised by this implementation (1.3.1).
var BaseVersion = [4]byte{0xF1, 0xF3, 0xF1, 0x00}
