package router

import (
	"fmt"
	"sync"

	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/types/optional"
)

// PortId is the index of a port in its Router.
type PortId uint8

// PortLookup tells which port carries messages to an EID.
type PortLookup interface {
	// ByEid returns the port for eid, or none when eid is unreachable.
	// A message that arrived on source is never routed back to it.
	ByEid(eid mctp.Eid, source optional.Optional[PortId]) optional.Optional[PortId]
}

type routeEntry struct {
	first mctp.Eid
	last  mctp.Eid
	port  PortId
	// next hop EID, or null when the range is directly attached
	via mctp.Eid
}

// RouteTable is a PortLookup over static EID ranges.
// The first range containing an EID wins.
type RouteTable struct {
	mu      sync.RWMutex
	entries []routeEntry
}

func (t *RouteTable) String() string {
	return "route-table"
}

// Add routes the EIDs in [first, last] through port. Messages are sent
// to the neighbor via, or straight to the destination when via is null.
func (t *RouteTable) Add(first, last mctp.Eid, port PortId, via mctp.Eid) error {
	if first > last {
		return mctp.ErrBadArgument{Item: "route", Value: fmt.Sprintf("%d-%d", first, last)}
	}
	if via != mctp.EidNull && !via.Valid() {
		return mctp.ErrBadArgument{Item: "gateway", Value: via}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, routeEntry{first: first, last: last, port: port, via: via})
	return nil
}

// Len returns the number of ranges.
func (t *RouteTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *RouteTable) ByEid(eid mctp.Eid, source optional.Optional[PortId]) optional.Optional[PortId] {
	if port, _, ok := t.Lookup(eid, source); ok {
		return optional.Some(port)
	}
	return optional.None[PortId]()
}

// Lookup returns the port and next hop for eid.
func (t *RouteTable) Lookup(eid mctp.Eid, source optional.Optional[PortId]) (PortId, mctp.Eid, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if eid < e.first || eid > e.last {
			continue
		}
		if src, ok := source.Get(); ok && src == e.port {
			return 0, 0, false
		}
		return e.port, e.via, true
	}
	return 0, 0, false
}
