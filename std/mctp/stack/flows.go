package stack

import (
	"time"

	"github.com/cespare/xxhash"
	"github.com/mctp-go/mctpd/std/mctp"
)

type flowEntry struct {
	used     bool
	peer     mctp.Eid
	tag      mctp.TagValue
	deadline time.Time
}

// flowTable is an open-addressed hash table of outstanding requests,
// using linear probing and backward-shift deletion.
type flowTable struct {
	entries [mctp.Flows]flowEntry
	count   int
}

func flowHome(peer mctp.Eid, tag mctp.TagValue) int {
	key := [2]byte{byte(peer), byte(tag)}
	return int(xxhash.Sum64(key[:]) % mctp.Flows)
}

func (t *flowTable) find(peer mctp.Eid, tag mctp.TagValue) int {
	i := flowHome(peer, tag)
	for range t.entries {
		e := &t.entries[i]
		if !e.used {
			return -1
		}
		if e.peer == peer && e.tag == tag {
			return i
		}
		i = (i + 1) % mctp.Flows
	}
	return -1
}

func (t *flowTable) insert(peer mctp.Eid, tag mctp.TagValue, deadline time.Time) bool {
	if t.count == mctp.Flows {
		return false
	}
	i := flowHome(peer, tag)
	for t.entries[i].used {
		i = (i + 1) % mctp.Flows
	}
	t.entries[i] = flowEntry{used: true, peer: peer, tag: tag, deadline: deadline}
	t.count++
	return true
}

// removeAt frees entry i and shifts back any collision chain that passed over it.
func (t *flowTable) removeAt(i int) {
	t.entries[i] = flowEntry{}
	t.count--

	j := i
	for {
		j = (j + 1) % mctp.Flows
		e := t.entries[j]
		if !e.used {
			return
		}
		// Entry j stays if its home lies cyclically in (i, j].
		k := flowHome(e.peer, e.tag)
		if i <= j {
			if i < k && k <= j {
				continue
			}
		} else if i < k || k <= j {
			continue
		}
		t.entries[i] = e
		t.entries[j] = flowEntry{}
		i = j
	}
}

func (t *flowTable) remove(peer mctp.Eid, tag mctp.TagValue) bool {
	i := t.find(peer, tag)
	if i < 0 {
		return false
	}
	t.removeAt(i)
	return true
}

// sweep removes every entry whose deadline is not after now.
func (t *flowTable) sweep(now time.Time, expired func(mctp.Eid, mctp.TagValue)) int {
	n := 0
	for i := 0; i < len(t.entries); {
		e := t.entries[i]
		if e.used && !now.Before(e.deadline) {
			t.removeAt(i)
			n++
			if expired != nil {
				expired(e.peer, e.tag)
			}
			// removeAt may have shifted a later entry into i
			continue
		}
		i++
	}
	return n
}

func (t *flowTable) clear() {
	t.entries = [mctp.Flows]flowEntry{}
	t.count = 0
}
