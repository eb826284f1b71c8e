package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mctp-go/mctpd/std/log"
	"github.com/mctp-go/mctpd/std/mctp"
)

var (
	keyEid  = []byte("endpoint/eid")
	keyUuid = []byte("endpoint/uuid")
)

// EndpointState is the persistent identity of the local endpoint.
type EndpointState struct {
	s Store
}

func NewEndpointState(s Store) *EndpointState {
	return &EndpointState{s: s}
}

func (e *EndpointState) String() string {
	return "endpoint-state"
}

// Eid returns the last assigned EID, or false if none was saved.
func (e *EndpointState) Eid() (mctp.Eid, bool, error) {
	v, err := e.s.Get(keyEid)
	if err != nil || v == nil {
		return mctp.EidNull, false, err
	}
	if len(v) != 1 {
		return mctp.EidNull, false, fmt.Errorf("corrupt stored eid %x", v)
	}
	return mctp.Eid(v[0]), true, nil
}

// SetEid saves eid. A null EID clears the saved value.
func (e *EndpointState) SetEid(eid mctp.Eid) error {
	if eid == mctp.EidNull {
		return e.s.Remove(keyEid)
	}
	return e.s.Put(keyEid, []byte{byte(eid)})
}

// Uuid returns the endpoint UUID, generating and saving one on first use.
func (e *EndpointState) Uuid() (uuid.UUID, error) {
	v, err := e.s.Get(keyUuid)
	if err != nil {
		return uuid.Nil, err
	}
	if v != nil {
		return uuid.FromBytes(v)
	}

	id := uuid.New()
	if err := e.s.Put(keyUuid, id[:]); err != nil {
		return uuid.Nil, err
	}
	log.Info(e, "Generated endpoint UUID", "uuid", id)
	return id, nil
}

// SetUuid replaces the endpoint UUID.
func (e *EndpointState) SetUuid(id uuid.UUID) error {
	return e.s.Put(keyUuid, id[:])
}

// Reset forgets all endpoint state.
func (e *EndpointState) Reset() error {
	return e.s.RemovePrefix([]byte("endpoint/"))
}
