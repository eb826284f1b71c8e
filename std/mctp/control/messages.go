package control

import "github.com/mctp-go/mctpd/std/mctp"

// SetEidOp is the operation field of Set Endpoint ID.
type SetEidOp uint8

const (
	SetEidSet        SetEidOp = 0
	SetEidForce      SetEidOp = 1
	SetEidReset      SetEidOp = 2
	SetEidDiscovered SetEidOp = 3
)

// EidStatus is the assignment status of a Set Endpoint ID response.
type EidStatus uint8

const (
	EidAccepted EidStatus = 0
	EidRejected EidStatus = 1
)

// EndpointType as reported by Get Endpoint ID.
type EndpointType uint8

const (
	EndpointSimple EndpointType = 0
	EndpointBridge EndpointType = 1
)

// EidType tells how an endpoint got its EID.
type EidType uint8

const (
	EidDynamic         EidType = 0
	EidStatic          EidType = 1
	EidStaticMatching  EidType = 2
	EidStaticDifferent EidType = 3
)

// UuidLen is the size of an endpoint UUID.
const UuidLen = 16

// SetEidRequest is the data of a Set Endpoint ID request.
type SetEidRequest struct {
	Op  SetEidOp
	Eid mctp.Eid
}

func (r SetEidRequest) Append(b []byte) []byte {
	return append(b, byte(r.Op)&0x03, byte(r.Eid))
}

func ParseSetEidRequest(data []byte) (SetEidRequest, error) {
	if len(data) < 2 {
		return SetEidRequest{}, ErrShortMessage
	}
	return SetEidRequest{Op: SetEidOp(data[0] & 0x03), Eid: mctp.Eid(data[1])}, nil
}

// SetEidResponse is the data of a Set Endpoint ID response after the
// completion code.
type SetEidResponse struct {
	Status   EidStatus
	Eid      mctp.Eid
	PoolSize uint8
}

func (r SetEidResponse) Append(b []byte) []byte {
	return append(b, byte(r.Status&0x03)<<4, byte(r.Eid), r.PoolSize)
}

func ParseSetEidResponse(data []byte) (SetEidResponse, error) {
	if len(data) < 3 {
		return SetEidResponse{}, ErrShortMessage
	}
	return SetEidResponse{
		Status:   EidStatus(data[0]>>4) & 0x03,
		Eid:      mctp.Eid(data[1]),
		PoolSize: data[2],
	}, nil
}

// GetEidResponse is the data of a Get Endpoint ID response after the
// completion code.
type GetEidResponse struct {
	Eid          mctp.Eid
	EndpointType EndpointType
	EidType      EidType
	Medium       uint8
}

func (r GetEidResponse) Append(b []byte) []byte {
	typ := byte(r.EndpointType&0x03)<<4 | byte(r.EidType&0x03)
	return append(b, byte(r.Eid), typ, r.Medium)
}

func ParseGetEidResponse(data []byte) (GetEidResponse, error) {
	if len(data) < 3 {
		return GetEidResponse{}, ErrShortMessage
	}
	return GetEidResponse{
		Eid:          mctp.Eid(data[0]),
		EndpointType: EndpointType(data[1]>>4) & 0x03,
		EidType:      EidType(data[1] & 0x03),
		Medium:       data[2],
	}, nil
}

// AppendVersions appends a Get MCTP Version Support response list.
func AppendVersions(b []byte, versions []Version) []byte {
	b = append(b, byte(len(versions)))
	for _, v := range versions {
		b = append(b, v[:]...)
	}
	return b
}

func ParseVersions(data []byte) ([]Version, error) {
	if len(data) < 1 || len(data) < 1+4*int(data[0]) {
		return nil, ErrShortMessage
	}
	ret := make([]Version, data[0])
	for i := range ret {
		copy(ret[i][:], data[1+4*i:])
	}
	return ret, nil
}

// AppendMsgTypes appends a Get Message Type Support response list.
func AppendMsgTypes(b []byte, types []mctp.MsgType) []byte {
	b = append(b, byte(len(types)))
	for _, t := range types {
		b = append(b, byte(t))
	}
	return b
}

func ParseMsgTypes(data []byte) ([]mctp.MsgType, error) {
	if len(data) < 1 || len(data) < 1+int(data[0]) {
		return nil, ErrShortMessage
	}
	ret := make([]mctp.MsgType, data[0])
	for i := range ret {
		ret[i] = mctp.MsgType(data[1+i])
	}
	return ret, nil
}
