package control

import (
	"slices"

	"github.com/mctp-go/mctpd/std/log"
	"github.com/mctp-go/mctpd/std/mctp"
)

// Endpoint is the local endpoint state a Responder reports and updates.
type Endpoint interface {
	Eid() mctp.Eid
	SetEid(mctp.Eid) error
}

// ResponderConfig describes what the local endpoint supports.
type ResponderConfig struct {
	// EID restored by a Set Endpoint ID reset. Null means the EID is dynamic.
	StaticEid mctp.Eid
	// Endpoint UUID reported by Get Endpoint UUID.
	Uuid [UuidLen]byte
	// Report the endpoint as a bridge.
	Bridge bool
	// Message types served besides control.
	MsgTypes []mctp.MsgType
	// Versions reported for message types other than base and control.
	Versions map[mctp.MsgType][]Version
}

// Responder answers control requests addressed to the local endpoint.
type Responder struct {
	ep  Endpoint
	cfg ResponderConfig
}

func NewResponder(ep Endpoint, cfg ResponderConfig) *Responder {
	types := []mctp.MsgType{mctp.MsgTypeControl}
	for _, t := range cfg.MsgTypes {
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	cfg.MsgTypes = types
	return &Responder{ep: ep, cfg: cfg}
}

func (r *Responder) String() string {
	return "control-responder"
}

// MsgTypes returns the message types reported as supported.
func (r *Responder) MsgTypes() []mctp.MsgType {
	return r.cfg.MsgTypes
}

// Handle processes one control request body (after the message type byte)
// from src and appends the response body to out. It returns nil when no
// response is due.
func (r *Responder) Handle(src mctp.Eid, req []byte, out []byte) []byte {
	hdr, err := ParseHeader(req)
	if err != nil {
		log.Debug(r, "Short control message - DROP", "src", src)
		return nil
	}
	if !hdr.Request {
		log.Debug(r, "Unsolicited control response - DROP", "src", src, "cmd", hdr.Command)
		return nil
	}
	data := req[HeaderLen:]

	out = Header{Instance: hdr.Instance, Command: hdr.Command}.Append(out)
	switch hdr.Command {
	case CmdSetEndpointId:
		out = r.setEid(src, data, out)
	case CmdGetEndpointId:
		out = append(out, byte(CCSuccess))
		out = r.getEid().Append(out)
	case CmdGetEndpointUuid:
		out = append(out, byte(CCSuccess))
		out = append(out, r.cfg.Uuid[:]...)
	case CmdGetVersionSupport:
		out = r.versions(data, out)
	case CmdGetMessageTypeSupport:
		out = append(out, byte(CCSuccess))
		out = AppendMsgTypes(out, r.cfg.MsgTypes)
	default:
		log.Debug(r, "Unsupported control command", "src", src, "cmd", hdr.Command)
		out = append(out, byte(CCUnsupportedCommand))
	}

	if hdr.Datagram {
		return nil
	}
	return out
}

func (r *Responder) setEid(src mctp.Eid, data []byte, out []byte) []byte {
	req, err := ParseSetEidRequest(data)
	if err != nil {
		return append(out, byte(CCInvalidLength))
	}

	switch req.Op {
	case SetEidSet, SetEidForce:
		if !req.Eid.Valid() {
			return append(out, byte(CCInvalidData))
		}
		if err := r.ep.SetEid(req.Eid); err != nil {
			log.Warn(r, "Unable to set endpoint ID", "src", src, "eid", req.Eid, "err", err)
			return append(out, byte(CCError))
		}
		log.Info(r, "Endpoint ID assigned", "src", src, "eid", req.Eid)
	case SetEidReset:
		if r.cfg.StaticEid == mctp.EidNull {
			return append(out, byte(CCInvalidData))
		}
		if err := r.ep.SetEid(r.cfg.StaticEid); err != nil {
			return append(out, byte(CCError))
		}
		log.Info(r, "Endpoint ID reset to static", "src", src, "eid", r.cfg.StaticEid)
	case SetEidDiscovered:
	}

	out = append(out, byte(CCSuccess))
	return SetEidResponse{Status: EidAccepted, Eid: r.ep.Eid()}.Append(out)
}

func (r *Responder) getEid() GetEidResponse {
	resp := GetEidResponse{Eid: r.ep.Eid()}
	if r.cfg.Bridge {
		resp.EndpointType = EndpointBridge
	}
	switch {
	case r.cfg.StaticEid == mctp.EidNull:
		resp.EidType = EidDynamic
	case r.cfg.StaticEid == resp.Eid:
		resp.EidType = EidStaticMatching
	default:
		resp.EidType = EidStaticDifferent
	}
	return resp
}

func (r *Responder) versions(data []byte, out []byte) []byte {
	if len(data) < 1 {
		return append(out, byte(CCInvalidLength))
	}

	var versions []Version
	switch data[0] {
	case 0xFF, byte(mctp.MsgTypeControl):
		versions = []Version{mctp.BaseVersion}
	default:
		versions = r.cfg.Versions[mctp.MsgType(data[0])]
	}
	if len(versions) == 0 {
		return append(out, byte(CCTypeNotSupported))
	}

	out = append(out, byte(CCSuccess))
	return AppendVersions(out, versions)
}
