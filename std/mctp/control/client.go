package control

import (
	"context"
	"sync"

	"github.com/mctp-go/mctpd/std/mctp"
)

// Requester performs one request/response exchange with a remote endpoint,
// writing the response body (after the type byte) into resp.
type Requester interface {
	Exchange(ctx context.Context, eid mctp.Eid, typ mctp.MsgType, body []byte, resp []byte) (int, error)
}

// Client issues control requests through a Requester.
type Client struct {
	r        Requester
	mu       sync.Mutex
	instance uint8
}

func NewClient(r Requester) *Client {
	return &Client{r: r}
}

func (c *Client) nextInstance() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instance = (c.instance + 1) & InstanceMax
	return c.instance
}

// call sends cmd with data to eid and returns the response data following
// a successful completion code.
func (c *Client) call(ctx context.Context, eid mctp.Eid, cmd Command, data []byte) ([]byte, error) {
	hdr := Header{Request: true, Instance: c.nextInstance(), Command: cmd}
	req := append(hdr.Append(make([]byte, 0, HeaderLen+len(data))), data...)

	resp := make([]byte, mctp.MaxPayload)
	n, err := c.r.Exchange(ctx, eid, mctp.MsgTypeControl, req, resp)
	if err != nil {
		return nil, err
	}
	resp = resp[:n]

	rh, err := ParseHeader(resp)
	if err != nil {
		return nil, err
	}
	if rh.Request || rh.Command != cmd || rh.Instance != hdr.Instance {
		return nil, ErrUnexpectedReply
	}
	if len(resp) < HeaderLen+1 {
		return nil, ErrShortMessage
	}
	if cc := CompletionCode(resp[HeaderLen]); cc != CCSuccess {
		return nil, ErrCompletion{Command: cmd, Code: cc}
	}
	return resp[HeaderLen+1:], nil
}

// GetEndpointId queries the EID and endpoint type of eid.
func (c *Client) GetEndpointId(ctx context.Context, eid mctp.Eid) (GetEidResponse, error) {
	data, err := c.call(ctx, eid, CmdGetEndpointId, nil)
	if err != nil {
		return GetEidResponse{}, err
	}
	return ParseGetEidResponse(data)
}

// SetEndpointId asks the endpoint reachable as eid to take newEid.
func (c *Client) SetEndpointId(ctx context.Context, eid mctp.Eid, op SetEidOp, newEid mctp.Eid) (SetEidResponse, error) {
	data, err := c.call(ctx, eid, CmdSetEndpointId, SetEidRequest{Op: op, Eid: newEid}.Append(nil))
	if err != nil {
		return SetEidResponse{}, err
	}
	return ParseSetEidResponse(data)
}

// GetEndpointUuid queries the UUID of eid.
func (c *Client) GetEndpointUuid(ctx context.Context, eid mctp.Eid) ([UuidLen]byte, error) {
	var uuid [UuidLen]byte
	data, err := c.call(ctx, eid, CmdGetEndpointUuid, nil)
	if err != nil {
		return uuid, err
	}
	if len(data) < UuidLen {
		return uuid, ErrShortMessage
	}
	copy(uuid[:], data)
	return uuid, nil
}

// GetVersionSupport queries the versions eid supports for a message type;
// 0xFF asks for the base specification.
func (c *Client) GetVersionSupport(ctx context.Context, eid mctp.Eid, typ uint8) ([]Version, error) {
	data, err := c.call(ctx, eid, CmdGetVersionSupport, []byte{typ})
	if err != nil {
		return nil, err
	}
	return ParseVersions(data)
}

// GetMessageTypes queries the message types eid supports.
func (c *Client) GetMessageTypes(ctx context.Context, eid mctp.Eid) ([]mctp.MsgType, error) {
	data, err := c.call(ctx, eid, CmdGetMessageTypeSupport, nil)
	if err != nil {
		return nil, err
	}
	return ParseMsgTypes(data)
}
