package router

import (
	"context"
	"errors"

	"github.com/mctp-go/mctpd/fw/core"
	"github.com/mctp-go/mctpd/std/mctp"
)

// HandlerFunc handles one request and appends the response body to out.
// It returns nil when no response is due.
type HandlerFunc func(req *Message, out []byte) []byte

// Serve answers requests of type typ with h until ctx is done or the
// router stops.
func (r *Router) Serve(ctx context.Context, typ mctp.MsgType, h HandlerFunc) error {
	l, err := r.Listen(typ)
	if err != nil {
		return err
	}
	return r.ServeListener(ctx, l, h)
}

// ServeListener is Serve on a listener already registered. It closes l
// when done.
func (r *Router) ServeListener(ctx context.Context, l *Listener, h HandlerFunc) error {
	defer l.Close()

	buf := make([]byte, mctp.MaxPayload)
	out := make([]byte, 0, mctp.MaxPayload)
	for {
		req, err := l.Recv(ctx, buf)
		if err != nil {
			if errors.Is(err, mctp.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		resp := h(req, out[:0])
		if resp == nil {
			continue
		}
		if err := r.Respond(ctx, req, resp); err != nil {
			core.Log.Warn(l, "Unable to respond", "dest", req.Source, "err", err)
		}
	}
}
