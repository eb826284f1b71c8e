package router

import (
	"context"
	"sync"

	"github.com/mctp-go/mctpd/std/mctp"
)

// Listener receives the requests of one message type.
type Listener struct {
	r       *Router
	typ     mctp.MsgType
	mailbox chan *Message
	closed  chan struct{}
	once    sync.Once
}

func (l *Listener) String() string {
	return "listener (" + l.typ.String() + ")"
}

// Type returns the message type served by the listener.
func (l *Listener) Type() mctp.MsgType {
	return l.typ
}

// Recv waits for the next request and copies its body into buf.
func (l *Listener) Recv(ctx context.Context, buf []byte) (*Message, error) {
	select {
	case m := <-l.mailbox:
		return m.copyTo(buf)
	case <-l.closed:
		return nil, mctp.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unregisters the listener. Queued requests are dropped.
func (l *Listener) Close() {
	l.r.removeListener(l)
	l.shutdown()
}

func (l *Listener) shutdown() {
	l.once.Do(func() { close(l.closed) })
}

// offer queues m without blocking.
func (l *Listener) offer(m *Message) bool {
	select {
	case l.mailbox <- m:
		return true
	default:
		return false
	}
}
