package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mctp-go/mctpd/std/mctp"
)

type flowKey struct {
	peer mctp.Eid
	tag  mctp.TagValue
}

// Request is an outstanding request waiting for its response.
type Request struct {
	r    *Router
	key  flowKey
	port PortId
	sent time.Time

	resp chan *Message
	done chan struct{}
	err  error
	once sync.Once
}

func newRequest(r *Router, key flowKey, port PortId, now time.Time) *Request {
	return &Request{
		r:    r,
		key:  key,
		port: port,
		sent: now,
		resp: make(chan *Message, 1),
		done: make(chan struct{}),
	}
}

func (q *Request) String() string {
	return fmt.Sprintf("request (%s tag=%d)", q.key.peer, q.key.tag)
}

// Peer returns the EID the request was sent to.
func (q *Request) Peer() mctp.Eid {
	return q.key.peer
}

// Tag returns the tag allocated for the request.
func (q *Request) Tag() mctp.TagValue {
	return q.key.tag
}

// Recv waits for the response and copies its body into buf.
// It returns mctp.ErrTimedOut once the flow expired.
func (q *Request) Recv(ctx context.Context, buf []byte) (*Message, error) {
	select {
	case m := <-q.resp:
		return m.copyTo(buf)
	case <-q.done:
		select {
		case m := <-q.resp:
			return m.copyTo(buf)
		default:
			return nil, q.err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the tag of an unanswered request.
func (q *Request) Close() {
	q.r.closeRequest(q)
}

// complete hands over the response. Called once per request.
func (q *Request) complete(m *Message) {
	q.resp <- m
	q.finish(mctp.ErrClosed)
}

func (q *Request) finish(err error) {
	q.once.Do(func() {
		q.err = err
		close(q.done)
	})
}
