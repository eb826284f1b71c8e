package port

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mctp-go/mctpd/fw/core"
	mio "github.com/mctp-go/mctpd/std/utils/io"
)

// StreamTransport carries back-to-back frames over a unix or tcp stream,
// for example to a bus simulator or a serial bridge. The PEC setting must
// match on both ends since it decides the frame length.
type StreamTransport struct {
	transportBase
	inbox
	network string
	remote  string
	pec     bool
	conn    net.Conn
	writer  *mio.TimedWriter
}

// closeFlushTimeout bounds the flush of batched frames on Close.
const closeFlushTimeout = 100 * time.Millisecond

// MakeStreamTransport connects to remote.
func MakeStreamTransport(network, remote string, pec bool) (*StreamTransport, error) {
	conn, err := net.Dial(network, remote)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", remote, err)
	}
	return NewStreamTransport(conn, pec), nil
}

// NewStreamTransport wraps an established connection.
func NewStreamTransport(conn net.Conn, pec bool) *StreamTransport {
	t := &StreamTransport{
		inbox:   makeInbox(64),
		network: conn.RemoteAddr().Network(),
		remote:  conn.RemoteAddr().String(),
		pec:     pec,
		conn:    conn,
		writer:  mio.NewTimedWriter(conn, mio.MaxSmbusFrame*8),
	}
	t.running.Store(true)
	go t.runReceive()
	return t
}

func (t *StreamTransport) String() string {
	return fmt.Sprintf("stream-transport (%s remote=%s)", t.network, t.remote)
}

func (t *StreamTransport) runReceive() {
	defer t.Close()

	err := mio.ReadSmbusStream(t.conn, t.pec, func(frame []byte) bool {
		if !t.put(frame) {
			core.Log.Debug(t, "Receive queue full - DROP")
			return true
		}
		t.countIn(len(frame))
		return true
	}, nil)
	if err != nil && t.running.Load() {
		core.Log.Warn(t, "Unable to read from socket - DOWN", "err", err)
	}
}

func (t *StreamTransport) TargetReceive(buf []byte) (int, error) {
	return t.get(buf)
}

func (t *StreamTransport) ControllerSend(_ uint8, frame []byte) error {
	if !t.running.Load() {
		return ErrClosed
	}
	if n := mio.SmbusFrameLen(frame, t.pec); n != len(frame) {
		return fmt.Errorf("frame length %d does not match byte count", len(frame))
	}
	if _, err := t.writer.Write(frame); err != nil {
		core.Log.Warn(t, "Unable to send on socket - DOWN", "err", err)
		t.Close()
		return err
	}
	t.countOut(len(frame))
	return nil
}

// Close sends the frames still batched, then closes the connection.
func (t *StreamTransport) Close() error {
	if t.running.Swap(false) {
		t.inbox.close()
		t.conn.SetWriteDeadline(time.Now().Add(closeFlushTimeout))
		return errors.Join(t.writer.Flush(), t.conn.Close())
	}
	return nil
}
