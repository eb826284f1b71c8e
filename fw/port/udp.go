package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/mctp-go/mctpd/fw/core"
)

// UdpTransport emulates a bus over UDP: every frame is one datagram sent to
// each configured peer.
type UdpTransport struct {
	transportBase
	conn    *net.UDPConn
	local   *net.UDPAddr
	remotes []*net.UDPAddr
}

// MakeUdpTransport binds local and sends to every address in remotes.
func MakeUdpTransport(local string, remotes []string) (*UdpTransport, error) {
	t := &UdpTransport{}

	laddr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return nil, fmt.Errorf("invalid local address: %w", err)
	}
	for _, r := range remotes {
		raddr, err := net.ResolveUDPAddr("udp", r)
		if err != nil {
			return nil, fmt.Errorf("invalid remote address %q: %w", r, err)
		}
		t.remotes = append(t.remotes, raddr)
	}

	// Allow address reuse so several nodes can share a host port
	lc := net.ListenConfig{Control: SyscallReuseAddr}
	conn, err := lc.ListenPacket(context.Background(), "udp", laddr.String())
	if err != nil {
		return nil, fmt.Errorf("unable to bind %s: %w", local, err)
	}
	t.conn = conn.(*net.UDPConn)
	t.local = t.conn.LocalAddr().(*net.UDPAddr)
	t.running.Store(true)
	return t, nil
}

func (t *UdpTransport) String() string {
	return fmt.Sprintf("udp-transport (local=%s remotes=%d)", t.local, len(t.remotes))
}

// LocalAddr returns the bound address.
func (t *UdpTransport) LocalAddr() *net.UDPAddr {
	return t.local
}

func (t *UdpTransport) TargetReceive(buf []byte) (int, error) {
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if !t.running.Load() || errors.Is(err, net.ErrClosed) {
				return 0, ErrClosed
			}
			// Ignore since UDP is a connectionless protocol
			// This happens if the other side is not listening (ICMP)
			if strings.Contains(err.Error(), "connection refused") {
				continue
			}
			return 0, err
		}
		t.countIn(n)
		return n, nil
	}
}

func (t *UdpTransport) ControllerSend(_ uint8, frame []byte) error {
	if !t.running.Load() {
		return ErrClosed
	}
	for _, r := range t.remotes {
		if _, err := t.conn.WriteToUDP(frame, r); err != nil {
			core.Log.Warn(t, "Unable to send on socket", "remote", r, "err", err)
			return err
		}
	}
	t.countOut(len(frame))
	return nil
}

func (t *UdpTransport) Close() error {
	if t.running.Swap(false) {
		return t.conn.Close()
	}
	return nil
}
