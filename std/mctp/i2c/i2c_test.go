package i2c_test

import (
	"testing"
	"time"

	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/i2c"
	"github.com/mctp-go/mctpd/std/mctp/stack"
	tu "github.com/mctp-go/mctpd/std/utils/testutils"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var epoch = time.Unix(0, 0)

func TestPec(t *testing.T) {
	// CRC-8/SMBUS check value
	require.Equal(t, uint8(0xF4), i2c.Pec([]byte("123456789")))
	require.Equal(t, uint8(0x00), i2c.Pec(nil))
}

func TestEncodeLayout(t *testing.T) {
	tu.SetT(t)

	out := make([]byte, i2c.MaxFrame)
	n := tu.NoErr(i2c.Encode(0x10, 0x20, []byte{0x01, 0x0A, 0x14, 0xC8, 0x00}, out, true))
	require.Equal(t, 10, n)
	require.Equal(t, tu.Hex("20 0F 06 41 01 0A 14 C8 00"), out[:n-1])
	require.Equal(t, i2c.Pec(out[:n-1]), out[n-1])

	n = tu.NoErr(i2c.Encode(0x10, 0x20, []byte{0xAA}, out, false))
	require.Equal(t, tu.Hex("20 0F 02 41 AA"), out[:n])
}

func TestEncodeErrors(t *testing.T) {
	tu.SetT(t)

	out := make([]byte, i2c.MaxFrame)
	_, err := i2c.Encode(0x80, 0x20, []byte{1}, out, true)
	require.ErrorIs(t, err, i2c.ErrInvalidAddress)
	_, err = i2c.Encode(0x10, 0xFF, []byte{1}, out, true)
	require.ErrorIs(t, err, i2c.ErrInvalidAddress)
	_, err = i2c.Encode(0x10, 0x20, make([]byte, i2c.MaxMtu+1), out, true)
	require.ErrorIs(t, err, i2c.ErrPayloadTooLarge)

	require.Panics(t, func() {
		i2c.Encode(0x10, 0x20, make([]byte, 10), make([]byte, 14), true)
	})
	require.NotPanics(t, func() {
		i2c.Encode(0x10, 0x20, make([]byte, 10), make([]byte, 14), false)
	})
}

func TestEncodeDecodeFullFrame(t *testing.T) {
	tu.SetT(t)

	pkt := tu.Pattern(i2c.MaxMtu, 5)
	out := make([]byte, i2c.MaxFrame)
	n := tu.NoErr(i2c.Encode(0x10, 0x21, pkt, out, true))
	require.Equal(t, i2c.MaxFrame, n)
	require.Equal(t, byte(0xFF), out[2])

	got, src := tu.NoErr2(i2c.Decode(out[:n], 0x10, true))
	require.Equal(t, pkt, got)
	require.Equal(t, uint8(0x21), src)
}

// 300 bytes do not fit in one frame, so the message travels through the
// handlers as two frames.
func TestHandlerThreeHundredWithPec(t *testing.T) {
	tu.SetT(t)

	txStack := stack.NewStack(8, stack.DefaultOptions())
	rxStack := stack.NewStack(9, stack.DefaultOptions())
	tx := i2c.NewHandler(0x20, i2c.HandlerOptions{Pec: true, RequirePec: true})
	rx := i2c.NewHandler(0x10, i2c.HandlerOptions{Pec: true, RequirePec: true})
	msg := tu.Pattern(300, 9)

	require.False(t, tx.IsSendReady())
	require.Equal(t, i2c.SendIdle, tx.SendFill(make([]byte, i2c.MaxFrame)).Kind)

	f := tu.NoErr(txStack.FragmentRequest(9, msg, tx.Mtu(), epoch))
	require.NoError(t, tx.SendEnqueue(f, 0x10))
	require.ErrorIs(t, tx.SendEnqueue(f, 0x10), mctp.ErrBusy)

	var got *stack.Message
	frames := 0
	for {
		require.Nil(t, got)
		out := tx.SendFill(make([]byte, i2c.MaxFrame))
		if out.Kind == i2c.SendDone {
			break
		}
		require.Equal(t, i2c.SendPacket, out.Kind)
		require.Equal(t, uint8(0x10), out.Dest)
		frames++

		var src uint8
		var err error
		got, src, err = rx.Receive(out.Packet, rxStack, epoch)
		require.NoError(t, err)
		require.Equal(t, uint8(0x20), src)
	}
	require.Equal(t, 2, frames)
	require.NotNil(t, got)
	require.Equal(t, msg, got.Payload)
	require.Equal(t, mctp.Eid(8), got.Source)

	require.False(t, tx.IsSendReady())
	require.Equal(t, i2c.SendIdle, tx.SendFill(make([]byte, i2c.MaxFrame)).Kind)
	require.NoError(t, tx.SendEnqueue(tu.NoErr(txStack.FragmentRequest(9, msg, tx.Mtu(), epoch)), 0x10))
}

func TestCorruptedPayload(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(9, stack.DefaultOptions())
	rx := i2c.NewHandler(0x10, i2c.HandlerOptions{RequirePec: true})
	pkt := []byte{0x01, 0x09, 0x08, 0xC8, 0x01, 0x02, 0x03}

	out := make([]byte, i2c.MaxFrame)
	n := tu.NoErr(i2c.Encode(0x10, 0x20, pkt, out, true))
	out[6] ^= 0x01

	msg, _, err := rx.Receive(out[:n], s, epoch)
	require.ErrorIs(t, err, i2c.ErrPec)
	require.Nil(t, msg)
	require.Equal(t, 0, s.ActiveReassemblies())
}

func TestByteCountMismatch(t *testing.T) {
	tu.SetT(t)

	out := make([]byte, i2c.MaxFrame)
	n := tu.NoErr(i2c.Encode(0x10, 0x20, tu.Pattern(20, 0), out, true))

	frame := append([]byte{}, out[:n]...)
	frame[2]++
	frame[n-1] = i2c.Pec(frame[:n-1])
	_, _, err := i2c.Decode(frame, 0x10, true)
	require.ErrorIs(t, err, i2c.ErrLengthMismatch)

	_, _, err = i2c.Decode(out[:n-2], 0x10, true)
	require.ErrorIs(t, err, i2c.ErrLengthMismatch)

	frame[2] -= 3
	_, _, err = i2c.Decode(frame, 0x10, false)
	require.ErrorIs(t, err, i2c.ErrLengthMismatch)
}

func TestDecodeErrors(t *testing.T) {
	tu.SetT(t)

	out := make([]byte, i2c.MaxFrame)
	n := tu.NoErr(i2c.Encode(0x10, 0x20, []byte{0x01, 0x09, 0x08, 0xC8, 0x00}, out, true))
	frame := out[:n]

	_, _, err := i2c.Decode(frame[:3], 0x10, false)
	require.ErrorIs(t, err, i2c.ErrTruncated)
	_, _, err = i2c.Decode(frame[:4], 0x10, true)
	require.ErrorIs(t, err, i2c.ErrTruncated)

	_, _, err = i2c.Decode(frame, 0x11, true)
	require.ErrorIs(t, err, i2c.ErrAddressMismatch)

	bad := append([]byte{}, frame...)
	bad[1] = 0x0E
	_, _, err = i2c.Decode(bad, 0x10, true)
	require.ErrorIs(t, err, i2c.ErrBadCommandCode)

	bad = append([]byte{}, frame...)
	bad[3] &^= 1
	bad[n-1] = i2c.Pec(bad[:n-1])
	_, _, err = i2c.Decode(bad, 0x10, true)
	require.ErrorIs(t, err, i2c.ErrInvalidAddress)
}

func TestDecodeHardwarePec(t *testing.T) {
	tu.SetT(t)

	pkt := []byte{0x01, 0x09, 0x08, 0xC8, 0x00}
	out := make([]byte, i2c.MaxFrame)

	// trailing PEC stripped without verification
	n := tu.NoErr(i2c.Encode(0x10, 0x20, pkt, out, true))
	out[n-1] ^= 0xFF
	got, src := tu.NoErr2(i2c.Decode(out[:n], 0x10, false))
	require.Equal(t, pkt, got)
	require.Equal(t, uint8(0x20), src)

	// no PEC at all
	n = tu.NoErr(i2c.Encode(0x10, 0x20, pkt, out, false))
	got, _ = tu.NoErr2(i2c.Decode(out[:n], 0x10, false))
	require.Equal(t, pkt, got)

	// but a missing PEC is rejected when required
	_, _, err := i2c.Decode(out[:n], 0x10, true)
	require.ErrorIs(t, err, i2c.ErrLengthMismatch)
}

func TestHandlerOptions(t *testing.T) {
	require.Panics(t, func() { i2c.NewHandler(0x80, i2c.HandlerOptions{}) })
	require.Panics(t, func() { i2c.NewHandler(0x10, i2c.HandlerOptions{Mtu: 255}) })
	require.Equal(t, i2c.MaxMtu, i2c.NewHandler(0x10, i2c.HandlerOptions{}).Mtu())

	h := i2c.NewHandler(0x10, i2c.HandlerOptions{Mtu: 16})
	f, err := stack.NewFragmenter(8, 9, mctp.Tag{Owner: true}, make([]byte, 30), 64)
	require.NoError(t, err)
	require.ErrorIs(t, h.SendEnqueue(f, 0x80), i2c.ErrInvalidAddress)
	require.NoError(t, h.SendEnqueue(f, 0x11))

	// the handler MTU caps packets even for a larger fragmenter MTU
	out := h.SendFill(make([]byte, i2c.MaxFrame))
	require.Len(t, out.Packet, i2c.HeaderLen+16)

	h.SendCancel()
	require.False(t, h.IsSendReady())
	require.Equal(t, i2c.SendIdle, h.SendFill(make([]byte, i2c.MaxFrame)).Kind)
}

func TestEncodeDecodeProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dest := rapid.Uint8Range(0, i2c.MaxAddr).Draw(rt, "dest")
		src := rapid.Uint8Range(0, i2c.MaxAddr).Draw(rt, "src")
		pkt := rapid.SliceOfN(rapid.Byte(), 1, i2c.MaxMtu).Draw(rt, "pkt")

		out := make([]byte, i2c.MaxFrame)
		n, err := i2c.Encode(dest, src, pkt, out, true)
		require.NoError(rt, err)
		got, from, err := i2c.Decode(out[:n], dest, true)
		require.NoError(rt, err)
		require.Equal(rt, pkt, got)
		require.Equal(rt, src, from)
	})
}

func TestHandlerRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dest := rapid.Uint8Range(0, i2c.MaxAddr).Draw(rt, "dest")
		src := rapid.Uint8Range(0, i2c.MaxAddr).Draw(rt, "src")
		mtu := rapid.IntRange(mctp.MinMtu, i2c.MaxMtu).Draw(rt, "mtu")
		msg := rapid.SliceOfN(rapid.Byte(), 1, mctp.MaxPayload).Draw(rt, "msg")

		txStack := stack.NewStack(8, stack.DefaultOptions())
		rxStack := stack.NewStack(9, stack.DefaultOptions())
		tx := i2c.NewHandler(src, i2c.HandlerOptions{Pec: true, Mtu: mtu})
		rx := i2c.NewHandler(dest, i2c.HandlerOptions{RequirePec: true})

		f, err := txStack.FragmentRequest(9, msg, mtu, epoch)
		require.NoError(rt, err)
		require.NoError(rt, tx.SendEnqueue(f, dest))

		buf := make([]byte, i2c.MaxFrame)
		var got *stack.Message
		for tx.IsSendReady() {
			out := tx.SendFill(buf)
			require.Equal(rt, i2c.SendPacket, out.Kind)
			m, from, err := rx.Receive(out.Packet, rxStack, epoch)
			require.NoError(rt, err)
			require.Equal(rt, src, from)
			if m != nil {
				got = m
			}
		}
		require.Equal(rt, i2c.SendDone, tx.SendFill(buf).Kind)
		require.NotNil(rt, got)
		require.Equal(rt, msg, got.Payload)
	})
}
