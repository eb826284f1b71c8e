package stack_test

import (
	"testing"
	"time"

	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/stack"
	tu "github.com/mctp-go/mctpd/std/utils/testutils"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var epoch = time.Unix(0, 0)

func fragmentAll(f *stack.Fragmenter, mtu int) [][]byte {
	pkts := [][]byte{}
	for {
		out := make([]byte, mtu)
		pkt := f.Next(out)
		if pkt == nil {
			return pkts
		}
		pkts = append(pkts, pkt)
	}
}

func TestFragmentSixHundred(t *testing.T) {
	tu.SetT(t)

	tx := stack.NewStack(9, stack.DefaultOptions())
	rx := stack.NewStack(10, stack.DefaultOptions())
	msg := tu.Pattern(600, 1)

	f := tu.NoErr(tx.FragmentRequest(10, msg, 254, epoch))
	require.Equal(t, 3, f.Count())
	pkts := fragmentAll(f, 254)
	require.Len(t, pkts, 3)
	require.True(t, f.IsDone())
	require.Nil(t, f.Next(make([]byte, 254)))

	for i, pkt := range pkts {
		hdr := tu.NoErr(mctp.ParseHeader(pkt))
		require.Equal(t, i == 0, hdr.SOM)
		require.Equal(t, i == 2, hdr.EOM)
		require.Equal(t, uint8(i), hdr.Seq)
		require.True(t, hdr.Tag.Owner)
		require.Equal(t, mctp.Eid(10), hdr.Dest)
		require.Equal(t, mctp.Eid(9), hdr.Source)
	}
	require.Len(t, pkts[0], 254)
	require.Len(t, pkts[2], 4+100)

	require.Nil(t, tu.NoErr(rx.Receive(pkts[0], epoch)))
	require.Nil(t, tu.NoErr(rx.Receive(pkts[1], epoch)))
	m := tu.NoErr(rx.Receive(pkts[2], epoch))
	require.NotNil(t, m)
	require.Equal(t, msg, m.Payload)
	require.Equal(t, mctp.Eid(9), m.Source)
	require.Equal(t, mctp.Eid(10), m.Dest)
	require.True(t, m.Tag.Owner)
	require.Equal(t, 0, rx.ActiveReassemblies())
}

func TestOutOfOrderDiscards(t *testing.T) {
	tu.SetT(t)

	tx := stack.NewStack(9, stack.DefaultOptions())
	rx := stack.NewStack(10, stack.DefaultOptions())
	pkts := fragmentAll(tu.NoErr(tx.FragmentRequest(10, tu.Pattern(600, 3), 254, epoch)), 254)

	require.Nil(t, tu.NoErr(rx.Receive(pkts[0], epoch)))
	_, err := rx.Receive(pkts[2], epoch)
	require.ErrorIs(t, err, mctp.ErrSequence)
	require.Equal(t, 0, rx.ActiveReassemblies())

	_, err = rx.Receive(pkts[1], epoch)
	require.ErrorIs(t, err, mctp.ErrUnknownConversation)
	_, err = rx.Receive(pkts[2], epoch)
	require.ErrorIs(t, err, mctp.ErrUnknownConversation)
}

func TestRepeatedSequenceDiscards(t *testing.T) {
	tu.SetT(t)

	tx := stack.NewStack(9, stack.DefaultOptions())
	rx := stack.NewStack(10, stack.DefaultOptions())
	pkts := fragmentAll(tu.NoErr(tx.FragmentRequest(10, tu.Pattern(600, 3), 254, epoch)), 254)

	tu.NoErr(rx.Receive(pkts[0], epoch))
	tu.NoErr(rx.Receive(pkts[1], epoch))
	_, err := rx.Receive(pkts[1], epoch)
	require.ErrorIs(t, err, mctp.ErrSequence)
	_, err = rx.Receive(pkts[2], epoch)
	require.ErrorIs(t, err, mctp.ErrUnknownConversation)
}

func TestTagExhaustion(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(8, stack.DefaultOptions())
	seen := map[mctp.TagValue]bool{}
	for range mctp.TagValueMax + 1 {
		tag := tu.NoErr(s.AllocTag(20, epoch))
		require.False(t, seen[tag])
		seen[tag] = true
	}
	_, err := s.AllocTag(20, epoch)
	require.ErrorIs(t, err, mctp.ErrTagExhausted)

	// a response for tag 5 frees it for reuse
	require.True(t, s.CompleteFlow(20, 5))
	require.False(t, s.CompleteFlow(20, 5))
	require.Equal(t, mctp.TagValue(5), tu.NoErr(s.AllocTag(20, epoch)))

	// other peers are unaffected
	tu.NoErr(s.AllocTag(21, epoch))
}

func TestFlowTableExhaustion(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(8, stack.DefaultOptions())
	peers := mctp.Flows / int(mctp.TagValueMax+1)
	for p := range peers {
		for range mctp.TagValueMax + 1 {
			tu.NoErr(s.AllocTag(mctp.Eid(16+p), epoch))
		}
	}
	require.Equal(t, mctp.Flows, s.ActiveFlows())

	_, err := s.AllocTag(mctp.Eid(16+peers), epoch)
	require.ErrorIs(t, err, mctp.ErrTagExhausted)

	require.True(t, s.CompleteFlow(17, 3))
	require.Equal(t, mctp.TagValue(3), tu.NoErr(s.AllocTag(17, epoch)))
	for p := range peers {
		for tag := range mctp.TagValueMax + 1 {
			require.True(t, s.HasFlow(mctp.Eid(16+p), tag))
		}
	}
}

func TestFragmentRequestReleasesTagOnError(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(8, stack.DefaultOptions())
	_, err := s.FragmentRequest(20, make([]byte, mctp.MaxPayload+1), 64, epoch)
	require.ErrorIs(t, err, mctp.ErrMessageTooLarge)
	require.Equal(t, 0, s.ActiveFlows())

	_, err = s.FragmentRequest(20, []byte{1}, mctp.HeaderLen, epoch)
	require.Error(t, err)
	require.Equal(t, 0, s.ActiveFlows())
}

func TestFragmentResponse(t *testing.T) {
	tu.SetT(t)

	a := stack.NewStack(8, stack.DefaultOptions())
	b := stack.NewStack(9, stack.DefaultOptions())

	req := fragmentAll(tu.NoErr(a.FragmentRequest(9, []byte{0x01, 0xAA}, 64, epoch)), 64)
	m := tu.NoErr(b.Receive(req[0], epoch))
	require.NotNil(t, m)
	require.Equal(t, mctp.MsgTypePldm, m.Type())
	require.False(t, m.IC())
	require.Equal(t, []byte{0xAA}, m.Body())

	resp := fragmentAll(tu.NoErr(b.FragmentResponse(m, []byte{0x01, 0xBB}, 64)), 64)
	require.Equal(t, 0, b.ActiveFlows())
	r := tu.NoErr(a.Receive(resp[0], epoch))
	require.False(t, r.Tag.Owner)
	require.Equal(t, m.Tag.Value, r.Tag.Value)
	require.True(t, a.CompleteFlow(r.Source, r.Tag.Value))

	_, err := b.FragmentResponse(r, []byte{0x01}, 64)
	require.Error(t, err)

	// Answered from the addressed EID even after an EID change
	b.SetEid(20)
	f := tu.NoErr(b.FragmentResponse(&stack.Message{Source: 8, Dest: 9, Tag: m.Tag}, []byte{0x01}, 64))
	require.Equal(t, mctp.Eid(9), f.Source())

	// Null and broadcast requests are answered from the own EID
	f = tu.NoErr(b.FragmentResponse(&stack.Message{Source: 8, Dest: mctp.EidNull, Tag: m.Tag}, []byte{0x01}, 64))
	require.Equal(t, mctp.Eid(20), f.Source())
}

func TestFragmentBufferPanics(t *testing.T) {
	tu.SetT(t)

	f := tu.NoErr(stack.NewFragmenter(8, 9, mctp.Tag{}, []byte{1, 2, 3}, 64))
	require.Panics(t, func() { f.Next(make([]byte, mctp.HeaderLen)) })

	// a short but legal buffer caps the packet size
	pkt := f.Next(make([]byte, mctp.MinMtu))
	require.Len(t, pkt, mctp.MinMtu)
	require.Equal(t, 2, f.Remaining())
}

func TestSomRestartsConversation(t *testing.T) {
	tu.SetT(t)

	rx := stack.NewStack(10, stack.DefaultOptions())
	tag := mctp.Tag{Value: 2, Owner: true}

	first := fragmentAll(tu.NoErr(stack.NewFragmenter(9, 10, tag, tu.Pattern(150, 1), 64)), 64)
	second := fragmentAll(tu.NoErr(stack.NewFragmenter(9, 10, tag, tu.Pattern(150, 2), 64)), 64)

	tu.NoErr(rx.Receive(first[0], epoch))
	tu.NoErr(rx.Receive(second[0], epoch))
	require.Equal(t, 1, rx.ActiveReassemblies())
	tu.NoErr(rx.Receive(second[1], epoch))
	m := tu.NoErr(rx.Receive(second[2], epoch))
	require.Equal(t, tu.Pattern(150, 2), m.Payload)
}

func TestReassemblyPoolEviction(t *testing.T) {
	tu.SetT(t)

	rx := stack.NewStack(10, stack.DefaultOptions())
	start := func(src mctp.Eid, now time.Time) error {
		f := tu.NoErr(stack.NewFragmenter(src, 10, mctp.Tag{Owner: true}, tu.Pattern(100, byte(src)), 64))
		_, err := rx.Receive(f.Next(make([]byte, 64)), now)
		return err
	}

	for i := range mctp.NumReceive {
		require.NoError(t, start(mctp.Eid(20+i), epoch.Add(time.Duration(i)*time.Millisecond)))
	}
	require.Equal(t, mctp.NumReceive, rx.ActiveReassemblies())

	// every slot is busy and recent
	require.ErrorIs(t, start(30, epoch.Add(500*time.Millisecond)), mctp.ErrNoReassemblySlot)

	// after the grace period the oldest (source 20) is reclaimed
	now := epoch.Add(mctp.EvictGrace + time.Millisecond)
	require.NoError(t, start(30, now))
	require.Equal(t, mctp.NumReceive, rx.ActiveReassemblies())

	f := tu.NoErr(stack.NewFragmenter(20, 10, mctp.Tag{Owner: true}, tu.Pattern(100, 20), 64))
	f.Next(make([]byte, 64))
	_, err := rx.Receive(f.Next(make([]byte, 64)), now)
	require.ErrorIs(t, err, mctp.ErrUnknownConversation)

	f = tu.NoErr(stack.NewFragmenter(21, 10, mctp.Tag{Owner: true}, tu.Pattern(100, 21), 64))
	f.Next(make([]byte, 64))
	m := tu.NoErr(rx.Receive(f.Next(make([]byte, 64)), now))
	require.NotNil(t, m)
	require.Equal(t, tu.Pattern(100, 21), m.Payload)
}

func TestSweepTimeouts(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(10, stack.DefaultOptions())
	f := tu.NoErr(stack.NewFragmenter(20, 10, mctp.Tag{Owner: true}, tu.Pattern(100, 0), 64))
	tu.NoErr(s.Receive(f.Next(make([]byte, 64)), epoch))
	tag := tu.NoErr(s.AllocTag(20, epoch))
	tu.NoErr(s.AllocTag(21, epoch.Add(time.Second)))

	require.Equal(t, 0, s.SweepTimeouts(epoch.Add(mctp.ReassemblyTimeout-time.Millisecond), nil))

	type flow struct {
		peer mctp.Eid
		tag  mctp.TagValue
	}
	expired := []flow{}
	n := s.SweepTimeouts(epoch.Add(mctp.ReassemblyTimeout), func(peer mctp.Eid, tag mctp.TagValue) {
		expired = append(expired, flow{peer, tag})
	})
	require.Equal(t, 2, n)
	require.Equal(t, []flow{{20, tag}}, expired)
	require.Equal(t, 0, s.ActiveReassemblies())
	require.False(t, s.HasFlow(20, tag))
	require.Equal(t, 1, s.ActiveFlows())

	_, err := s.Receive(f.Next(make([]byte, 64)), epoch.Add(mctp.ReassemblyTimeout))
	require.ErrorIs(t, err, mctp.ErrUnknownConversation)
}

func TestExpiredSlotFreedOnArrival(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(10, stack.DefaultOptions())
	f := tu.NoErr(stack.NewFragmenter(20, 10, mctp.Tag{Owner: true}, tu.Pattern(100, 0), 64))
	tu.NoErr(s.Receive(f.Next(make([]byte, 64)), epoch))
	_, err := s.Receive(f.Next(make([]byte, 64)), epoch.Add(mctp.ReassemblyTimeout))
	require.ErrorIs(t, err, mctp.ErrUnknownConversation)
	require.Equal(t, 0, s.ActiveReassemblies())
}

func TestReceiveErrors(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(10, stack.DefaultOptions())
	_, err := s.Receive([]byte{0x01, 0x0A, 0x14}, epoch)
	require.ErrorIs(t, err, mctp.ErrTruncated)
	_, err = s.Receive([]byte{0x01, 0x0A, 0x14, 0xC8}, epoch)
	require.ErrorIs(t, err, mctp.ErrTruncated)
	_, err = s.Receive([]byte{0x02, 0x0A, 0x14, 0xC8, 0x00}, epoch)
	require.ErrorIs(t, err, mctp.ErrBadVersion)

	// single packet message
	m := tu.NoErr(s.Receive([]byte{0x01, 0x0A, 0x14, 0xC8, 0x00, 0x82}, epoch))
	require.Equal(t, []byte{0x00, 0x82}, m.Payload)
	require.Equal(t, mctp.MsgTypeControl, m.Type())
}

func TestMessageTooLarge(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(10, stack.DefaultOptions())
	hdr := mctp.Header{Dest: 10, Source: 20, Tag: mctp.Tag{Owner: true}}
	pkt := make([]byte, 251)
	for i := 0; ; i++ {
		hdr.SOM = i == 0
		hdr.Seq = uint8(i % mctp.SeqModulo)
		hdr.Encode(pkt)
		_, err := s.Receive(pkt, epoch)
		if err != nil {
			require.ErrorIs(t, err, mctp.ErrMessageTooLarge)
			require.Equal(t, 4, i)
			break
		}
	}
	require.Equal(t, 0, s.ActiveReassemblies())
}

func TestReset(t *testing.T) {
	tu.SetT(t)

	s := stack.NewStack(10, stack.DefaultOptions())
	f := tu.NoErr(stack.NewFragmenter(20, 10, mctp.Tag{Owner: true}, tu.Pattern(100, 0), 64))
	tu.NoErr(s.Receive(f.Next(make([]byte, 64)), epoch))
	tu.NoErr(s.AllocTag(20, epoch))
	s.Reset()
	require.Equal(t, 0, s.ActiveReassemblies())
	require.Equal(t, 0, s.ActiveFlows())
}

func TestFragmentReassembleProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(1, mctp.MaxPayload).Draw(rt, "size")
		mtu := rapid.IntRange(mctp.MinMtu, mctp.MaxMtu).Draw(rt, "mtu")
		msg := rapid.SliceOfN(rapid.Byte(), size, size).Draw(rt, "msg")

		tx := stack.NewStack(9, stack.DefaultOptions())
		rx := stack.NewStack(10, stack.DefaultOptions())
		f, err := tx.FragmentRequest(10, msg, mtu, epoch)
		require.NoError(rt, err)
		count := f.Count()

		var got *stack.Message
		n := 0
		for {
			pkt := f.Next(make([]byte, mtu))
			if pkt == nil {
				break
			}
			n++
			require.Nil(rt, got)
			got, err = rx.Receive(pkt, epoch)
			require.NoError(rt, err)
		}
		require.Equal(rt, count, n)
		require.NotNil(rt, got)
		require.Equal(rt, msg, got.Payload)
	})
}

func TestSequenceViolationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(3*60+1, mctp.MaxPayload).Draw(rt, "size")
		f, err := stack.NewFragmenter(9, 10, mctp.Tag{Owner: true}, make([]byte, size), 64)
		require.NoError(rt, err)
		pkts := fragmentAll(f, 64)

		// packet at is replaced by a repeated or skipped one
		at := rapid.IntRange(2, len(pkts)-2).Draw(rt, "at")
		bad := rapid.SampledFrom([]int{at - 1, at + 1}).Draw(rt, "bad")

		rx := stack.NewStack(10, stack.DefaultOptions())
		for _, pkt := range pkts[:at] {
			m, err := rx.Receive(pkt, epoch)
			require.NoError(rt, err)
			require.Nil(rt, m)
		}
		_, err = rx.Receive(pkts[bad], epoch)
		require.ErrorIs(rt, err, mctp.ErrSequence)
		require.Equal(rt, 0, rx.ActiveReassemblies())
		for _, pkt := range pkts[at:] {
			m, _ := rx.Receive(pkt, epoch)
			require.Nil(rt, m)
		}
	})
}
