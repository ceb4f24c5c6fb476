package stream_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/core/netmap"
	"github.com/momentics/hioload-netmap/fake"
	"github.com/momentics/hioload-netmap/stream"
)

const slots = 8

func openSession(t *testing.T) (*fake.NetmapDevice, *netmap.Session) {
	t.Helper()
	dev, err := fake.NewNetmapDevice(fake.NetmapConfig{
		Name:    "nm0",
		TxRings: 2,
		RxRings: 2,
		Slots:   slots,
		BufSize: 256,
	})
	if err != nil {
		t.Fatalf("NewNetmapDevice: %v", err)
	}
	sess, err := netmap.Open("nm0", netmap.WithOpener(dev.Opener()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return dev, sess
}

func openStream(t *testing.T, sess *netmap.Session, id api.RingID, rd api.Readiness) *stream.RingStream {
	t.Helper()
	h, err := stream.OpenRing(sess, id)
	if err != nil {
		t.Fatalf("OpenRing(%s): %v", id, err)
	}
	return stream.New(h, rd)
}

func TestPollNextSuspendsUntilReadable(t *testing.T) {
	dev, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	st := openStream(t, sess, api.RxRing(0), fr)
	defer st.Close()
	w := &fake.CountingWaker{}

	p, ok, err := st.PollNext(w)
	if err != nil || ok || p != nil {
		t.Fatalf("empty ring: got (%v, %v, %v), want suspended", p, ok, err)
	}
	if got := dev.Syncs(api.RX); got != 1 {
		t.Errorf("rx syncs = %d, want 1", got)
	}
	if got := dev.Syncs(api.TX); got != 0 {
		t.Errorf("tx syncs = %d, want 0", got)
	}
	if r, wr := fr.Pending(sess.Fd()); r != 1 || wr != 0 {
		t.Fatalf("pending interest = (%d, %d), want (1, 0)", r, wr)
	}

	payload := []byte("hello netmap")
	dev.Inject(0, payload)
	fr.Fire(sess.Fd(), api.EventRead)
	if w.Count() != 1 {
		t.Fatalf("waker count = %d, want 1", w.Count())
	}

	p, ok, err = st.PollNext(w)
	if err != nil || !ok {
		t.Fatalf("after wake: got (%v, %v), want packet", ok, err)
	}
	if !bytes.Equal(p.Bytes(), payload) {
		t.Errorf("payload = %q, want %q", p.Bytes(), payload)
	}
	if p.Ring() != api.RxRing(0) || p.Index() != 0 {
		t.Errorf("packet from %s slot %d, want rx0 slot 0", p.Ring(), p.Index())
	}
	if err := p.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	r := st.Handle().Ring()
	if r.Head() != r.Cur() || r.Head() != 1 {
		t.Errorf("after release head=%d cur=%d, want 1/1", r.Head(), r.Cur())
	}
	if s := st.Stats(); s.Delivered != 1 || s.Suspends != 1 || s.Syncs != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSpuriousWakeSuspendsAgain(t *testing.T) {
	_, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	st := openStream(t, sess, api.RxRing(0), fr)
	defer st.Close()
	w := &fake.CountingWaker{}

	for i := 0; i < 3; i++ {
		if _, ok, err := st.PollNext(w); ok || err != nil {
			t.Fatalf("poll %d: ok=%v err=%v", i, ok, err)
		}
		fr.Fire(sess.Fd(), api.EventRead)
	}
	if fr.NeedReadCalls != 3 {
		t.Errorf("NeedRead calls = %d, want 3", fr.NeedReadCalls)
	}
}

func TestRepeatedPollsShareOneRegistration(t *testing.T) {
	_, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	st := openStream(t, sess, api.RxRing(0), fr)
	defer st.Close()

	var ws [3]fake.CountingWaker
	for i := range ws {
		if _, ok, err := st.PollNext(&ws[i]); ok || err != nil {
			t.Fatalf("poll %d: ok=%v err=%v", i, ok, err)
		}
	}
	if fr.NeedReadCalls != 1 {
		t.Errorf("NeedRead calls = %d, want 1", fr.NeedReadCalls)
	}
	if r, _ := fr.Pending(sess.Fd()); r != 1 {
		t.Errorf("pending readers = %d, want 1", r)
	}
	fr.Fire(sess.Fd(), api.EventRead)
	if ws[0].Count() != 0 || ws[1].Count() != 0 || ws[2].Count() != 1 {
		t.Errorf("wakes = %d %d %d, want only the latest waker", ws[0].Count(), ws[1].Count(), ws[2].Count())
	}
}

func TestDeliveryInRingOrder(t *testing.T) {
	dev, sess := openSession(t)
	defer sess.Close()
	st := openStream(t, sess, api.RxRing(1), fake.NewFakeReactor())
	defer st.Close()

	want := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	for _, b := range want {
		dev.Inject(1, b)
	}
	var got []*stream.Packet
	for range want {
		p, ok, err := st.PollNext(&fake.CountingWaker{})
		if err != nil || !ok {
			t.Fatalf("PollNext: ok=%v err=%v", ok, err)
		}
		got = append(got, p)
	}
	for i, p := range got {
		if p.Index() != uint32(i) {
			t.Errorf("packet %d from slot %d", i, p.Index())
		}
		if !bytes.Equal(p.Bytes(), want[i]) {
			t.Errorf("packet %d = %q, want %q", i, p.Bytes(), want[i])
		}
		if p.Len() != len(want[i]) {
			t.Errorf("packet %d len = %d", i, p.Len())
		}
	}
	for _, p := range got {
		p.Release()
	}
	if got := dev.Syncs(api.RX); got != 1 {
		t.Errorf("rx syncs = %d, want 1 for a single batch", got)
	}
}

func TestReleaseReclaimsOwnRing(t *testing.T) {
	dev, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	rx0 := openStream(t, sess, api.RxRing(0), fr)
	defer rx0.Close()
	rx1 := openStream(t, sess, api.RxRing(1), fr)
	defer rx1.Close()

	dev.Inject(0, []byte("zero"))
	dev.Inject(1, []byte("one"))

	p0, ok, err := rx0.PollNext(&fake.CountingWaker{})
	if err != nil || !ok {
		t.Fatalf("rx0: ok=%v err=%v", ok, err)
	}
	p1, ok, err := rx1.PollNext(&fake.CountingWaker{})
	if err != nil || !ok {
		t.Fatalf("rx1: ok=%v err=%v", ok, err)
	}

	if err := p1.Release(); err != nil {
		t.Fatal(err)
	}
	if h := rx1.Handle().Ring().Head(); h != 1 {
		t.Errorf("rx1 head = %d, want 1", h)
	}
	if h := rx0.Handle().Ring().Head(); h != 0 {
		t.Errorf("rx0 head = %d, want 0 while its packet is held", h)
	}

	if err := p0.Release(); err != nil {
		t.Fatal(err)
	}
	if h := rx0.Handle().Ring().Head(); h != 1 {
		t.Errorf("rx0 head = %d, want 1", h)
	}
}

func TestDoubleReleaseIsNoop(t *testing.T) {
	dev, sess := openSession(t)
	st := openStream(t, sess, api.RxRing(0), fake.NewFakeReactor())
	dev.Inject(0, []byte("x"))
	p, ok, err := st.PollNext(&fake.CountingWaker{})
	if err != nil || !ok {
		t.Fatalf("PollNext: ok=%v err=%v", ok, err)
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	head := st.Handle().Ring().Head()
	if err := p.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if st.Handle().Ring().Head() != head {
		t.Error("second Release moved head")
	}
	if p.Bytes() != nil || p.Buffer() != nil {
		t.Error("released packet still exposes its buffer")
	}
	st.Close()
	sess.Close()
	if !dev.Closed() {
		t.Error("device left open; a reference leaked")
	}
}

func TestTransmitRoundTrip(t *testing.T) {
	dev, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	st := openStream(t, sess, api.TxRing(0), fr)
	defer st.Close()

	p, ok, err := st.PollNext(&fake.CountingWaker{})
	if err != nil || !ok {
		t.Fatalf("fresh tx ring: ok=%v err=%v", ok, err)
	}
	if dev.Syncs(api.TX) != 0 {
		t.Error("tx ring with free slots should not sync")
	}
	if len(p.Bytes()) != 256 {
		t.Errorf("tx Bytes len = %d, want whole buffer", len(p.Bytes()))
	}
	frame := []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
	n := copy(p.Buffer(), frame)
	if err := p.SetLen(n); err != nil {
		t.Fatal(err)
	}
	p.SetFlags(netmap.SlotReport)
	if err := p.SetLen(257); err == nil {
		t.Error("SetLen beyond buffer accepted")
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if err := sess.TxSync(); err != nil {
		t.Fatal(err)
	}

	sent := dev.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	f := sent[0]
	if f.Ring != 0 || f.Slot != 0 || f.Len != uint16(n) || f.Flags != netmap.SlotReport {
		t.Errorf("frame = %+v", f)
	}
	if !bytes.Equal(f.Data, frame) {
		t.Errorf("frame data = %x, want %x", f.Data, frame)
	}
}

func TestDiscardUnclaimsNewestSlot(t *testing.T) {
	dev, sess := openSession(t)
	defer sess.Close()
	st := openStream(t, sess, api.TxRing(0), fake.NewFakeReactor())
	defer st.Close()
	w := &fake.CountingWaker{}

	first, _, err := st.PollNext(w)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := st.PollNext(w)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Discard(); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("discarding an older claim: %v, want ErrInvalidArgument", err)
	}
	if err := second.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if err := second.Discard(); err != nil {
		t.Errorf("second Discard: %v", err)
	}
	r := st.Handle().Ring()
	if r.Head() != 0 || r.Cur() != 1 {
		t.Errorf("head=%d cur=%d, want 0 1", r.Head(), r.Cur())
	}
	if second.Buffer() != nil {
		t.Error("discarded packet still exposes its buffer")
	}

	p, _, err := st.PollNext(w)
	if err != nil {
		t.Fatal(err)
	}
	if p.Index() != 1 {
		t.Errorf("reclaimed slot index = %d, want 1", p.Index())
	}
	p.SetLen(4)
	p.Release()
	if err := st.Flush(); err != nil {
		t.Fatal(err)
	}
	if sent := dev.Sent(); len(sent) != 2 || sent[1].Slot != 1 || sent[1].Len != 4 {
		t.Errorf("sent = %+v", sent)
	}
}

func TestTransmitSuspendsOnWritable(t *testing.T) {
	_, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	st := openStream(t, sess, api.TxRing(1), fr)
	defer st.Close()

	var held []*stream.Packet
	for {
		p, ok, err := st.PollNext(&fake.CountingWaker{})
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		held = append(held, p)
	}
	if len(held) != slots-1 {
		t.Errorf("claimed %d tx slots, want %d", len(held), slots-1)
	}
	if fr.NeedWriteCalls != 1 || fr.NeedReadCalls != 0 {
		t.Errorf("interest: read=%d write=%d, want write only", fr.NeedReadCalls, fr.NeedWriteCalls)
	}
	for _, p := range held {
		p.Release()
	}
}

func TestSyncFailureIsReported(t *testing.T) {
	dev, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	st := openStream(t, sess, api.RxRing(0), fr)
	defer st.Close()

	boom := errors.New("boom")
	dev.FailSync(api.RX, boom)
	dev.Inject(0, []byte("lost"))

	_, ok, err := st.PollNext(&fake.CountingWaker{})
	if ok {
		t.Fatal("got packet despite failed sync")
	}
	if !errors.Is(err, api.ErrSync) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrSync wrapping boom", err)
	}
	if r, w := fr.Pending(sess.Fd()); r+w != 0 {
		t.Error("failed sync must not arm interest")
	}
	if st.Stats().SyncErrors != 1 {
		t.Errorf("sync errors = %d", st.Stats().SyncErrors)
	}

	dev.FailSync(api.RX, nil)
	p, ok, err := st.PollNext(&fake.CountingWaker{})
	if err != nil || !ok {
		t.Fatalf("after recovery: ok=%v err=%v", ok, err)
	}
	p.Release()
}

func TestCloseDetachesInterest(t *testing.T) {
	_, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	st := openStream(t, sess, api.RxRing(0), fr)
	w := &fake.CountingWaker{}

	if _, ok, err := st.PollNext(w); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	fr.Fire(sess.Fd(), api.EventRead)
	if w.Count() != 0 {
		t.Error("closed stream woke its task")
	}
	if _, _, err := st.PollNext(w); !errors.Is(err, api.ErrStreamClosed) {
		t.Errorf("PollNext after Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPacketKeepsSessionMapped(t *testing.T) {
	dev, sess := openSession(t)
	st := openStream(t, sess, api.RxRing(0), fake.NewFakeReactor())
	dev.Inject(0, []byte("late"))
	p, ok, err := st.PollNext(&fake.CountingWaker{})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	st.Close()
	sess.Close()
	if !dev.Mapped() || dev.Closed() {
		t.Fatal("mapping released while a packet is outstanding")
	}
	if string(p.Bytes()) != "late" {
		t.Errorf("payload = %q", p.Bytes())
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if dev.Mapped() || !dev.Closed() {
		t.Error("last release did not tear the session down")
	}
}

func TestOpenRingRejectsBadIndex(t *testing.T) {
	_, sess := openSession(t)
	defer sess.Close()
	_, err := stream.OpenRing(sess, api.RxRing(2))
	if !errors.Is(err, api.ErrInvalidRingIndex) {
		t.Fatalf("err = %v, want ErrInvalidRingIndex", err)
	}
	h, err := stream.OpenRing(sess, api.TxRing(1))
	if err != nil {
		t.Fatal(err)
	}
	c, err := h.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if c.Ring() != h.Ring() {
		t.Error("clone resolved a different ring")
	}
	h.Close()
	c.Close()
}

func TestNextBlocksUntilWoken(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev, sess := openSession(t)
	defer sess.Close()
	fr := fake.NewFakeReactor()
	st := openStream(t, sess, api.RxRing(0), fr)
	defer st.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if r, _ := fr.Pending(sess.Fd()); r > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		dev.Inject(0, []byte("async"))
		fr.Fire(sess.Fd(), api.EventRead)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := st.Next(ctx)
	<-done
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(p.Bytes()) != "async" {
		t.Errorf("payload = %q", p.Bytes())
	}
	p.Release()
}

func TestNextHonoursContext(t *testing.T) {
	_, sess := openSession(t)
	defer sess.Close()
	st := openStream(t, sess, api.RxRing(0), fake.NewFakeReactor())
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := st.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next: %v, want deadline exceeded", err)
	}
}

func TestFlushTransmitsReleasedSlots(t *testing.T) {
	dev, sess := openSession(t)
	defer sess.Close()
	st := openStream(t, sess, api.TxRing(1), fake.NewFakeReactor())
	defer st.Close()

	for i := 0; i < 3; i++ {
		p, ok, err := st.PollNext(&fake.CountingWaker{})
		if err != nil || !ok {
			t.Fatalf("PollNext: ok=%v err=%v", ok, err)
		}
		p.Buffer()[0] = byte(i)
		p.SetLen(1)
		p.Release()
	}
	if len(dev.Sent()) != 0 {
		t.Fatal("frames sent before flush")
	}
	if err := st.Flush(); err != nil {
		t.Fatal(err)
	}
	sent := dev.Sent()
	if len(sent) != 3 {
		t.Fatalf("sent %d frames, want 3", len(sent))
	}
	for i, f := range sent {
		if f.Ring != 1 || f.Slot != uint32(i) || f.Data[0] != byte(i) {
			t.Errorf("frame %d = %+v", i, f)
		}
	}
	if r := st.Handle().Ring(); r.Available() != slots-1 {
		t.Errorf("available after flush = %d, want %d", r.Available(), slots-1)
	}
	if dev.Syncs(api.RX) != 0 {
		t.Error("transmit flush issued a receive sync")
	}
}
