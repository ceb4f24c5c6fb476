//go:build linux

package facade_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/goleak"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/facade"
	"github.com/momentics/hioload-netmap/fake"
	"github.com/momentics/hioload-netmap/stream"
)

func newFacade(t *testing.T, mut func(*facade.Config)) (*fake.NetmapDevice, *facade.Netmap) {
	t.Helper()
	dev, err := fake.NewNetmapDevice(fake.NetmapConfig{
		Name: "nm0", TxRings: 1, RxRings: 1, Slots: 16, BufSize: 512,
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := facade.DefaultConfig()
	cfg.Interface = "nm0"
	if mut != nil {
		mut(&cfg)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	n, err := facade.New(cfg, facade.WithOpener(dev.Opener()), facade.WithLogger(logger))
	if err != nil {
		t.Fatalf("facade.New: %v", err)
	}
	return dev, n
}

func TestCaptureWakesOnArrival(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev, n := newFacade(t, nil)
	defer n.Shutdown()

	rx, ok := n.Stream(api.RxRing(0))
	if !ok {
		t.Fatal("rx0 stream missing")
	}
	var got [][]byte
	capture := facade.NewCapture(rx, 3, func(p *stream.Packet) error {
		got = append(got, append([]byte(nil), p.Bytes()...))
		return nil
	})
	h, err := n.Spawn(capture)
	if err != nil {
		t.Fatal(err)
	}

	injected := make(chan struct{})
	go func() {
		defer close(injected)
		time.Sleep(20 * time.Millisecond)
		for _, s := range []string{"one", "two", "three"} {
			dev.Inject(0, []byte(s))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-injected
	if err := h.Err(); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if capture.Seen() != 3 || len(got) != 3 {
		t.Fatalf("captured %d packets", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if string(got[i]) != want {
			t.Errorf("packet %d = %q, want %q", i, got[i], want)
		}
	}
	if rx.Stats().Suspends == 0 {
		t.Error("capture never suspended before the packets arrived")
	}
}

func TestReflectorForwards(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev, n := newFacade(t, nil)
	defer n.Shutdown()

	rx, _ := n.Stream(api.RxRing(0))
	tx, _ := n.Stream(api.TxRing(0))
	refl := facade.NewReflector(rx, tx, func(in, out []byte) int {
		k := copy(out, in)
		out[0] ^= 0xff
		return k
	})
	if _, err := n.Spawn(refl); err != nil {
		t.Fatal(err)
	}
	frames := [][]byte{{1, 2, 3}, {4, 5, 6, 7}}
	for _, f := range frames {
		dev.Inject(0, f)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		for ctx.Err() == nil && len(dev.Sent()) < len(frames) {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	err := n.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}
	sent := dev.Sent()
	if len(sent) != len(frames) {
		t.Fatalf("sent %d frames", len(sent))
	}
	for i, f := range frames {
		want := append([]byte{f[0] ^ 0xff}, f[1:]...)
		if !bytes.Equal(sent[i].Data, want) {
			t.Errorf("frame %d = %x, want %x", i, sent[i].Data, want)
		}
	}
	if refl.Forwarded() != 2 {
		t.Errorf("forwarded = %d", refl.Forwarded())
	}
}

func TestReflectorDropsOversizedFrame(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev, n := newFacade(t, nil)
	defer n.Shutdown()

	rx, _ := n.Stream(api.RxRing(0))
	tx, _ := n.Stream(api.TxRing(0))
	refl := facade.NewReflector(rx, tx, func(in, out []byte) int {
		copy(out, in)
		return len(out) + 1
	})
	h, err := n.Spawn(refl)
	if err != nil {
		t.Fatal(err)
	}
	dev.Inject(0, []byte{1, 2, 3})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(h.Err(), api.ErrInvalidArgument) {
		t.Fatalf("task error = %v, want ErrInvalidArgument", h.Err())
	}
	r := tx.Handle().Ring()
	if r.Head() != 0 || r.Cur() != 0 {
		t.Errorf("tx head=%d cur=%d, want the slot unclaimed", r.Head(), r.Cur())
	}
	if err := tx.Flush(); err != nil {
		t.Fatal(err)
	}
	if sent := dev.Sent(); len(sent) != 0 {
		t.Errorf("stale frames sent: %+v", sent)
	}
	if refl.Forwarded() != 0 {
		t.Errorf("forwarded = %d", refl.Forwarded())
	}
}

func TestDefaultLoggerLeavesGlobalLevel(t *testing.T) {
	dev, err := fake.NewNetmapDevice(fake.NetmapConfig{
		Name: "nm0", TxRings: 1, RxRings: 1, Slots: 4, BufSize: 64,
	})
	if err != nil {
		t.Fatal(err)
	}
	prev := logrus.GetLevel()
	defer logrus.SetLevel(prev)
	logrus.SetLevel(logrus.WarnLevel)

	cfg := facade.DefaultConfig()
	cfg.Interface = "nm0"
	cfg.LogLevel = "panic"
	n, err := facade.New(cfg, facade.WithOpener(dev.Opener()))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Shutdown()
	if logrus.GetLevel() != logrus.WarnLevel {
		t.Errorf("global level = %s, want warn", logrus.GetLevel())
	}
}

func TestNewRejectsUnknownRing(t *testing.T) {
	dev, err := fake.NewNetmapDevice(fake.NetmapConfig{
		Name: "nm0", TxRings: 1, RxRings: 1, Slots: 4, BufSize: 64,
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := facade.DefaultConfig()
	cfg.Interface = "nm0"
	cfg.RxRings = []uint32{0, 4}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	_, err = facade.New(cfg, facade.WithOpener(dev.Opener()), facade.WithLogger(logger))
	if !errors.Is(err, api.ErrInvalidRingIndex) {
		t.Fatalf("New: %v, want ErrInvalidRingIndex", err)
	}
	if !dev.Closed() || dev.Mapped() {
		t.Error("failed New leaked the session")
	}
}

func TestStreamsAndProbes(t *testing.T) {
	_, n := newFacade(t, func(c *facade.Config) {
		c.RxRings = []uint32{0, 0}
	})
	defer n.Shutdown()

	ids := n.Streams()
	if len(ids) != 2 || ids[0] != api.TxRing(0) || ids[1] != api.RxRing(0) {
		t.Errorf("streams = %v", ids)
	}
	state := n.Probes().DumpState()
	for _, k := range []string{"session", "session.request", "ring.rx0", "ring.tx0"} {
		if _, ok := state[k]; !ok {
			t.Errorf("probe %q missing", k)
		}
	}
}

func TestReloadChangesLogLevel(t *testing.T) {
	dev, err := fake.NewNetmapDevice(fake.NetmapConfig{
		Name: "nm0", TxRings: 1, RxRings: 1, Slots: 4, BufSize: 64,
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := facade.DefaultConfig()
	cfg.Interface = "nm0"
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	n, err := facade.New(cfg, facade.WithOpener(dev.Opener()), facade.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Shutdown()

	next := n.Config().GetSnapshot()
	next.LogLevel = "debug"
	if err := n.Config().SetConfig(next); err != nil {
		t.Fatal(err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %s", logger.GetLevel())
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	dev, n := newFacade(t, nil)
	if err := n.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := n.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if !dev.Closed() {
		t.Error("device still open")
	}
	if _, err := n.Spawn(facade.NewCapture(nil, 1, nil)); !errors.Is(err, api.ErrReactorClosed) {
		t.Errorf("Spawn after Shutdown: %v", err)
	}
}
