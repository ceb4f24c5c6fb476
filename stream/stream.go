// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package stream

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-netmap/api"
)

// Option customises a RingStream.
type Option func(*RingStream)

// WithObserver reports data path events to o.
func WithObserver(o Observer) Option {
	return func(s *RingStream) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithLogger sets the base log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(s *RingStream) {
		if l != nil {
			s.log = l
		}
	}
}

// Stats counts stream activity.
type Stats struct {
	Delivered  uint64
	Syncs      uint64
	SyncErrors uint64
	Suspends   uint64
}

// RingStream is the async adapter over one ring. It owns its RingHandle.
type RingStream struct {
	h     *RingHandle
	rd    api.Readiness
	obs   Observer
	log   *logrus.Entry
	iface string

	armed  *interest
	closed bool
	stats  Stats
}

// interest is one readiness registration. While it has not fired, later
// polls retarget it at their waker instead of registering again. Once
// cancelled it swallows the wakeup, which detaches a closed stream from the
// reactor without touching other streams sharing the descriptor.
type interest struct {
	w     atomic.Pointer[wakerRef]
	fired atomic.Bool
	dead  atomic.Bool
}

type wakerRef struct{ api.Waker }

func newInterest(w api.Waker) *interest {
	in := &interest{}
	in.w.Store(&wakerRef{w})
	return in
}

func (i *interest) Wake() {
	if i.dead.Load() {
		return
	}
	i.fired.Store(true)
	i.w.Load().Wake()
}

// New wraps h; rd is normally a *reactor.Loop.
func New(h *RingHandle, rd api.Readiness, opts ...Option) *RingStream {
	s := &RingStream{
		h:     h,
		rd:    rd,
		obs:   nopObserver{},
		log:   h.Session().Logger(),
		iface: h.Session().Name(),
	}
	for _, fn := range opts {
		fn(s)
	}
	s.log = s.log.WithField("ring", h.ID().String())
	return s
}

// ID is the underlying ring.
func (s *RingStream) ID() api.RingID { return s.h.ID() }

// Handle is the underlying ring handle.
func (s *RingStream) Handle() *RingHandle { return s.h }

// Stats returns a copy of the counters.
func (s *RingStream) Stats() Stats { return s.stats }

// PollNext claims the next slot. It returns (pkt, true, nil) when a slot was
// claimed and (nil, false, nil) after arranging for w to be woken; errors
// from the kernel sync are returned as they are and never read as "empty".
// Woken callers must poll again: wakeups may be spurious.
func (s *RingStream) PollNext(w api.Waker) (*Packet, bool, error) {
	if s.closed {
		return nil, false, api.ErrStreamClosed
	}
	r := s.h.Ring()
	id := r.ID()
	if !r.HasNext() {
		s.stats.Syncs++
		err := s.h.Session().Sync(id.Dir)
		s.obs.Synced(s.iface, id.Dir, err)
		if err != nil {
			s.stats.SyncErrors++
			return nil, false, err
		}
		s.obs.Available(s.iface, id, r.Available())
	}
	if !r.HasNext() {
		if err := s.arm(w); err != nil {
			return nil, false, err
		}
		s.stats.Suspends++
		s.obs.Suspended(s.iface, id)
		return nil, false, nil
	}

	sess, err := s.h.Session().Acquire()
	if err != nil {
		return nil, false, err
	}
	idx, _ := r.Next()
	p, err := newPacket(sess, r, idx, s.obs)
	if err != nil {
		_ = sess.Release()
		return nil, false, err
	}
	s.stats.Delivered++
	s.obs.Delivered(s.iface, id)
	return p, true, nil
}

// Flush syncs the stream's direction without claiming a slot. Transmit
// streams call it to push released slots out.
func (s *RingStream) Flush() error {
	if s.closed {
		return api.ErrStreamClosed
	}
	dir := s.h.ID().Dir
	s.stats.Syncs++
	err := s.h.Session().Sync(dir)
	s.obs.Synced(s.iface, dir, err)
	if err != nil {
		s.stats.SyncErrors++
		return err
	}
	s.obs.Available(s.iface, s.h.ID(), s.h.Ring().Available())
	return nil
}

func (s *RingStream) arm(w api.Waker) error {
	if in := s.armed; in != nil && !in.dead.Load() {
		in.w.Store(&wakerRef{w})
		// Retargeted before the check, so a concurrent fire reaches w.
		if !in.fired.Load() {
			return nil
		}
		in.dead.Store(true)
	}
	in := newInterest(w)
	s.armed = in
	fd := s.h.Session().Fd()
	// The kernel signals receive arrivals as readable and freed transmit
	// slots as writable.
	if s.h.ID().Dir == api.RX {
		return s.rd.NeedRead(fd, in)
	}
	return s.rd.NeedWrite(fd, in)
}

// Next blocks until a packet is claimed or ctx ends. The reactor must be
// running on another goroutine; Next itself spawns nothing.
func (s *RingStream) Next(ctx context.Context) (*Packet, error) {
	w := make(chanWaker, 1)
	for {
		p, ok, err := s.PollNext(w)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
		select {
		case <-ctx.Done():
			if s.armed != nil {
				s.armed.dead.Store(true)
			}
			return nil, ctx.Err()
		case <-w:
		}
	}
}

type chanWaker chan struct{}

func (c chanWaker) Wake() {
	select {
	case c <- struct{}{}:
	default:
	}
}

// Close cancels pending interest and releases the ring handle. Packets
// already handed out stay valid until released.
func (s *RingStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.armed != nil {
		s.armed.dead.Store(true)
		s.armed = nil
	}
	s.log.WithFields(logrus.Fields{
		"delivered": s.stats.Delivered,
		"syncs":     s.stats.Syncs,
		"suspends":  s.stats.Suspends,
	}).Debug("ring stream closed")
	return s.h.Close()
}
