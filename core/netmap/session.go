// File: core/netmap/session.go
// Author: momentics <momentics@gmail.com>
//
// Session owns the device descriptor, the negotiated registration record
// and the shared memory mapping. It is reference counted: ring handles and
// packet handles each hold a reference, and the mapping is torn down
// (unmap, then close) when the last one is released.

package netmap

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-netmap/api"
)

// Option customises Open.
type Option func(*options)

type options struct {
	path      string
	opener    Opener
	log       *logrus.Entry
	linkCheck bool
}

// WithDevicePath overrides DefaultDevicePath.
func WithDevicePath(path string) Option { return func(o *options) { o.path = path } }

// WithOpener replaces the kernel device, e.g. with a simulated one.
func WithOpener(op Opener) Option { return func(o *options) { o.opener = op } }

// WithLogger sets the base log entry.
func WithLogger(l *logrus.Entry) Option { return func(o *options) { o.log = l } }

// WithLinkCheck makes Open look the interface up before registering it.
func WithLinkCheck(on bool) Option { return func(o *options) { o.linkCheck = on } }

// Session is one registered netmap interface.
type Session struct {
	id     string
	name   string
	dev    Device
	req    Request
	reqBuf [RequestSize]byte
	region Region
	iface  *Interface
	log    *logrus.Entry

	refs        atomic.Int32
	ownerClosed atomic.Bool
}

// Open opens the device, registers name for its hardware rings and maps
// the shared region.
func Open(name string, opts ...Option) (*Session, error) {
	o := options{path: DefaultDevicePath, opener: OpenDevice}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = logrus.NewEntry(logrus.StandardLogger())
	}

	req, err := NewRequest(name)
	if err != nil {
		return nil, api.Wrap(api.ErrCodeRegistration, "netmap register", err).WithContext("iface", name)
	}
	if o.linkCheck {
		if _, err := LookupLink(name); err != nil {
			return nil, api.Wrap(api.ErrCodeRegistration, "netmap register", err).WithContext("iface", name)
		}
	}

	s := &Session{
		id:   uuid.NewString(),
		name: name,
	}
	s.log = o.log.WithFields(logrus.Fields{
		"component": "netmap",
		"iface":     name,
		"session":   s.id,
	})

	dev, err := o.opener(o.path)
	if err != nil {
		return nil, api.Wrap(api.ErrCodeDeviceOpen, "netmap open", err).WithContext("path", o.path)
	}
	s.dev = dev

	s.reqBuf = req.Marshal()
	if err := dev.Ioctl(ioctls.RegIf, s.reqBuf[:]); err != nil {
		s.abort(nil)
		return nil, api.Wrap(api.ErrCodeRegistration, "NIOCREGIF", err).WithContext("iface", name)
	}
	if err := s.req.Unmarshal(s.reqBuf[:]); err != nil {
		s.abort(nil)
		return nil, api.Wrap(api.ErrCodeRegistration, "NIOCREGIF", err).WithContext("iface", name)
	}
	if s.req.Version != APIVersion {
		s.abort(nil)
		return nil, api.NewError(api.ErrCodeRegistration, "kernel API version mismatch").
			WithContext("iface", name).
			WithContext("want", APIVersion).
			WithContext("got", s.req.Version)
	}
	if s.req.MemSize == 0 {
		s.abort(nil)
		return nil, api.NewError(api.ErrCodeRegistration, "kernel returned empty memory size").WithContext("iface", name)
	}

	mem, err := dev.Mmap(int(s.req.MemSize))
	if err != nil {
		s.abort(nil)
		return nil, api.Wrap(api.ErrCodeMapping, "netmap mmap", err).
			WithContext("iface", name).
			WithContext("size", s.req.MemSize)
	}
	if len(mem) != int(s.req.MemSize) {
		s.abort(mem)
		return nil, api.NewError(api.ErrCodeMapping, "mapping length differs from negotiated size").
			WithContext("mapped", len(mem)).
			WithContext("size", s.req.MemSize)
	}
	s.region = NewRegion(mem)

	iface, err := NewInterface(s.region, int64(s.req.Offset))
	if err != nil {
		s.abort(mem)
		return nil, api.Wrap(api.ErrCodeMapping, "netmap_if", err).WithContext("offset", s.req.Offset)
	}
	if iface.TxRings() != uint32(s.req.TxRings) || iface.RxRings() != uint32(s.req.RxRings) {
		s.abort(mem)
		return nil, api.NewError(api.ErrCodeMapping, "netmap_if ring counts disagree with registration").
			WithContext("if_tx", iface.TxRings()).
			WithContext("if_rx", iface.RxRings()).
			WithContext("req_tx", s.req.TxRings).
			WithContext("req_rx", s.req.RxRings)
	}
	s.iface = iface
	s.refs.Store(1)

	s.log.WithFields(logrus.Fields{
		"memsize":  s.req.MemSize,
		"tx_rings": s.req.TxRings,
		"rx_rings": s.req.RxRings,
		"tx_slots": s.req.TxSlots,
		"rx_slots": s.req.RxSlots,
	}).Debug("netmap session registered")
	return s, nil
}

// abort releases what Open acquired so far.
func (s *Session) abort(mem []byte) {
	if mem != nil {
		if err := s.dev.Munmap(mem); err != nil {
			s.log.WithError(err).Warn("munmap after failed open")
		}
	}
	if err := s.dev.Close(); err != nil {
		s.log.WithError(err).Warn("close after failed open")
	}
}

// ID is a unique identifier used in logs and metrics.
func (s *Session) ID() string { return s.id }

// Name is the registered interface name.
func (s *Session) Name() string { return s.name }

// Fd is the pollable descriptor.
func (s *Session) Fd() uintptr { return s.dev.Fd() }

// Request returns the negotiated registration record.
func (s *Session) Request() Request { return s.req }

// Region returns the mapped arena.
func (s *Session) Region() Region { return s.region }

// Logger returns the session's log entry.
func (s *Session) Logger() *logrus.Entry { return s.log }

// Closed reports whether the mapping has been released.
func (s *Session) Closed() bool { return s.refs.Load() <= 0 }

// Interface returns the netmap_if view.
func (s *Session) Interface() (*Interface, error) {
	if s.Closed() {
		return nil, api.ErrSessionClosed
	}
	return s.iface, nil
}

// Ring resolves a hardware ring view.
func (s *Session) Ring(id api.RingID) (*Ring, error) {
	if s.Closed() {
		return nil, api.ErrSessionClosed
	}
	return s.iface.Ring(id)
}

// Acquire takes an additional reference. It fails once the mapping is gone.
func (s *Session) Acquire() (*Session, error) {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return nil, api.ErrSessionClosed
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return s, nil
		}
	}
}

// Release drops a reference taken by Open or Acquire; the last one
// unmaps the region and closes the descriptor.
func (s *Session) Release() error {
	n := s.refs.Add(-1)
	switch {
	case n > 0:
		return nil
	case n < 0:
		s.refs.Store(0)
		return api.ErrSessionClosed
	}
	var errs []error
	if err := s.dev.Munmap(s.region.Bytes()); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}
	if err := s.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	s.log.Debug("netmap session released")
	return errors.Join(errs...)
}

// Close drops the reference returned by Open. Outstanding ring and packet
// handles keep the mapping alive until they are released.
func (s *Session) Close() error {
	if !s.ownerClosed.CompareAndSwap(false, true) {
		return nil
	}
	return s.Release()
}

func (s *Session) String() string {
	return fmt.Sprintf("session{%s %s refs=%d}", s.id, s.req, s.refs.Load())
}
