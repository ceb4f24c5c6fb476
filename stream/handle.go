// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package stream

import (
	"fmt"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/core/netmap"
)

// RingHandle names one hardware ring of a session and keeps the session
// mapped while it is open. Clones share the ring; any of them may be used,
// but only from one goroutine at a time.
type RingHandle struct {
	sess   *netmap.Session
	ring   *netmap.Ring
	closed bool
}

// OpenRing resolves id on s and takes a session reference. An index beyond
// the negotiated ring count fails with api.ErrInvalidRingIndex.
func OpenRing(s *netmap.Session, id api.RingID) (*RingHandle, error) {
	r, err := s.Ring(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.Acquire(); err != nil {
		return nil, err
	}
	return &RingHandle{sess: s, ring: r}, nil
}

// Clone returns another handle to the same ring with its own reference.
func (h *RingHandle) Clone() (*RingHandle, error) {
	if h.closed {
		return nil, api.ErrSessionClosed
	}
	if _, err := h.sess.Acquire(); err != nil {
		return nil, err
	}
	return &RingHandle{sess: h.sess, ring: h.ring}, nil
}

// ID is the ring's direction and index.
func (h *RingHandle) ID() api.RingID { return h.ring.ID() }

// Ring is the shared ring view.
func (h *RingHandle) Ring() *netmap.Ring { return h.ring }

// Session is the owning session.
func (h *RingHandle) Session() *netmap.Session { return h.sess }

// Close drops the handle's session reference. Repeated calls are no-ops.
func (h *RingHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.sess.Release()
}

func (h *RingHandle) String() string {
	return fmt.Sprintf("ring{%s %s}", h.sess.Name(), h.ring.ID())
}
