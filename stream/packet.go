// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package stream

import (
	"errors"
	"fmt"
	"math"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/core/netmap"
)

// Packet borrows one claimed slot and its buffer. The byte slices it hands
// out are valid until Release.
type Packet struct {
	sess *netmap.Session
	ring *netmap.Ring
	obs  Observer
	idx  uint32
	slot netmap.Slot
	buf  []byte

	released bool
}

func newPacket(sess *netmap.Session, r *netmap.Ring, idx uint32, obs Observer) (*Packet, error) {
	slot, err := r.Slot(idx)
	if err != nil {
		return nil, err
	}
	buf, err := r.Buffer(slot.BufIndex())
	if err != nil {
		return nil, err
	}
	return &Packet{sess: sess, ring: r, obs: obs, idx: idx, slot: slot, buf: buf}, nil
}

// Ring is the ring the packet was drawn from.
func (p *Packet) Ring() api.RingID { return p.ring.ID() }

// Index is the slot position in the ring.
func (p *Packet) Index() uint32 { return p.idx }

// Slot is the underlying slot record.
func (p *Packet) Slot() netmap.Slot { return p.slot }

// Len is the slot's length field.
func (p *Packet) Len() int { return int(p.slot.Len()) }

// Bytes is the packet payload: the first Len bytes of a received buffer,
// or the whole buffer of a transmit slot. Nil after Release.
func (p *Packet) Bytes() []byte {
	if p.released {
		return nil
	}
	if p.ring.ID().Dir == api.TX {
		return p.buf
	}
	n := p.Len()
	if n > len(p.buf) {
		n = len(p.buf)
	}
	return p.buf[:n]
}

// Buffer is the whole writable buffer, BufSize bytes. Nil after Release.
func (p *Packet) Buffer() []byte {
	if p.released {
		return nil
	}
	return p.buf
}

// SetLen sets the slot length; for transmit it is the frame size sent.
func (p *Packet) SetLen(n int) error {
	if p.released {
		return api.ErrStreamClosed
	}
	if n < 0 || n > len(p.buf) || n > math.MaxUint16 {
		return api.NewError(api.ErrCodeInvalidArgument, "packet length exceeds buffer").
			WithContext("len", n).
			WithContext("buf_size", len(p.buf))
	}
	p.slot.SetLen(uint16(n))
	return nil
}

// SetFlags sets the slot flags.
func (p *Packet) SetFlags(f uint16) {
	if !p.released {
		p.slot.SetFlags(f)
	}
}

// Release returns every slot claimed so far on this packet's ring to the
// kernel and drops the session reference. Repeated calls are no-ops.
func (p *Packet) Release() error {
	if p.released {
		return nil
	}
	p.released = true
	p.buf = nil
	p.ring.Reclaim()
	p.obs.Reclaimed(p.sess.Name(), p.ring.ID())
	return p.sess.Release()
}

// Discard gives the slot back unclaimed so the kernel never sees it. Only
// the newest claim on a ring that has not been reclaimed can be discarded;
// otherwise an error is returned. The session reference is dropped either way.
func (p *Packet) Discard() error {
	if p.released {
		return nil
	}
	p.released = true
	p.buf = nil
	r := p.ring
	var err error
	if r.Cur() == (p.idx+1)%r.NumSlots() && r.Distance(r.Head(), p.idx) < r.Distance(r.Head(), r.Cur()) {
		r.SetCur(p.idx)
	} else {
		err = api.NewError(api.ErrCodeInvalidArgument, "slot is not the newest claim").
			WithContext("ring", r.ID().String()).
			WithContext("slot", p.idx).
			WithContext("cur", r.Cur())
	}
	return errors.Join(err, p.sess.Release())
}

func (p *Packet) String() string {
	return fmt.Sprintf("packet{%s slot=%d buf=%d len=%d}", p.ring.ID(), p.idx, p.slot.BufIndex(), p.slot.Len())
}
