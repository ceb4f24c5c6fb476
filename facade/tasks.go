// File: facade/tasks.go
// Author: momentics <momentics@gmail.com>
//
// Reactor tasks built on ring streams: a reflector copying receive slots
// into transmit slots, and a capture loop handing packets to a callback.

package facade

import (
	"github.com/momentics/hioload-netmap/reactor"
	"github.com/momentics/hioload-netmap/stream"
)

// DefaultBatch bounds the packets a task handles per poll before yielding.
const DefaultBatch = 64

// Transform rewrites a received frame into out and returns the length to
// send.
type Transform func(in, out []byte) int

// Copy sends the received frame unchanged.
func Copy(in, out []byte) int { return copy(out, in) }

// Reflector forwards every packet from an RX stream to a TX stream.
type Reflector struct {
	rx, tx    *stream.RingStream
	fn        Transform
	batch     int
	pending   *stream.Packet
	forwarded uint64
}

// NewReflector creates the task; fn nil means Copy.
func NewReflector(rx, tx *stream.RingStream, fn Transform) *Reflector {
	if fn == nil {
		fn = Copy
	}
	return &Reflector{rx: rx, tx: tx, fn: fn, batch: DefaultBatch}
}

// Forwarded is the number of frames queued for transmission.
func (r *Reflector) Forwarded() uint64 { return r.forwarded }

// Poll implements reactor.Task. It only finishes on a stream error.
func (r *Reflector) Poll(w *reactor.Waker) (bool, error) {
	moved, yield, err := r.forward(w)
	if err != nil {
		return true, err
	}
	if moved > 0 {
		if err := r.tx.Flush(); err != nil {
			return true, err
		}
	}
	if yield {
		w.Wake()
	}
	return false, nil
}

func (r *Reflector) forward(w *reactor.Waker) (moved int, yield bool, err error) {
	for ; moved < r.batch; moved++ {
		if r.pending == nil {
			p, ok, err := r.rx.PollNext(w)
			if err != nil || !ok {
				return moved, false, err
			}
			r.pending = p
		}
		out, ok, err := r.tx.PollNext(w)
		if err != nil {
			r.pending.Release()
			r.pending = nil
			return moved, false, err
		}
		if !ok {
			return moved, false, nil
		}
		if err := out.SetLen(r.fn(r.pending.Bytes(), out.Buffer())); err != nil {
			// The slot still holds its previous length; it must not be sent.
			out.Discard()
			r.pending.Release()
			r.pending = nil
			return moved, false, err
		}
		out.Release()
		r.pending.Release()
		r.pending = nil
		r.forwarded++
	}
	return moved, true, nil
}

// Handler consumes a captured packet. The packet is released after it
// returns; a non-nil error stops the capture.
type Handler func(p *stream.Packet) error

// Capture hands every received packet to a handler.
type Capture struct {
	rx    *stream.RingStream
	fn    Handler
	limit uint64
	seen  uint64
	batch int
}

// NewCapture creates the task; limit 0 means unbounded.
func NewCapture(rx *stream.RingStream, limit uint64, fn Handler) *Capture {
	return &Capture{rx: rx, fn: fn, limit: limit, batch: DefaultBatch}
}

// Seen is the number of packets handled.
func (c *Capture) Seen() uint64 { return c.seen }

// Poll implements reactor.Task.
func (c *Capture) Poll(w *reactor.Waker) (bool, error) {
	for i := 0; i < c.batch; i++ {
		if c.limit > 0 && c.seen >= c.limit {
			return true, nil
		}
		p, ok, err := c.rx.PollNext(w)
		if err != nil {
			return true, err
		}
		if !ok {
			return false, nil
		}
		c.seen++
		herr := c.fn(p)
		if err := p.Release(); err != nil {
			return true, err
		}
		if herr != nil {
			return true, herr
		}
	}
	w.Wake()
	return false, nil
}
