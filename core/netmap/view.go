// File: core/netmap/view.go
// Author: momentics <momentics@gmail.com>
//
// Typed views over netmap_if, netmap_ring and netmap_slot. Each view keeps
// a validated sub-slice of the region; field reads go through those slices
// and buffer lookups are checked against the region length.

package netmap

import (
	"fmt"
	"time"

	"github.com/josharian/native"

	"github.com/momentics/hioload-netmap/api"
)

// Interface is a read-only view of netmap_if.
type Interface struct {
	region Region
	base   int64
	hdr    []byte // header plus ring offset table
}

// NewInterface validates and returns the netmap_if view at base.
func NewInterface(region Region, base int64) (*Interface, error) {
	head, err := region.Slice(base, IfHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("netmap_if header: %w", err)
	}
	tx := native.Endian.Uint32(head[ifTxRings:])
	rx := native.Endian.Uint32(head[ifRxRings:])
	entries := int64(tx) + int64(rx) + 2*HostRingsPerDirection
	hdr, err := region.Slice(base, IfHeaderSize+entries*RingOffsetSize)
	if err != nil {
		return nil, fmt.Errorf("netmap_if ring table: %w", err)
	}
	return &Interface{region: region, base: base, hdr: hdr}, nil
}

// Name decodes ni_name.
func (i *Interface) Name() (string, error) {
	return DecodeName(i.hdr[ifName : ifName+IfNameSize])
}

func (i *Interface) Version() uint32  { return native.Endian.Uint32(i.hdr[ifVersion:]) }
func (i *Interface) Flags() uint32    { return native.Endian.Uint32(i.hdr[ifFlags:]) }
func (i *Interface) TxRings() uint32  { return native.Endian.Uint32(i.hdr[ifTxRings:]) }
func (i *Interface) RxRings() uint32  { return native.Endian.Uint32(i.hdr[ifRxRings:]) }
func (i *Interface) BufsHead() uint32 { return native.Endian.Uint32(i.hdr[ifBufsHead:]) }

// Entries is the length of the ring offset table.
func (i *Interface) Entries() int {
	return int(int64(i.TxRings()) + int64(i.RxRings()) + 2*HostRingsPerDirection)
}

// RingOffset returns ring_ofs[pos], relative to the interface header.
func (i *Interface) RingOffset(pos int) (int64, error) {
	if pos < 0 || pos >= i.Entries() {
		return 0, api.NewError(api.ErrCodeInvalidRingIndex, "ring table position").
			WithContext("pos", pos).
			WithContext("entries", i.Entries())
	}
	off := IfHeaderSize + pos*RingOffsetSize
	return int64(native.Endian.Uint64(i.hdr[off:])), nil
}

// TxRing returns hardware transmit ring idx.
func (i *Interface) TxRing(idx uint32) (*Ring, error) {
	if idx >= i.TxRings() {
		return nil, i.badRing(api.TX, idx, i.TxRings())
	}
	return i.ringAt(int(idx), api.TxRing(idx))
}

// RxRing returns hardware receive ring idx. Receive rings follow the
// transmit rings and the transmit host ring in the offset table.
func (i *Interface) RxRing(idx uint32) (*Ring, error) {
	if idx >= i.RxRings() {
		return nil, i.badRing(api.RX, idx, i.RxRings())
	}
	pos := int(i.TxRings()) + HostRingsPerDirection + int(idx)
	return i.ringAt(pos, api.RxRing(idx))
}

// Ring resolves id to its view.
func (i *Interface) Ring(id api.RingID) (*Ring, error) {
	switch id.Dir {
	case api.TX:
		return i.TxRing(id.Index)
	case api.RX:
		return i.RxRing(id.Index)
	default:
		return nil, i.badRing(id.Dir, id.Index, 0)
	}
}

func (i *Interface) badRing(dir api.Direction, idx, n uint32) error {
	name, _ := i.Name()
	return api.NewError(api.ErrCodeInvalidRingIndex, "ring index beyond negotiated count").
		WithContext("iface", name).
		WithContext("dir", dir.String()).
		WithContext("index", idx).
		WithContext("rings", n)
}

func (i *Interface) ringAt(pos int, id api.RingID) (*Ring, error) {
	rel, err := i.RingOffset(pos)
	if err != nil {
		return nil, err
	}
	return NewRing(i.region, i.base+rel, id)
}

func (i *Interface) String() string {
	name, err := i.Name()
	if err != nil {
		name = "?"
	}
	return fmt.Sprintf("netmap_if{name=%s version=%d flags=%#x tx_rings=%d rx_rings=%d bufs_head=%d}",
		name, i.Version(), i.Flags(), i.TxRings(), i.RxRings(), i.BufsHead())
}

// Ring is a view of one netmap_ring. Cursor access is not synchronised.
type Ring struct {
	id     api.RingID
	region Region
	base   int64
	hdr    []byte
	slots  []byte
	n      uint32
}

// NewRing validates the ring header and slot array at base.
func NewRing(region Region, base int64, id api.RingID) (*Ring, error) {
	hdr, err := region.Slice(base, RingHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("netmap_ring %s header: %w", id, err)
	}
	n := native.Endian.Uint32(hdr[ringNumSlots:])
	if n == 0 {
		return nil, api.NewError(api.ErrCodeOutOfBounds, "ring has no slots").WithContext("ring", id.String())
	}
	slots, err := region.Slice(base+RingHeaderSize, int64(n)*SlotSize)
	if err != nil {
		return nil, fmt.Errorf("netmap_ring %s slots: %w", id, err)
	}
	return &Ring{id: id, region: region, base: base, hdr: hdr, slots: slots, n: n}, nil
}

// ID returns the ring identity the view was resolved for.
func (r *Ring) ID() api.RingID { return r.id }

func (r *Ring) BufOffset() int64 { return int64(native.Endian.Uint64(r.hdr[ringBufOfs:])) }
func (r *Ring) NumSlots() uint32 { return r.n }
func (r *Ring) BufSize() uint32  { return native.Endian.Uint32(r.hdr[ringBufSize:]) }
func (r *Ring) RingID() uint16   { return native.Endian.Uint16(r.hdr[ringRingID:]) }
func (r *Ring) Flags() uint32    { return native.Endian.Uint32(r.hdr[ringFlags:]) }

// Direction is the kernel's dir field: 0 for tx, 1 for rx.
func (r *Ring) Direction() api.Direction {
	return api.Direction(native.Endian.Uint16(r.hdr[ringDir:]))
}

func (r *Ring) Head() uint32 { return native.Endian.Uint32(r.hdr[ringHead:]) }
func (r *Ring) Cur() uint32  { return native.Endian.Uint32(r.hdr[ringCur:]) }
func (r *Ring) Tail() uint32 { return native.Endian.Uint32(r.hdr[ringTail:]) }

// SetHead stores head; v must be below NumSlots.
func (r *Ring) SetHead(v uint32) { native.Endian.PutUint32(r.hdr[ringHead:], r.wrap(v)) }

// SetCur stores cur; v must be below NumSlots.
func (r *Ring) SetCur(v uint32) { native.Endian.PutUint32(r.hdr[ringCur:], r.wrap(v)) }

// SetTail stores tail. Only the kernel (or a simulation of it) moves tail.
func (r *Ring) SetTail(v uint32) { native.Endian.PutUint32(r.hdr[ringTail:], r.wrap(v)) }

func (r *Ring) wrap(v uint32) uint32 {
	if v >= r.n {
		panic(fmt.Sprintf("netmap: cursor %d out of range for %d slots", v, r.n))
	}
	return v
}

// Timestamp is the time of the last sync as filled by the kernel.
func (r *Ring) Timestamp() time.Time {
	sec := int64(native.Endian.Uint64(r.hdr[ringTsSec:]))
	usec := int64(native.Endian.Uint64(r.hdr[ringTsUsec:]))
	return time.Unix(sec, usec*int64(time.Microsecond))
}

// Distance returns the circular distance from a to b.
func (r *Ring) Distance(a, b uint32) uint32 {
	if b >= a {
		return b - a
	}
	return r.n - a + b
}

// HasNext reports whether a slot is available at cur.
func (r *Ring) HasNext() bool { return r.Cur() != r.Tail() }

// Available is the number of slots between cur and tail.
func (r *Ring) Available() uint32 { return r.Distance(r.Cur(), r.Tail()) }

// Next claims the slot at cur and advances cur by one.
func (r *Ring) Next() (uint32, bool) {
	cur := r.Cur()
	if cur == r.Tail() {
		return 0, false
	}
	next := cur + 1
	if next == r.n {
		next = 0
	}
	r.SetCur(next)
	return cur, true
}

// Reclaim releases every claimed slot to the kernel by moving head to cur.
func (r *Ring) Reclaim() {
	if cur := r.Cur(); r.Head() != cur {
		r.SetHead(cur)
	}
}

// Check verifies head <= cur <= tail in ring order.
func (r *Ring) Check() error {
	h, c, t := r.Head(), r.Cur(), r.Tail()
	if h >= r.n || c >= r.n || t >= r.n || r.Distance(h, c) > r.Distance(h, t) {
		return api.NewError(api.ErrCodeInternal, "ring cursor invariant violated").
			WithContext("ring", r.id.String()).
			WithContext("head", h).
			WithContext("cur", c).
			WithContext("tail", t).
			WithContext("slots", r.n)
	}
	return nil
}

// Slot returns the view of slot idx.
func (r *Ring) Slot(idx uint32) (Slot, error) {
	if idx >= r.n {
		return Slot{}, api.NewError(api.ErrCodeOutOfBounds, "slot index").
			WithContext("ring", r.id.String()).
			WithContext("index", idx).
			WithContext("slots", r.n)
	}
	off := int(idx) * SlotSize
	return Slot{b: r.slots[off : off+SlotSize : off+SlotSize]}, nil
}

// Buffer returns packet buffer bufIdx: BufSize bytes at
// ring + buf_ofs + bufIdx*BufSize.
func (r *Ring) Buffer(bufIdx uint32) ([]byte, error) {
	size := int64(r.BufSize())
	b, err := r.region.Slice(r.base+r.BufOffset()+int64(bufIdx)*size, size)
	if err != nil {
		return nil, fmt.Errorf("ring %s buffer %d: %w", r.id, bufIdx, err)
	}
	return b, nil
}

// SlotBuffer returns the buffer referenced by slot idx.
func (r *Ring) SlotBuffer(idx uint32) ([]byte, error) {
	s, err := r.Slot(idx)
	if err != nil {
		return nil, err
	}
	return r.Buffer(s.BufIndex())
}

func (r *Ring) String() string {
	return fmt.Sprintf("netmap_ring{%s slots=%d buf_size=%d buf_ofs=%d head=%d cur=%d tail=%d flags=%#x}",
		r.id, r.n, r.BufSize(), r.BufOffset(), r.Head(), r.Cur(), r.Tail(), r.Flags())
}

// Slot is a view of one netmap_slot.
type Slot struct {
	b []byte
}

func (s Slot) BufIndex() uint32 { return native.Endian.Uint32(s.b[slotBufIdx:]) }
func (s Slot) Len() uint16      { return native.Endian.Uint16(s.b[slotLen:]) }
func (s Slot) Flags() uint16    { return native.Endian.Uint16(s.b[slotFlags:]) }
func (s Slot) Ptr() uint64      { return native.Endian.Uint64(s.b[slotPtr:]) }

func (s Slot) SetLen(n uint16)        { native.Endian.PutUint16(s.b[slotLen:], n) }
func (s Slot) SetFlags(f uint16)      { native.Endian.PutUint16(s.b[slotFlags:], f) }
func (s Slot) SetBufIndex(idx uint32) { native.Endian.PutUint32(s.b[slotBufIdx:], idx) }
