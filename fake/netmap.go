// Package fake
// Author: momentics <momentics@gmail.com>
//
// Simulated netmap kernel for tests: an in-memory shared region laid out
// like the kernel's, plus NIOCREGIF/NIOCTXSYNC/NIOCRXSYNC handling.

package fake

import (
	"errors"
	"fmt"
	"sync"

	"github.com/josharian/native"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/core/netmap"
)

// Kernel layout as in net/netmap.h, kept independent of core/netmap so the
// views there are checked against a second encoding.
const (
	nifTxRings  = 24
	nifRxRings  = 28
	nifVersion  = 16
	nifRingOfs  = 56
	nrBufOfs    = 0
	nrNumSlots  = 8
	nrBufSize   = 12
	nrRingID    = 16
	nrDir       = 18
	nrHead      = 20
	nrCur       = 24
	nrTail      = 28
	nrSlots     = 256
	nsSize      = 16
	nsBufIdx    = 0
	nsLen       = 4
	nsFlags     = 6
	firstBufIdx = 2 // buffers 0 and 1 are reserved by the kernel
)

// Simulated kernel errors.
var (
	ErrNoSuchInterface = errors.New("fake netmap: no such interface")
	ErrBadRingSelect   = errors.New("fake netmap: unsupported ring selection")
	ErrBadIoctl        = errors.New("fake netmap: unknown ioctl")
	ErrClosed          = errors.New("fake netmap: device closed")
)

// NetmapConfig shapes the simulated interface.
type NetmapConfig struct {
	Name    string
	TxRings int
	RxRings int
	Slots   uint32
	BufSize uint32
	// Version reported back by NIOCREGIF; zero means netmap.APIVersion.
	Version uint32

	// DiscardSent drops transmitted frames instead of recording them.
	DiscardSent bool

	OpenErr     error
	RegisterErr error
	MmapErr     error
}

// Frame is one slot handed to the simulated NIC by a transmit sync.
type Frame struct {
	Ring   uint32
	Slot   uint32
	BufIdx uint32
	Len    uint16
	Flags  uint16
	Data   []byte
}

// NetmapDevice implements netmap.Device over process memory.
type NetmapDevice struct {
	cfg NetmapConfig

	mu        sync.Mutex
	mem       []byte
	ifOffset  int64
	ringBase  []int64 // ring-table order: tx hw, tx host, rx hw, rx host
	slotsBase int64
	pending   map[int][][]byte
	sent      []Frame
	txNext    map[int]uint32
	syncs     map[api.Direction]int
	syncErr   map[api.Direction]error
	ev        *eventFD

	registered bool
	mapped     bool
	closed     bool
}

// NewNetmapDevice lays out the shared region for cfg.
func NewNetmapDevice(cfg NetmapConfig) (*NetmapDevice, error) {
	if cfg.TxRings <= 0 || cfg.RxRings <= 0 || cfg.Slots < 2 || cfg.BufSize == 0 {
		return nil, fmt.Errorf("fake netmap: bad config %+v", cfg)
	}
	if cfg.Version == 0 {
		cfg.Version = netmap.APIVersion
	}
	ev, err := newEventFD()
	if err != nil {
		return nil, err
	}
	d := &NetmapDevice{
		cfg:     cfg,
		pending: make(map[int][][]byte),
		txNext:  make(map[int]uint32),
		syncs:   make(map[api.Direction]int),
		syncErr: make(map[api.Direction]error),
		ev:      ev,
	}
	d.layout()
	return d, nil
}

func align(v, a int64) int64 { return (v + a - 1) / a * a }

func (d *NetmapDevice) layout() {
	e := native.Endian
	total := d.cfg.TxRings + d.cfg.RxRings + 2
	ringSize := align(nrSlots+int64(d.cfg.Slots)*nsSize, 64)

	d.ifOffset = 0
	ifSize := int64(nifRingOfs + total*8)
	off := align(ifSize, 256)
	d.ringBase = make([]int64, total)
	for i := range d.ringBase {
		d.ringBase[i] = off
		off += ringSize
	}
	d.slotsBase = align(off, 4096)
	nbufs := int64(total)*int64(d.cfg.Slots) + firstBufIdx
	size := d.slotsBase + nbufs*int64(d.cfg.BufSize)
	d.mem = make([]byte, size)

	hdr := d.mem[d.ifOffset:]
	copy(hdr[:netmap.IfNameSize], d.cfg.Name)
	e.PutUint32(hdr[nifVersion:], d.cfg.Version)
	e.PutUint32(hdr[nifTxRings:], uint32(d.cfg.TxRings))
	e.PutUint32(hdr[nifRxRings:], uint32(d.cfg.RxRings))

	for pos, base := range d.ringBase {
		e.PutUint64(hdr[nifRingOfs+pos*8:], uint64(base-d.ifOffset))
		r := d.mem[base:]
		dir := api.TX
		if pos > d.cfg.TxRings {
			dir = api.RX
		}
		e.PutUint64(r[nrBufOfs:], uint64(d.slotsBase-base))
		e.PutUint32(r[nrNumSlots:], d.cfg.Slots)
		e.PutUint32(r[nrBufSize:], d.cfg.BufSize)
		e.PutUint16(r[nrRingID:], uint16(pos))
		e.PutUint16(r[nrDir:], uint16(dir))
		if dir == api.TX {
			e.PutUint32(r[nrTail:], d.cfg.Slots-1)
		}
		for i := uint32(0); i < d.cfg.Slots; i++ {
			s := r[nrSlots+int64(i)*nsSize:]
			e.PutUint32(s[nsBufIdx:], firstBufIdx+uint32(pos)*d.cfg.Slots+i)
		}
	}
}

// Opener returns a netmap.Opener handing out this device.
func (d *NetmapDevice) Opener() netmap.Opener {
	return func(string) (netmap.Device, error) {
		if d.cfg.OpenErr != nil {
			return nil, d.cfg.OpenErr
		}
		return d, nil
	}
}

// Fd is an eventfd that becomes readable when packets are injected.
func (d *NetmapDevice) Fd() uintptr { return d.ev.fd() }

func (d *NetmapDevice) Ioctl(code uint, arg []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	codes, _ := netmap.Ioctls()
	switch code {
	case codes.RegIf:
		return d.register(arg)
	case codes.TxSync:
		d.syncs[api.TX]++
		if err := d.syncErr[api.TX]; err != nil {
			return err
		}
		d.txsync()
		return nil
	case codes.RxSync:
		d.syncs[api.RX]++
		if err := d.syncErr[api.RX]; err != nil {
			return err
		}
		d.rxsync()
		return nil
	}
	return ErrBadIoctl
}

func (d *NetmapDevice) register(arg []byte) error {
	if d.cfg.RegisterErr != nil {
		return d.cfg.RegisterErr
	}
	var req netmap.Request
	if err := req.Unmarshal(arg); err != nil {
		return err
	}
	name, err := req.InterfaceName()
	if err != nil || name != d.cfg.Name {
		return ErrNoSuchInterface
	}
	if req.RingID != netmap.HWRing {
		return ErrBadRingSelect
	}
	req.Version = d.cfg.Version
	req.Offset = uint32(d.ifOffset)
	req.MemSize = uint32(len(d.mem))
	req.TxSlots = d.cfg.Slots
	req.RxSlots = d.cfg.Slots
	req.TxRings = uint16(d.cfg.TxRings)
	req.RxRings = uint16(d.cfg.RxRings)
	b := req.Marshal()
	copy(arg, b[:])
	d.registered = true
	return nil
}

func (d *NetmapDevice) ring(pos int) []byte { return d.mem[d.ringBase[pos]:] }

func (d *NetmapDevice) cursor(r []byte, off int) uint32 { return native.Endian.Uint32(r[off:]) }

func (d *NetmapDevice) buffer(idx uint32) []byte {
	off := d.slotsBase + int64(idx)*int64(d.cfg.BufSize)
	return d.mem[off : off+int64(d.cfg.BufSize)]
}

func (d *NetmapDevice) next(i uint32) uint32 { return (i + 1) % d.cfg.Slots }

// txsync sends every slot the user released (up to head) and frees them.
func (d *NetmapDevice) txsync() {
	e := native.Endian
	for i := 0; i < d.cfg.TxRings; i++ {
		r := d.ring(i)
		head := d.cursor(r, nrHead)
		for k := d.txNext[i]; k != head && !d.cfg.DiscardSent; k = d.next(k) {
			s := r[nrSlots+int64(k)*nsSize:]
			f := Frame{
				Ring:   uint32(i),
				Slot:   k,
				BufIdx: e.Uint32(s[nsBufIdx:]),
				Len:    e.Uint16(s[nsLen:]),
				Flags:  e.Uint16(s[nsFlags:]),
			}
			buf := d.buffer(f.BufIdx)
			n := int(f.Len)
			if n > len(buf) {
				n = len(buf)
			}
			f.Data = append([]byte(nil), buf[:n]...)
			d.sent = append(d.sent, f)
		}
		d.txNext[i] = head
		tail := head + d.cfg.Slots - 1
		e.PutUint32(r[nrTail:], tail%d.cfg.Slots)
	}
}

// rxsync fills injected packets into free slots, never reaching head.
func (d *NetmapDevice) rxsync() {
	e := native.Endian
	for i := 0; i < d.cfg.RxRings; i++ {
		pos := d.cfg.TxRings + 1 + i
		r := d.ring(pos)
		head := d.cursor(r, nrHead)
		tail := d.cursor(r, nrTail)
		q := d.pending[i]
		for len(q) > 0 && d.next(tail) != head {
			s := r[nrSlots+int64(tail)*nsSize:]
			buf := d.buffer(e.Uint32(s[nsBufIdx:]))
			n := copy(buf, q[0])
			e.PutUint16(s[nsLen:], uint16(n))
			e.PutUint16(s[nsFlags:], 0)
			q = q[1:]
			tail = d.next(tail)
		}
		d.pending[i] = q
		e.PutUint32(r[nrTail:], tail)
	}
	if d.pendingLocked() == 0 {
		d.ev.drain()
	}
}

func (d *NetmapDevice) pendingLocked() int {
	n := 0
	for _, q := range d.pending {
		n += len(q)
	}
	return n
}

func (d *NetmapDevice) Mmap(length int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.MmapErr != nil {
		return nil, d.cfg.MmapErr
	}
	if !d.registered {
		return nil, ErrNoSuchInterface
	}
	d.mapped = true
	return d.mem[:length:length], nil
}

func (d *NetmapDevice) Munmap(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mapped = false
	return nil
}

func (d *NetmapDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return d.ev.close()
}

// Inject queues a packet for receive ring; it lands on the next rxsync.
func (d *NetmapDevice) Inject(ring int, data []byte) {
	d.mu.Lock()
	d.pending[ring] = append(d.pending[ring], append([]byte(nil), data...))
	d.mu.Unlock()
	d.ev.signal()
}

// Sent returns every frame transmitted so far.
func (d *NetmapDevice) Sent() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Frame(nil), d.sent...)
}

// Syncs returns how many syncs of dir were issued.
func (d *NetmapDevice) Syncs(dir api.Direction) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syncs[dir]
}

// FailSync makes syncs of dir return err; nil restores success.
func (d *NetmapDevice) FailSync(dir api.Direction, err error) {
	d.mu.Lock()
	d.syncErr[dir] = err
	d.mu.Unlock()
}

// Memory exposes the simulated shared region.
func (d *NetmapDevice) Memory() []byte { return d.mem }

// Mapped reports whether the region is currently mapped.
func (d *NetmapDevice) Mapped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapped
}

// Closed reports whether the descriptor was closed.
func (d *NetmapDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ForceTail overwrites a ring's tail as a kernel would.
func (d *NetmapDevice) ForceTail(id api.RingID, tail uint32) {
	pos := int(id.Index)
	if id.Dir == api.RX {
		pos = d.cfg.TxRings + 1 + int(id.Index)
	}
	d.mu.Lock()
	native.Endian.PutUint32(d.ring(pos)[nrTail:], tail)
	d.mu.Unlock()
}
