// File: core/netmap/request.go
// Author: momentics <momentics@gmail.com>
//
// Registration record (struct nmreq) and its native-endian codec.

package netmap

import (
	"fmt"

	"github.com/josharian/native"
)

// Request mirrors struct nmreq. Field order and widths match the kernel
// header; the wire form is produced by Marshal, never by casting.
type Request struct {
	Name    [IfNameSize]byte
	Version uint32 // API version
	Offset  uint32 // netmap_if offset in the shared region
	MemSize uint32 // size of the shared region
	TxSlots uint32 // slots per tx ring
	RxSlots uint32 // slots per rx ring
	TxRings uint16 // hardware tx rings
	RxRings uint16 // hardware rx rings
	RingID  uint16 // ring selection
	Cmd     uint16
	Arg1    uint16
	Arg2    uint16
	Arg3    uint32
	Flags   uint32
	Spare   uint32
}

// NewRequest returns a registration record for name selecting hardware rings.
func NewRequest(name string) (Request, error) {
	n, err := EncodeName(name)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Name:    n,
		Version: APIVersion,
		RingID:  HWRing,
	}, nil
}

// Marshal encodes r into its kernel wire form.
func (r *Request) Marshal() [RequestSize]byte {
	var b [RequestSize]byte
	e := native.Endian
	copy(b[reqName:reqName+IfNameSize], r.Name[:])
	e.PutUint32(b[reqVersion:], r.Version)
	e.PutUint32(b[reqOffset:], r.Offset)
	e.PutUint32(b[reqMemSize:], r.MemSize)
	e.PutUint32(b[reqTxSlots:], r.TxSlots)
	e.PutUint32(b[reqRxSlots:], r.RxSlots)
	e.PutUint16(b[reqTxRings:], r.TxRings)
	e.PutUint16(b[reqRxRings:], r.RxRings)
	e.PutUint16(b[reqRingID:], r.RingID)
	e.PutUint16(b[reqCmd:], r.Cmd)
	e.PutUint16(b[reqArg1:], r.Arg1)
	e.PutUint16(b[reqArg2:], r.Arg2)
	e.PutUint32(b[reqArg3:], r.Arg3)
	e.PutUint32(b[reqFlags:], r.Flags)
	e.PutUint32(b[reqSpare:], r.Spare)
	return b
}

// Unmarshal decodes the kernel wire form into r.
func (r *Request) Unmarshal(b []byte) error {
	if len(b) < RequestSize {
		return fmt.Errorf("nmreq: short buffer %d < %d", len(b), RequestSize)
	}
	e := native.Endian
	copy(r.Name[:], b[reqName:reqName+IfNameSize])
	r.Version = e.Uint32(b[reqVersion:])
	r.Offset = e.Uint32(b[reqOffset:])
	r.MemSize = e.Uint32(b[reqMemSize:])
	r.TxSlots = e.Uint32(b[reqTxSlots:])
	r.RxSlots = e.Uint32(b[reqRxSlots:])
	r.TxRings = e.Uint16(b[reqTxRings:])
	r.RxRings = e.Uint16(b[reqRxRings:])
	r.RingID = e.Uint16(b[reqRingID:])
	r.Cmd = e.Uint16(b[reqCmd:])
	r.Arg1 = e.Uint16(b[reqArg1:])
	r.Arg2 = e.Uint16(b[reqArg2:])
	r.Arg3 = e.Uint32(b[reqArg3:])
	r.Flags = e.Uint32(b[reqFlags:])
	r.Spare = e.Uint32(b[reqSpare:])
	return nil
}

// InterfaceName decodes the name field.
func (r *Request) InterfaceName() (string, error) {
	return DecodeName(r.Name[:])
}

func (r Request) String() string {
	name, err := r.InterfaceName()
	if err != nil {
		name = fmt.Sprintf("%q", r.Name[:])
	}
	return fmt.Sprintf("nmreq{name=%s version=%d offset=%d memsize=%d tx=%dx%d rx=%dx%d ringid=%#x flags=%#x}",
		name, r.Version, r.Offset, r.MemSize, r.TxRings, r.TxSlots, r.RxRings, r.RxSlots, r.RingID, r.Flags)
}
