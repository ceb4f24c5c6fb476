// File: core/netmap/region.go
// Author: momentics <momentics@gmail.com>
//
// Region is the mapped shared memory arena. All typed views are carved out
// of it with Slice, so every access is validated against its length once.

package netmap

import (
	"github.com/josharian/native"

	"github.com/momentics/hioload-netmap/api"
)

// Region is one contiguous byte range shared with the kernel.
type Region struct {
	b []byte
}

// NewRegion wraps b without copying.
func NewRegion(b []byte) Region { return Region{b: b} }

// Len returns the region size in bytes.
func (r Region) Len() int64 { return int64(len(r.b)) }

// Bytes returns the whole arena.
func (r Region) Bytes() []byte { return r.b }

// Slice returns region[off:off+n] or ErrOutOfBounds.
func (r Region) Slice(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off > int64(len(r.b)) || n > int64(len(r.b))-off {
		return nil, api.NewError(api.ErrCodeOutOfBounds, "region access out of bounds").
			WithContext("offset", off).
			WithContext("length", n).
			WithContext("region", len(r.b))
	}
	return r.b[off : off+n : off+n], nil
}

// Uint32At reads a native-endian uint32 at off.
func (r Region) Uint32At(off int64) (uint32, error) {
	b, err := r.Slice(off, 4)
	if err != nil {
		return 0, err
	}
	return native.Endian.Uint32(b), nil
}

// PutUint32At writes a native-endian uint32 at off.
func (r Region) PutUint32At(off int64, v uint32) error {
	b, err := r.Slice(off, 4)
	if err != nil {
		return err
	}
	native.Endian.PutUint32(b, v)
	return nil
}

// PutUint16At writes a native-endian uint16 at off.
func (r Region) PutUint16At(off int64, v uint16) error {
	b, err := r.Slice(off, 2)
	if err != nil {
		return err
	}
	native.Endian.PutUint16(b, v)
	return nil
}

// Int64At reads a native-endian int64 at off.
func (r Region) Int64At(off int64) (int64, error) {
	b, err := r.Slice(off, 8)
	if err != nil {
		return 0, err
	}
	return int64(native.Endian.Uint64(b)), nil
}

// PutInt64At writes a native-endian int64 at off.
func (r Region) PutInt64At(off int64, v int64) error {
	b, err := r.Slice(off, 8)
	if err != nil {
		return err
	}
	native.Endian.PutUint64(b, uint64(v))
	return nil
}
