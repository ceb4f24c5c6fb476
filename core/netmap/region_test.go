package netmap

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-netmap/api"
)

func TestRegionSliceBounds(t *testing.T) {
	r := NewRegion(make([]byte, 64))
	cases := []struct {
		off, n int64
		ok     bool
	}{
		{0, 64, true},
		{60, 4, true},
		{64, 0, true},
		{61, 4, false},
		{-1, 4, false},
		{0, -1, false},
		{65, 0, false},
		{1, 1<<63 - 1, false},
	}
	for _, c := range cases {
		b, err := r.Slice(c.off, c.n)
		if c.ok {
			if err != nil || int64(len(b)) != c.n {
				t.Errorf("Slice(%d,%d) = %d bytes, %v", c.off, c.n, len(b), err)
			}
			continue
		}
		if !errors.Is(err, api.ErrOutOfBounds) {
			t.Errorf("Slice(%d,%d) err = %v, want ErrOutOfBounds", c.off, c.n, err)
		}
	}
}

func TestRegionSliceCapped(t *testing.T) {
	r := NewRegion(make([]byte, 32))
	b, err := r.Slice(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if cap(b) != 8 {
		t.Errorf("cap = %d, want 8", cap(b))
	}
}

func TestRegionWordAccess(t *testing.T) {
	r := NewRegion(make([]byte, 16))
	if err := r.PutUint32At(4, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if v, err := r.Uint32At(4); err != nil || v != 0xdeadbeef {
		t.Errorf("Uint32At = %#x, %v", v, err)
	}
	if err := r.PutInt64At(8, -4096); err != nil {
		t.Fatal(err)
	}
	if v, err := r.Int64At(8); err != nil || v != -4096 {
		t.Errorf("Int64At = %d, %v", v, err)
	}
	if err := r.PutUint16At(15, 1); err == nil {
		t.Error("PutUint16At past end accepted")
	}
	if _, err := r.Int64At(9); err == nil {
		t.Error("Int64At past end accepted")
	}
}
