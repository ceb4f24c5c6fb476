//go:build linux

package fake

import (
	"github.com/josharian/native"
	"golang.org/x/sys/unix"
)

// eventFD gives simulated devices a real pollable descriptor.
type eventFD struct {
	efd int
}

func newEventFD() (*eventFD, error) {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &eventFD{efd: efd}, nil
}

func (e *eventFD) fd() uintptr { return uintptr(e.efd) }

func (e *eventFD) signal() {
	var b [8]byte
	native.Endian.PutUint64(b[:], 1)
	_, _ = unix.Write(e.efd, b[:])
}

func (e *eventFD) drain() {
	var b [8]byte
	_, _ = unix.Read(e.efd, b[:])
}

func (e *eventFD) close() error { return unix.Close(e.efd) }
