//go:build linux || freebsd

// File: core/netmap/device_unix.go
// Author: momentics <momentics@gmail.com>
//
// Kernel-backed Device using open(2), ioctl(2) and mmap(2).

package netmap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type unixDevice struct {
	fd int
}

// OpenDevice opens a netmap device node.
func OpenDevice(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &unixDevice{fd: fd}, nil
}

func (d *unixDevice) Fd() uintptr { return uintptr(d.fd) }

func (d *unixDevice) Ioctl(code uint, arg []byte) error {
	var p unsafe.Pointer
	if len(arg) > 0 {
		p = unsafe.Pointer(&arg[0])
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(code), uintptr(p))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *unixDevice) Mmap(length int) ([]byte, error) {
	return unix.Mmap(d.fd, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (d *unixDevice) Munmap(b []byte) error {
	return unix.Munmap(b)
}

func (d *unixDevice) Close() error {
	return unix.Close(d.fd)
}
