package netmap

// Device is an open netmap control descriptor.
type Device interface {
	// Fd is the pollable descriptor handed to the reactor.
	Fd() uintptr
	// Ioctl issues request code with arg as the in/out argument block.
	Ioctl(code uint, arg []byte) error
	// Mmap maps length bytes of shared memory read-write, shared.
	Mmap(length int) ([]byte, error)
	// Munmap releases a mapping returned by Mmap.
	Munmap(b []byte) error
	Close() error
}

// Opener opens the device node at path for reading and writing.
type Opener func(path string) (Device, error)
