// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the readiness contract between ring streams and the event reactor
// that drives them (epoll on Linux).

package api

// FDEventType is a bitmask of descriptor readiness kinds.
type FDEventType uint32

const (
	EventRead FDEventType = 1 << iota
	EventWrite
	EventError
)

// Waker reschedules a suspended task on its reactor.
// Wake may be called from any goroutine and more than once.
type Waker interface {
	Wake()
}

// Readiness is the part of a reactor a stream needs: one-shot interest in
// a descriptor becoming readable or writable.
type Readiness interface {
	// NeedRead arms read interest on fd; w is woken once on the next signal.
	NeedRead(fd uintptr, w Waker) error
	// NeedWrite arms write interest on fd; w is woken once on the next signal.
	NeedWrite(fd uintptr, w Waker) error
	// Forget drops every pending interest and waker registered for fd.
	Forget(fd uintptr) error
}
