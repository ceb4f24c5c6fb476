//go:build !linux

package fake

// eventFD is inert where the reactor is unavailable.
type eventFD struct{}

func newEventFD() (*eventFD, error) { return &eventFD{}, nil }

func (e *eventFD) fd() uintptr  { return ^uintptr(0) }
func (e *eventFD) signal()      {}
func (e *eventFD) drain()       {}
func (e *eventFD) close() error { return nil }
