// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"

	"github.com/momentics/hioload-netmap/api"
)

// FakeReactor implements api.Readiness by recording interest; tests fire
// readiness by hand.
type FakeReactor struct {
	mu      sync.Mutex
	readers map[uintptr][]api.Waker
	writers map[uintptr][]api.Waker

	NeedReadCalls  int
	NeedWriteCalls int
	ForgetCalls    int
}

func NewFakeReactor() *FakeReactor {
	return &FakeReactor{
		readers: make(map[uintptr][]api.Waker),
		writers: make(map[uintptr][]api.Waker),
	}
}

func (f *FakeReactor) NeedRead(fd uintptr, w api.Waker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NeedReadCalls++
	f.readers[fd] = append(f.readers[fd], w)
	return nil
}

func (f *FakeReactor) NeedWrite(fd uintptr, w api.Waker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NeedWriteCalls++
	f.writers[fd] = append(f.writers[fd], w)
	return nil
}

func (f *FakeReactor) Forget(fd uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ForgetCalls++
	delete(f.readers, fd)
	delete(f.writers, fd)
	return nil
}

// Pending returns the number of wakers armed for fd.
func (f *FakeReactor) Pending(fd uintptr) (readers, writers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readers[fd]), len(f.writers[fd])
}

// Fire wakes and disarms the wakers matching ev on fd.
func (f *FakeReactor) Fire(fd uintptr, ev api.FDEventType) int {
	f.mu.Lock()
	var wake []api.Waker
	if ev&(api.EventRead|api.EventError) != 0 {
		wake = append(wake, f.readers[fd]...)
		delete(f.readers, fd)
	}
	if ev&(api.EventWrite|api.EventError) != 0 {
		wake = append(wake, f.writers[fd]...)
		delete(f.writers, fd)
	}
	f.mu.Unlock()
	for _, w := range wake {
		w.Wake()
	}
	return len(wake)
}

// WakerFunc adapts a function to api.Waker.
type WakerFunc func()

func (fn WakerFunc) Wake() { fn() }

// CountingWaker counts wakeups.
type CountingWaker struct {
	mu sync.Mutex
	n  int
}

func (c *CountingWaker) Wake() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *CountingWaker) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
