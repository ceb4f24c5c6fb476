// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
//
// Cooperative task loop on top of the platform poller.

package reactor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-netmap/affinity"
	"github.com/momentics/hioload-netmap/api"
)

// Task is a unit of cooperative work. Poll returns done=true when the task
// has finished; otherwise it must have arranged for w to be woken.
type Task interface {
	Poll(w *Waker) (done bool, err error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(w *Waker) (bool, error)

func (f TaskFunc) Poll(w *Waker) (bool, error) { return f(w) }

// Options configures a Loop.
type Options struct {
	// MaxEvents bounds events fetched per wait.
	MaxEvents int
	// CPU pins the loop thread when >= 0.
	CPU    int
	Logger *logrus.Entry
}

// DefaultOptions returns sane defaults.
func DefaultOptions() Options {
	return Options{MaxEvents: 128, CPU: -1}
}

type fdInterest struct {
	readers []api.Waker
	writers []api.Waker
	added   bool
	armed   api.FDEventType
}

type task struct {
	t      Task
	queued bool
	done   bool
	handle *JoinHandle
}

// Loop is a single-threaded reactor. Only Spawn, Stop and Waker.Wake may be
// called from other goroutines; NeedRead, NeedWrite and Forget are safe too
// but are normally called by tasks running on the loop.
type Loop struct {
	p    poller
	opts Options
	log  *logrus.Entry

	mu       sync.Mutex
	ready    *queue.Queue // *task
	live     int
	fds      map[uintptr]*fdInterest
	sleeping bool
	stopping bool
	closed   bool
	running  bool
}

var _ api.Readiness = (*Loop)(nil)

// New creates a Loop backed by the platform poller.
func New(opts Options) (*Loop, error) {
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = 128
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Loop{
		p:     p,
		opts:  opts,
		log:   opts.Logger.WithField("component", "reactor"),
		ready: queue.New(),
		fds:   make(map[uintptr]*fdInterest),
	}, nil
}

// JoinHandle reports the completion of a spawned task.
type JoinHandle struct {
	done chan struct{}
	err  error
}

// Done is closed when the task finishes.
func (h *JoinHandle) Done() <-chan struct{} { return h.done }

// Err is the task's result; valid after Done is closed.
func (h *JoinHandle) Err() error {
	<-h.done
	return h.err
}

// Spawn queues t for its first poll.
func (l *Loop) Spawn(t Task) (*JoinHandle, error) {
	h := &JoinHandle{done: make(chan struct{})}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, api.ErrReactorClosed
	}
	tk := &task{t: t, handle: h, queued: true}
	l.ready.Add(tk)
	l.live++
	wake := l.sleeping
	l.mu.Unlock()
	if wake {
		l.kick()
	}
	return h, nil
}

// Waker reschedules its task. It implements api.Waker.
type Waker struct {
	l *Loop
	t *task
}

// Wake queues the task unless it is already queued or finished.
func (w *Waker) Wake() {
	l := w.l
	l.mu.Lock()
	if w.t.queued || w.t.done || l.closed {
		l.mu.Unlock()
		return
	}
	w.t.queued = true
	l.ready.Add(w.t)
	wake := l.sleeping
	l.mu.Unlock()
	if wake {
		l.kick()
	}
}

func (l *Loop) kick() {
	if err := l.p.wake(); err != nil {
		l.log.WithError(err).Warn("reactor wake failed")
	}
}

// NeedRead arms one-shot read interest on fd for w.
func (l *Loop) NeedRead(fd uintptr, w api.Waker) error {
	return l.need(fd, api.EventRead, w)
}

// NeedWrite arms one-shot write interest on fd for w.
func (l *Loop) NeedWrite(fd uintptr, w api.Waker) error {
	return l.need(fd, api.EventWrite, w)
}

func (l *Loop) need(fd uintptr, ev api.FDEventType, w api.Waker) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return api.ErrReactorClosed
	}
	in := l.fds[fd]
	if in == nil {
		in = &fdInterest{}
		l.fds[fd] = in
	}
	if ev == api.EventRead {
		in.readers = append(in.readers, w)
	} else {
		in.writers = append(in.writers, w)
	}
	return l.armLocked(fd, in)
}

func (l *Loop) armLocked(fd uintptr, in *fdInterest) error {
	var want api.FDEventType
	if len(in.readers) > 0 {
		want |= api.EventRead
	}
	if len(in.writers) > 0 {
		want |= api.EventWrite
	}
	if want == 0 || want == in.armed {
		return nil
	}
	if err := l.p.arm(fd, want, in.added); err != nil {
		return err
	}
	in.added = true
	in.armed = want
	return nil
}

// Forget removes fd from the poller and drops its wakers.
func (l *Loop) Forget(fd uintptr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	in, ok := l.fds[fd]
	if !ok {
		return nil
	}
	delete(l.fds, fd)
	if !in.added || l.closed {
		return nil
	}
	return l.p.remove(fd)
}

// Stop makes Run return after the current iteration.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopping = true
	wake := l.sleeping
	l.mu.Unlock()
	if wake {
		l.kick()
	}
}

// Run drives tasks until all of them finish, Stop is called or ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return api.ErrReactorClosed
	}
	if l.running {
		l.mu.Unlock()
		return errors.New("reactor: already running")
	}
	l.running = true
	l.stopping = false
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	if l.opts.CPU >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := affinity.Pin(l.opts.CPU); err != nil {
			l.log.WithError(err).WithField("cpu", l.opts.CPU).Warn("reactor pinning failed")
		}
	}
	stopWatch := context.AfterFunc(ctx, l.Stop)
	defer stopWatch()

	l.log.Debug("reactor started")
	defer l.log.Debug("reactor stopped")

	events := make([]event, l.opts.MaxEvents)
	for {
		l.runReady()

		l.mu.Lock()
		if l.stopping || l.live == 0 {
			l.mu.Unlock()
			return ctx.Err()
		}
		timeout := -1
		if l.ready.Length() > 0 {
			timeout = 0
		}
		l.sleeping = timeout != 0
		l.mu.Unlock()

		n, err := l.p.wait(events, timeout)

		l.mu.Lock()
		l.sleeping = false
		l.mu.Unlock()
		if err != nil {
			return err
		}
		l.dispatch(events[:n])
	}
}

// runReady polls the tasks queued at entry; tasks woken meanwhile wait for
// the next round so descriptors are still polled.
func (l *Loop) runReady() {
	l.mu.Lock()
	budget := l.ready.Length()
	l.mu.Unlock()
	for ; budget > 0; budget-- {
		l.mu.Lock()
		if l.ready.Length() == 0 || l.stopping {
			l.mu.Unlock()
			return
		}
		tk := l.ready.Remove().(*task)
		tk.queued = false
		l.mu.Unlock()

		done, err := l.poll(tk)
		if !done {
			continue
		}
		l.mu.Lock()
		tk.done = true
		l.live--
		l.mu.Unlock()
		if err != nil {
			l.log.WithError(err).Debug("task finished with error")
		}
		tk.handle.err = err
		close(tk.handle.done)
	}
}

func (l *Loop) poll(tk *task) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done = true
			err = panicError{r}
		}
	}()
	return tk.t.Poll(&Waker{l: l, t: tk})
}

func (l *Loop) dispatch(evs []event) {
	var wake []api.Waker
	l.mu.Lock()
	for _, ev := range evs {
		in, ok := l.fds[ev.fd]
		if !ok {
			continue
		}
		// One-shot: the descriptor is disarmed until re-armed below.
		in.armed = 0
		if ev.ev&(api.EventRead|api.EventError) != 0 {
			wake = append(wake, in.readers...)
			in.readers = nil
		}
		if ev.ev&(api.EventWrite|api.EventError) != 0 {
			wake = append(wake, in.writers...)
			in.writers = nil
		}
		if err := l.armLocked(ev.fd, in); err != nil {
			l.log.WithError(err).WithField("fd", ev.fd).Warn("re-arm failed")
		}
	}
	l.mu.Unlock()
	for _, w := range wake {
		w.Wake()
	}
}

// Close releases the poller. The loop must not be running.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.fds = nil
	l.mu.Unlock()
	return l.p.close()
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("reactor: task panicked: %v", p.v) }
