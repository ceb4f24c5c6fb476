//go:build freebsd

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// FreeBSD kqueue poller.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-netmap/api"
)

const wakeIdent = 0

type kqueuePoller struct {
	kq  int
	raw []unix.Kevent_t
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	var ch [1]unix.Kevent_t
	unix.SetKevent(&ch[0], wakeIdent, unix.EVFILT_USER, unix.EV_ADD|unix.EV_CLEAR)
	if _, err := unix.Kevent(kq, ch[:], nil, nil); err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("kevent add wake: %w", err)
	}
	return &kqueuePoller{kq: kq}, nil
}

func (p *kqueuePoller) arm(fd uintptr, want api.FDEventType, _ bool) error {
	ch := make([]unix.Kevent_t, 0, 2)
	if want&api.EventRead != 0 {
		var k unix.Kevent_t
		unix.SetKevent(&k, int(fd), unix.EVFILT_READ, unix.EV_ADD|unix.EV_ONESHOT)
		ch = append(ch, k)
	}
	if want&api.EventWrite != 0 {
		var k unix.Kevent_t
		unix.SetKevent(&k, int(fd), unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ONESHOT)
		ch = append(ch, k)
	}
	if _, err := unix.Kevent(p.kq, ch, nil, nil); err != nil {
		return fmt.Errorf("kevent fd %d: %w", fd, err)
	}
	return nil
}

func (p *kqueuePoller) remove(fd uintptr) error {
	var ch [2]unix.Kevent_t
	unix.SetKevent(&ch[0], int(fd), unix.EVFILT_READ, unix.EV_DELETE)
	unix.SetKevent(&ch[1], int(fd), unix.EVFILT_WRITE, unix.EV_DELETE)
	// Fired one-shot filters are already gone; ENOENT is expected.
	for i := range ch {
		if _, err := unix.Kevent(p.kq, ch[i:i+1], nil, nil); err != nil && err != unix.ENOENT {
			return fmt.Errorf("kevent delete fd %d: %w", fd, err)
		}
	}
	return nil
}

func (p *kqueuePoller) wait(events []event, timeoutMs int) (int, error) {
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.Kevent_t, len(events))
	}
	raw := p.raw[:len(events)]
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		k := raw[i]
		if k.Filter == unix.EVFILT_USER {
			continue
		}
		var et api.FDEventType
		switch k.Filter {
		case unix.EVFILT_READ:
			et = api.EventRead
		case unix.EVFILT_WRITE:
			et = api.EventWrite
		}
		if k.Flags&(unix.EV_ERROR|unix.EV_EOF) != 0 {
			et |= api.EventError
		}
		events[out] = event{fd: uintptr(k.Ident), ev: et}
		out++
	}
	return out, nil
}

func (p *kqueuePoller) wake() error {
	var ch [1]unix.Kevent_t
	unix.SetKevent(&ch[0], wakeIdent, unix.EVFILT_USER, 0)
	ch[0].Fflags = unix.NOTE_TRIGGER
	_, err := unix.Kevent(p.kq, ch[:], nil, nil)
	return err
}

func (p *kqueuePoller) close() error { return unix.Close(p.kq) }
