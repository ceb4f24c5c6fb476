// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package reactor

import "github.com/momentics/hioload-netmap/api"

type event struct {
	fd uintptr
	ev api.FDEventType
}

// poller is the platform readiness backend. Interest is one-shot: a
// descriptor reported by wait stays silent until armed again. Wake
// notifications are consumed internally and never reported.
type poller interface {
	arm(fd uintptr, ev api.FDEventType, added bool) error
	remove(fd uintptr) error
	wait(events []event, timeoutMs int) (int, error)
	wake() error
	close() error
}
