//go:build !linux && !freebsd

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package reactor

import "github.com/momentics/hioload-netmap/api"

func newPoller() (poller, error) { return nil, api.ErrNotSupported }
