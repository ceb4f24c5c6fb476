//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>

package affinity

import "errors"

var errUnsupported = errors.New("affinity: not supported on this platform")

func pin(int) error { return errUnsupported }

func allowed() ([]int, error) { return nil, errUnsupported }
