// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package stream

import "github.com/momentics/hioload-netmap/api"

// Observer receives data path events. Implementations must be cheap; they
// are called inline from PollNext and Release.
type Observer interface {
	Delivered(iface string, id api.RingID)
	Synced(iface string, dir api.Direction, err error)
	Suspended(iface string, id api.RingID)
	Reclaimed(iface string, id api.RingID)
	Available(iface string, id api.RingID, n uint32)
}

type nopObserver struct{}

func (nopObserver) Delivered(string, api.RingID)         {}
func (nopObserver) Synced(string, api.Direction, error)  {}
func (nopObserver) Suspended(string, api.RingID)         {}
func (nopObserver) Reclaimed(string, api.RingID)         {}
func (nopObserver) Available(string, api.RingID, uint32) {}
