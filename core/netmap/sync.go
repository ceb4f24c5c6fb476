package netmap

import (
	"github.com/momentics/hioload-netmap/api"
)

// Sync asks the kernel to advance the rings of one direction: NIOCTXSYNC
// transmits queued slots and frees completed ones, NIOCRXSYNC delivers new
// arrivals. A receive sync never frees transmit slots and vice versa.
func (s *Session) Sync(dir api.Direction) error {
	if s.Closed() {
		return api.ErrSessionClosed
	}
	if err := s.dev.Ioctl(ioctls.SyncCode(dir), s.reqBuf[:]); err != nil {
		return api.Wrap(api.ErrCodeSync, "netmap sync", err).
			WithContext("iface", s.name).
			WithContext("dir", dir.String())
	}
	return nil
}

// TxSync is Sync(api.TX).
func (s *Session) TxSync() error { return s.Sync(api.TX) }

// RxSync is Sync(api.RX).
func (s *Session) RxSync() error { return s.Sync(api.RX) }
