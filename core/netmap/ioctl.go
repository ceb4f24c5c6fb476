package netmap

import "github.com/momentics/hioload-netmap/api"

// IoctlTable holds the platform's netmap ioctl request codes.
type IoctlTable struct {
	RegIf  uint
	TxSync uint
	RxSync uint
}

// Ioctls returns the request codes selected for the build target.
// Supported reports false on platforms without a netmap driver.
func Ioctls() (t IoctlTable, supported bool) {
	return ioctls, ioctlsSupported
}

// SyncCode returns the sync request code for dir.
func (t IoctlTable) SyncCode(dir api.Direction) uint {
	if dir == api.TX {
		return t.TxSync
	}
	return t.RxSync
}
