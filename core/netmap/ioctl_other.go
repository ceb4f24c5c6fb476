//go:build !linux && !freebsd

package netmap

// No netmap driver here; Linux numbering is kept so simulated devices work.
var ioctls = IoctlTable{
	RegIf:  3225184658,
	TxSync: 27028,
	RxSync: 27029,
}

const ioctlsSupported = false
