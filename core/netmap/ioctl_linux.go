//go:build linux

package netmap

// _IOWR('i', 146, struct nmreq), _IO('i', 148), _IO('i', 149).
var ioctls = IoctlTable{
	RegIf:  3225184658,
	TxSync: 27028,
	RxSync: 27029,
}

const ioctlsSupported = true
