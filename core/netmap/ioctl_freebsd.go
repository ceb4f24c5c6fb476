//go:build freebsd

package netmap

// FreeBSD encodes IOC_VOID into the argument-less sync requests.
var ioctls = IoctlTable{
	RegIf:  3225184658,
	TxSync: 536897940,
	RxSync: 536897941,
}

const ioctlsSupported = true
