// Package netmap
// Author: momentics <momentics@gmail.com>
//
// Kernel structure layout (netmap API 11, 64-bit targets).

package netmap

const (
	// APIVersion is the NETMAP_API level this binding speaks.
	APIVersion = 11

	// DefaultDevicePath is the netmap control device.
	DefaultDevicePath = "/dev/netmap"

	// IfNameSize is IFNAMSIZ; names are zero padded, not NUL terminated.
	IfNameSize = 16

	// HWRing selects hardware rings only (NETMAP_HW_RING).
	HWRing uint16 = 0x4000
	// SWRing selects the host stack ring (NETMAP_SW_RING).
	SWRing uint16 = 0x2000
	// RingMask extracts a ring number from a ring id.
	RingMask uint16 = 0x0fff
	// NoTxPoll disables the implicit txsync in poll().
	NoTxPoll uint16 = 0x1000
)

// struct nmreq
const (
	reqName    = 0
	reqVersion = 16
	reqOffset  = 20
	reqMemSize = 24
	reqTxSlots = 28
	reqRxSlots = 32
	reqTxRings = 36
	reqRxRings = 38
	reqRingID  = 40
	reqCmd     = 42
	reqArg1    = 44
	reqArg2    = 46
	reqArg3    = 48
	reqFlags   = 52
	reqSpare   = 56

	RequestSize = 60
)

// struct netmap_if
const (
	ifName     = 0
	ifVersion  = 16
	ifFlags    = 20
	ifTxRings  = 24
	ifRxRings  = 28
	ifBufsHead = 32

	// IfHeaderSize is the offset of ring_ofs[] within netmap_if.
	IfHeaderSize = 56
	// RingOffsetSize is sizeof(ssize_t).
	RingOffsetSize = 8
)

// struct netmap_ring
const (
	ringBufOfs   = 0
	ringNumSlots = 8
	ringBufSize  = 12
	ringRingID   = 16
	ringDir      = 18
	ringHead     = 20
	ringCur      = 24
	ringTail     = 28
	ringFlags    = 32
	ringTsSec    = 40
	ringTsUsec   = 48
	ringSem      = 128

	// RingHeaderSize is the offset of slot[] within netmap_ring; sem is
	// aligned to NM_CACHE_ALIGN (128).
	RingHeaderSize = 256
)

// struct netmap_slot
const (
	slotBufIdx = 0
	slotLen    = 4
	slotFlags  = 6
	slotPtr    = 8

	SlotSize = 16
)

// Slot flags (NS_*).
const (
	SlotBufChanged uint16 = 0x0001
	SlotReport     uint16 = 0x0002
	SlotForward    uint16 = 0x0004
	SlotNoLearn    uint16 = 0x0008
	SlotIndirect   uint16 = 0x0010
	SlotMoreFrag   uint16 = 0x0020
)

// HostRingsPerDirection is the number of ring-table entries after the
// hardware rings of each direction that belong to the host stack.
const HostRingsPerDirection = 1
