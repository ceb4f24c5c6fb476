// Package netmap
// Author: momentics <momentics@gmail.com>
//
// Implements the low-level netmap(4) binding for hioload-netmap.
//
// A Session opens the netmap device node, registers an interface with
// NIOCREGIF and maps the shared memory region exported by the kernel.
// The region is held as a single owned byte arena; every structure the
// kernel places in it is read through bounds-checked views:
//
//   - Interface: the netmap_if header and its ring offset table
//   - Ring: one netmap_ring, its head/cur/tail cursors and slot array
//   - Slot: one netmap_slot (buffer index, length, flags)
//
// Ring cursors are plain memory shared with the kernel. Views are not safe
// for concurrent use; one goroutine (normally the reactor) owns a ring.
//
// Sync issues NIOCTXSYNC or NIOCRXSYNC. It is the only call that moves a
// ring's tail and the only call that hands queued transmit slots to the NIC.
package netmap
