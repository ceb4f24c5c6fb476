// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package stream turns a netmap ring into a non-blocking stream of packet
// handles driven by a reactor.
//
// A RingStream is polled from a single goroutine. When the ring is empty
// after a sync, PollNext arms one-shot interest on the session descriptor
// and reports that it is not ready; the caller is woken when the kernel
// signals activity. Packets are delivered strictly in ring order.
//
// Every Packet must be released. Release hands the claimed slots of the
// packet's own ring back to the kernel (head = cur) and drops the session
// reference the packet held, so the mapping outlives all packets.
package stream
