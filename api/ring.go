// Package api
// Author: momentics@gmail.com
//
// Ring identity shared by the netmap core, the stream adapter and metrics.

package api

import "fmt"

// Direction selects the transmit or receive side of an interface.
type Direction uint8

const (
	TX Direction = iota
	RX
)

// String returns "tx" or "rx".
func (d Direction) String() string {
	switch d {
	case TX:
		return "tx"
	case RX:
		return "rx"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

// RingID identifies one hardware ring by direction and per-direction index.
type RingID struct {
	Dir   Direction
	Index uint32
}

// TxRing returns the id of transmit ring i.
func TxRing(i uint32) RingID { return RingID{Dir: TX, Index: i} }

// RxRing returns the id of receive ring i.
func RxRing(i uint32) RingID { return RingID{Dir: RX, Index: i} }

func (id RingID) String() string {
	return fmt.Sprintf("%s%d", id.Dir, id.Index)
}
