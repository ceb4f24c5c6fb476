//go:build !linux

package netmap

import (
	"fmt"
	"net"
)

// LookupLink queries the interface through the net package; queue counts
// and operational state are not available here.
func LookupLink(name string) (LinkInfo, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("link %s: %w", name, err)
	}
	state := "down"
	if ifi.Flags&net.FlagUp != 0 {
		state = "up"
	}
	return LinkInfo{
		Name:         ifi.Name,
		Index:        ifi.Index,
		MTU:          ifi.MTU,
		HardwareAddr: ifi.HardwareAddr.String(),
		OperState:    state,
	}, nil
}
