//go:build linux

package netmap

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// LookupLink queries the interface over netlink.
func LookupLink(name string) (LinkInfo, error) {
	l, err := netlink.LinkByName(name)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("link %s: %w", name, err)
	}
	a := l.Attrs()
	return LinkInfo{
		Name:         a.Name,
		Index:        a.Index,
		MTU:          a.MTU,
		HardwareAddr: a.HardwareAddr.String(),
		OperState:    a.OperState.String(),
		NumTxQueues:  a.NumTxQueues,
		NumRxQueues:  a.NumRxQueues,
	}, nil
}
