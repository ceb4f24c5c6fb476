//go:build !linux && !freebsd

package netmap

import (
	"fmt"

	"github.com/momentics/hioload-netmap/api"
)

// OpenDevice is unavailable without a netmap driver.
func OpenDevice(path string) (Device, error) {
	return nil, fmt.Errorf("open %s: %w", path, api.ErrNotSupported)
}
