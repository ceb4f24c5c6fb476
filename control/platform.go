// control/platform.go
// Author: momentics <momentics@gmail.com>
//
// Platform debug probes.

package control

import (
	"runtime"

	"github.com/momentics/hioload-netmap/affinity"
	"github.com/momentics/hioload-netmap/core/netmap"
)

// RegisterPlatformProbes adds CPU and netmap ABI probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.allowed_cpus", func() any {
		cpus, err := affinity.Allowed()
		if err != nil {
			return err.Error()
		}
		return cpus
	})
	dp.RegisterProbe("netmap.api_version", func() any {
		return netmap.APIVersion
	})
	dp.RegisterProbe("netmap.ioctls", func() any {
		t, ok := netmap.Ioctls()
		return map[string]any{
			"supported": ok,
			"regif":     t.RegIf,
			"txsync":    t.TxSync,
			"rxsync":    t.RxSync,
		}
	})
}
