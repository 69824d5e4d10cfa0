//go:build linux
// +build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific debug probes.

package control

import "runtime"

// RegisterPlatformProbes registers the logical CPU count, the upper
// bound a processor-affinity sockopt request must stay under.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.logical_cpus", func() any {
		return runtime.NumCPU()
	})
}
