//go:build windows
// +build windows

// control/platform_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows-specific debug probes.

package control

import "runtime"

// RegisterPlatformProbes registers the logical CPU count, the upper
// bound a processor-affinity sockopt request must stay under.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.logical_cpus", func() any {
		return runtime.NumCPU()
	})
}
