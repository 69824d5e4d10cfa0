//go:build !windows

// File: umem/platform_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Windows builds have no MmProbeAndLockPages equivalent to call;
// page locking is a Windows-only concern of the original driver, so
// this backend is a documented no-op, mirroring the teacher's
// affinity_stub.go split for platform-specific primitives.

package umem

func lockPages(buf []byte) (unlock func(), err error) {
	return func() {}, nil
}
