//go:build windows

// File: umem/platform_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows page-locking backend for UMEM registration (spec.md §4.2
// step (b): "locks pages for write"). Uses the real VirtualLock/
// VirtualUnlock pair from golang.org/x/sys/windows, the same dependency
// the teacher already carries (used elsewhere for reactor/event
// primitives). The kernel-only steps — MDL allocation and a reserved
// system-mapping with large-page PTE preservation (spec.md §4.2 steps
// (a) and (c)) — have no usermode equivalent and are not modeled.

package umem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func lockPages(buf []byte) (unlock func(), err error) {
	if len(buf) == 0 {
		return func() {}, nil
	}
	addr := unsafe.Pointer(&buf[0])
	size := uintptr(len(buf))
	if e := windows.VirtualLock(uintptr(addr), size); e != nil {
		return nil, fmt.Errorf("umem: VirtualLock: %w", e)
	}
	return func() {
		_ = windows.VirtualUnlock(uintptr(addr), size)
	}, nil
}
