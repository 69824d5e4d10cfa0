// File: umem/process.go
// Package umem — owning-process bookkeeping.
//
// spec.md §3/§4.2 require the UMEM to hold a reference on its owning
// process and to attach to that process's address space before
// unmapping, since the thread tearing down a socket is not necessarily
// running in the registering process's context. Go has no equivalent
// of attaching to another process's virtual address space, so this is
// modeled as a scoped acquisition with Attach/Detach hooks a real
// Windows backend can fill with KeStackAttachProcess-equivalent calls;
// see SPEC_FULL.md's "Per-process mapping for UMEM" design note.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package umem

import "sync/atomic"

// ProcessRef is an opaque, reference-counted handle to the process that
// registered a UMEM.
type ProcessRef struct {
	id    uint64
	count *int32
}

// NewProcessRef creates a process reference for the given identifier.
func NewProcessRef(id uint64) ProcessRef {
	n := int32(1)
	return ProcessRef{id: id, count: &n}
}

// ID returns the opaque process identifier.
func (p ProcessRef) ID() uint64 { return p.id }

// Attach marks a scoped acquisition of the owning process's address
// space. On a real Windows build this would be KeStackAttachProcess;
// here it is a no-op bookkeeping hook.
func (p ProcessRef) Attach() {}

// Detach ends the scoped acquisition begun by Attach.
func (p ProcessRef) Detach() {}

// Hold increments the process reference (a socket referencing the
// owning process in addition to the UMEM itself).
func (p ProcessRef) Hold() {
	if p.count != nil {
		atomic.AddInt32(p.count, 1)
	}
}

// Release decrements the process reference and reports whether it was
// the last one.
func (p ProcessRef) Release() bool {
	if p.count == nil {
		return true
	}
	return atomic.AddInt32(p.count, -1) == 0
}
