// File: umem/umem.go
// Package umem implements the registered, chunked UMEM buffer
// (spec.md §3, §4.2): a user-supplied byte region locked for kernel
// access, partitioned into fixed-size chunks, reference counted across
// up to two sharing sockets.
//
// Grounded on the teacher's pool/bufferpool_linux.go and
// pool/slab_pool.go (NUMA-segmented, refcounted buffer management) and
// on pool/bufferpool.go's GetPool-by-key pattern, generalized from a
// pool of independent allocations to a single registered region
// partitioned into addressable chunks.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package umem

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/winxdp/xsk/api"
)

const maxHeadroom = 64 * 1024

// Registration describes the parameters passed to Register (spec.md §3).
type Registration struct {
	Buffer    []byte
	ChunkSize uint32
	Headroom  uint32
}

// Umem is a registered, chunked buffer shared between the kernel
// datapath and userspace. The zero value is not usable; build with
// Register.
type Umem struct {
	buf       []byte
	totalSize uint32
	chunkSize uint32
	headroom  uint32

	refcount int32

	owner     ProcessRef
	unlock    func()
	zeroCopy  bool
}

// Register validates reg against spec.md §4.2's invariants, truncates
// TotalSize down to a multiple of ChunkSize, and locks the backing
// pages for kernel access.
func Register(reg Registration, owner ProcessRef) (*Umem, api.Status) {
	if reg.ChunkSize == 0 {
		return nil, api.StatusInvalidParameter
	}
	if reg.Headroom > maxHeadroom {
		return nil, api.StatusInvalidParameter
	}
	if reg.Headroom > reg.ChunkSize {
		return nil, api.StatusInvalidParameter
	}
	totalSize := uint32(len(reg.Buffer))
	if totalSize == 0 || reg.ChunkSize > totalSize {
		return nil, api.StatusInvalidParameter
	}
	if uint64(len(reg.Buffer)) > uint64(^uint32(0))+1 {
		return nil, api.StatusInvalidParameter
	}

	// Truncate total_size to a multiple of chunk_size.
	totalSize -= totalSize % reg.ChunkSize

	unlock, err := lockPages(reg.Buffer[:totalSize])
	if err != nil {
		return nil, api.StatusNoMemory
	}

	u := &Umem{
		buf:       reg.Buffer,
		totalSize: totalSize,
		chunkSize: reg.ChunkSize,
		headroom:  reg.Headroom,
		refcount:  1,
		owner:     owner,
		unlock:    unlock,
	}
	logrus.WithFields(logrus.Fields{
		"total_size": totalSize,
		"chunk_size": reg.ChunkSize,
		"headroom":   reg.Headroom,
	}).Debug("umem: registered")
	return u, api.StatusSuccess
}

// TotalSize returns the (chunk_size-truncated) usable region size.
func (u *Umem) TotalSize() uint32 { return u.totalSize }

// ChunkSize returns the configured chunk size.
func (u *Umem) ChunkSize() uint32 { return u.chunkSize }

// Headroom returns the configured per-chunk headroom.
func (u *Umem) Headroom() uint32 { return u.headroom }

// ChunkCount returns the number of addressable chunks.
func (u *Umem) ChunkCount() uint32 { return u.totalSize / u.chunkSize }

// ZeroCopyRx reports whether RX zero-copy mode is enabled for this
// UMEM (the XskRxZeroCopy registry control, spec.md §6).
func (u *Umem) ZeroCopyRx() bool { return u.zeroCopy }

// SetZeroCopyRx toggles RX zero-copy mode.
func (u *Umem) SetZeroCopyRx(v bool) { u.zeroCopy = v }

// ValidChunkBase reports whether base addresses a whole chunk within
// bounds: spec.md §4.5's "if the base exceeds total_size - chunk_size,
// drop" check.
func (u *Umem) ValidChunkBase(base uint64) bool {
	if u.totalSize < u.chunkSize {
		return false
	}
	return base <= uint64(u.totalSize-u.chunkSize)
}

// Bytes returns the UMEM-relative byte range [base, base+length), or
// ok=false if it would read or write outside the registered region
// (spec.md §4.6's base+offset+length bound check, applied generically).
func (u *Umem) Bytes(base, length uint64) (region []byte, ok bool) {
	if base+length > uint64(u.totalSize) || length == 0 && base > uint64(u.totalSize) {
		return nil, false
	}
	if base > uint64(u.totalSize) || base+length > uint64(len(u.buf)) {
		return nil, false
	}
	return u.buf[base : base+length], true
}

// Chunk returns the full chunk_size bytes starting at base. Caller
// must have already validated base with ValidChunkBase.
func (u *Umem) Chunk(base uint64) []byte {
	return u.buf[base : base+uint64(u.chunkSize)]
}

// Attach increments the reference count for a second socket sharing
// this UMEM (spec.md §4.4 set_umem sharing, invariant I1). Fails if the
// UMEM has already begun teardown.
func (u *Umem) Attach() api.Status {
	for {
		cur := atomic.LoadInt32(&u.refcount)
		if cur <= 0 {
			return api.StatusInvalidDeviceState
		}
		if atomic.CompareAndSwapInt32(&u.refcount, cur, cur+1) {
			return api.StatusSuccess
		}
	}
}

// RefCount returns the current reference count (invariant I1, spec.md §3).
func (u *Umem) RefCount() int32 { return atomic.LoadInt32(&u.refcount) }

// Deref releases one reference. When the last reference drops, the
// backing pages are unlocked under the owning process, per spec.md
// §4.2's "deref runs page unmap/unlock under the owning process; if
// the caller thread is not that process, it attaches to the process
// first."
func (u *Umem) Deref() {
	n := atomic.AddInt32(&u.refcount, -1)
	if n > 0 {
		return
	}
	u.owner.Attach()
	defer u.owner.Detach()
	if u.unlock != nil {
		u.unlock()
	}
	logrus.Debug("umem: final reference released, pages unlocked")
}
