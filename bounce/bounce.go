// File: bounce/bounce.go
// Package bounce implements the optional TX bounce buffer (spec.md §3,
// §4.3): a parallel mirror of the UMEM used when the lower interface
// requires immutable transmit data, with a per-chunk in-flight counter
// that freezes subsequent writes while a transmit is outstanding.
//
// Grounded on the teacher's pool/slab_pool.go per-size-class counters
// (atomic.Uint64 allocation/free bookkeeping) generalized to a
// per-chunk atomic in-flight counter guarding copy-on-first-post
// semantics instead of slab allocation accounting.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package bounce

import (
	"sync/atomic"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/umem"
)

// Buffer is the optional TX bounce mirror. A Buffer built with
// NewPassthrough serves chunks straight out of UMEM with no mirroring,
// the "no bounce configured" case of spec.md §4.3.
type Buffer struct {
	u         *umem.Umem
	mirror    []byte
	tracker   []int32
	chunkSize uint32
}

// New allocates a bounce mirror matching u's registered size, plus a
// per-chunk tracker (spec.md §3).
func New(u *umem.Umem) *Buffer {
	return &Buffer{
		u:         u,
		mirror:    make([]byte, u.TotalSize()),
		tracker:   make([]int32, u.ChunkCount()),
		chunkSize: u.ChunkSize(),
	}
}

// Bounce returns the mapping a TX descriptor's payload should be read
// from: the UMEM chunk directly in passthrough mode, or the bounce
// mirror chunk otherwise. It fails if the descriptor's data range
// straddles the chunk boundary. While the chunk's in-flight counter is
// nonzero, the mirror is not refreshed — the application cannot mutate
// bytes already captured for an outstanding transmit (spec.md §8
// property 4, bounce immutability).
func (b *Buffer) Bounce(chunkAddr uint64, dataOffset, dataLength uint32) ([]byte, api.Status) {
	if !b.u.ValidChunkBase(chunkAddr) {
		return nil, api.StatusInvalidBufferSize
	}
	if uint64(dataOffset)+uint64(dataLength) > uint64(b.chunkSize) {
		return nil, api.StatusInvalidBufferSize
	}
	if b.mirror == nil {
		return b.u.Chunk(chunkAddr), api.StatusSuccess
	}
	idx := chunkAddr / uint64(b.chunkSize)
	mirrorChunk := b.mirror[chunkAddr : chunkAddr+uint64(b.chunkSize)]
	if atomic.LoadInt32(&b.tracker[idx]) == 0 {
		src := b.u.Chunk(chunkAddr)
		copy(mirrorChunk[dataOffset:dataOffset+dataLength], src[dataOffset:dataOffset+dataLength])
	}
	atomic.AddInt32(&b.tracker[idx], 1)
	return mirrorChunk, api.StatusSuccess
}

// Release decrements the in-flight counter for chunkAddr once its
// transmit completes. No-op when no bounce is configured.
func (b *Buffer) Release(chunkAddr uint64) {
	if b.mirror == nil {
		return
	}
	idx := chunkAddr / uint64(b.chunkSize)
	if idx >= uint64(len(b.tracker)) {
		return
	}
	atomic.AddInt32(&b.tracker[int(idx)], -1)
}

// InFlight returns the current in-flight counter for a chunk (test/debug use).
func (b *Buffer) InFlight(chunkAddr uint64) int32 {
	if b.mirror == nil {
		return 0
	}
	idx := chunkAddr / uint64(b.chunkSize)
	return atomic.LoadInt32(&b.tracker[idx])
}

// NewPassthrough returns a Buffer that serves chunks directly out of u
// without mirroring, for interfaces that do not require immutable TX
// data (spec.md §4.3: "When no bounce is configured, both calls are
// pass-through returning the UMEM mapping").
func NewPassthrough(u *umem.Umem) *Buffer {
	return &Buffer{u: u, chunkSize: u.ChunkSize()}
}

// Configured reports whether b actually mirrors data (vs. passthrough).
func (b *Buffer) Configured() bool {
	return b.mirror != nil
}
