// File: ring/ring.go
// Package ring implements the single-producer/single-consumer shared
// ring protocol between userspace and the kernel datapath (spec.md §3,
// §4.1): a free-running 32-bit producer/consumer index pair over a
// power-of-two element array, with a sticky first-writer-wins error
// code and a flags bitfield.
//
// Grounded on the teacher's core/concurrency/ring.go (padded,
// cache-line-separated atomic head/tail fields) generalized from an
// MPMC slot ring to the SPSC index-pair protocol spec.md describes,
// since RX/TX/fill/completion rings each have exactly one producer
// goroutine and one consumer goroutine.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ring

import (
	"sync/atomic"

	"github.com/winxdp/xsk/api"
)

// SharedRing is a bounded circular buffer of power-of-two size carrying
// descriptors or completions (spec.md §3). The zero value is not
// usable; construct with New.
type SharedRing[T any] struct {
	producerIndex uint32
	_             [60]byte // separate hot producer cache line from consumer
	consumerIndex uint32
	_             [60]byte
	flags         uint32
	errorCode     uint32
	_             [56]byte

	mask  uint32
	elems []T

	// cachedConsumer/prodPos are touched only by the producer side.
	cachedConsumer uint32
	prodPos        uint32

	// cachedProducer/consPos are touched only by the consumer side.
	cachedProducer uint32
	consPos        uint32
}

// New allocates a ring of the given capacity, rounded up to the next
// power of two (minimum 2), mirroring spec.md §3's "power-of-two array
// of descriptors".
func New[T any](capacity uint32) *SharedRing[T] {
	if capacity < 2 {
		capacity = 2
	}
	capacity = nextPow2(capacity)
	return &SharedRing[T]{
		mask:  capacity - 1,
		elems: make([]T, capacity),
	}
}

func nextPow2(v uint32) uint32 {
	if v&(v-1) == 0 {
		return v
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}

// Cap returns the fixed ring capacity.
func (r *SharedRing[T]) Cap() uint32 { return r.mask + 1 }

// ProdReserve returns how many of the next n producer slots are free,
// refreshing the cached consumer index (loaded with acquire semantics)
// only when the stale cache would otherwise under-report availability.
func (r *SharedRing[T]) ProdReserve(n uint32) uint32 {
	free := r.Cap() - (r.prodPos - r.cachedConsumer)
	if free < n {
		r.cachedConsumer = atomic.LoadUint32(&r.consumerIndex)
		free = r.Cap() - (r.prodPos - r.cachedConsumer)
	}
	if n > free {
		n = free
	}
	return n
}

// ConsPeek returns how many of the next n consumer slots are available,
// refreshing the cached producer index (loaded with acquire semantics)
// only when needed.
func (r *SharedRing[T]) ConsPeek(n uint32) uint32 {
	avail := r.cachedProducer - r.consPos
	if avail < n {
		r.cachedProducer = atomic.LoadUint32(&r.producerIndex)
		avail = r.cachedProducer - r.consPos
	}
	if n > avail {
		n = avail
	}
	return n
}

// ProdSubmit publishes n previously reserved producer slots with a
// release store, making them visible to the consumer.
func (r *SharedRing[T]) ProdSubmit(n uint32) {
	r.prodPos += n
	atomic.StoreUint32(&r.producerIndex, r.prodPos)
}

// ConsRelease retires n previously peeked consumer slots.
func (r *SharedRing[T]) ConsRelease(n uint32) {
	r.consPos += n
	atomic.StoreUint32(&r.consumerIndex, r.consPos)
}

// ProducerIndex returns the producer's current free-running index: the
// position Element should be indexed at for the next reserved slot.
func (r *SharedRing[T]) ProducerIndex() uint32 { return r.prodPos }

// ConsumerIndex returns the consumer's current free-running index.
func (r *SharedRing[T]) ConsumerIndex() uint32 { return r.consPos }

// Element returns a pointer to the slot addressed by a free-running
// index, masked to the ring's element array.
func (r *SharedRing[T]) Element(i uint32) *T {
	return &r.elems[i&r.mask]
}

// SetError atomically installs the first error reported against this
// ring (spec.md §4.1: "subsequent set_error calls are no-ops") and ORs
// RingFlagError into the flags word.
func (r *SharedRing[T]) SetError(e api.RingError) {
	if e == api.RingErrorNone {
		return
	}
	if !atomic.CompareAndSwapUint32(&r.errorCode, uint32(api.RingErrorNone), uint32(e)) {
		return
	}
	r.orFlags(uint32(api.RingFlagError))
}

// Error returns the sticky ring error, or RingErrorNone.
func (r *SharedRing[T]) Error() api.RingError {
	return api.RingError(atomic.LoadUint32(&r.errorCode))
}

// Flags returns the current flags bitfield.
func (r *SharedRing[T]) Flags() api.RingFlag {
	return api.RingFlag(atomic.LoadUint32(&r.flags))
}

// SetNeedPoke atomically sets RingFlagNeedPoke.
func (r *SharedRing[T]) SetNeedPoke() { r.orFlags(uint32(api.RingFlagNeedPoke)) }

// ClearNeedPoke atomically clears RingFlagNeedPoke and reports whether
// it had been set (spec.md §4.6's "atomically clear it" step relies on
// the previous value to decide whether a poke is owed).
func (r *SharedRing[T]) ClearNeedPoke() bool {
	return r.andFlags(^uint32(api.RingFlagNeedPoke))
}

// NeedsPoke reports whether RingFlagNeedPoke is currently set.
func (r *SharedRing[T]) NeedsPoke() bool {
	return r.Flags()&api.RingFlagNeedPoke != 0
}

// SetOffloadChanged atomically sets RingFlagOffloadChanged, stamped
// when a socket's checksum-offload sockopt is updated while bound.
func (r *SharedRing[T]) SetOffloadChanged() { r.orFlags(uint32(api.RingFlagOffloadChanged)) }

// ClearOffloadChanged atomically clears RingFlagOffloadChanged and
// reports whether it had been set.
func (r *SharedRing[T]) ClearOffloadChanged() bool {
	return r.andFlags(^uint32(api.RingFlagOffloadChanged))
}

// SetAffinityChanged atomically sets RingFlagAffinityChanged, stamped
// when a socket's processor affinity sockopt is updated while bound.
func (r *SharedRing[T]) SetAffinityChanged() { r.orFlags(uint32(api.RingFlagAffinityChanged)) }

// ClearAffinityChanged atomically clears RingFlagAffinityChanged and
// reports whether it had been set.
func (r *SharedRing[T]) ClearAffinityChanged() bool {
	return r.andFlags(^uint32(api.RingFlagAffinityChanged))
}

func (r *SharedRing[T]) orFlags(bits uint32) {
	for {
		old := atomic.LoadUint32(&r.flags)
		if old&bits == bits {
			return
		}
		if atomic.CompareAndSwapUint32(&r.flags, old, old|bits) {
			return
		}
	}
}

// andFlags atomically applies flags &= mask and returns whether the
// cleared bit(s) had previously been set.
func (r *SharedRing[T]) andFlags(mask uint32) bool {
	for {
		old := atomic.LoadUint32(&r.flags)
		neu := old & mask
		if neu == old {
			return false
		}
		if atomic.CompareAndSwapUint32(&r.flags, old, neu) {
			return true
		}
	}
}
