// File: txpath/txpath.go
// Package txpath implements the XSK TX pipeline (spec.md §4.6):
// reaping NIC completions, enqueuing application-produced descriptors
// onto the XDP TX queue with bounce-buffer handling, and the
// armed-and-check NEED_POKE policy. No VA/LA/MDL buffer extension is
// populated: the queue receives only each descriptor's UMEM base and
// length.
//
// Grounded on the teacher's core/protocol outbound framer style
// (validate, transform, hand off to transport) adapted from WebSocket
// frame encoding to UMEM descriptor validation and NIC submission.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package txpath

import (
	"sync"
	"sync/atomic"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/bounce"
	"github.com/winxdp/xsk/ring"
	"github.com/winxdp/xsk/umem"
	"github.com/winxdp/xsk/xdpif"
)

// Waiter is signaled when outstanding frames drop to zero past Bound,
// or when completions become available and WAIT_TX is armed.
type Waiter interface {
	SignalTx()
	SignalDetachFlushComplete()
}

// Stats holds the TX-side counters exposed through GET_SOCKOPT.
type Stats struct {
	TxInvalidDescriptors int64
}

// Pipeline is the TX subcomponent of one socket.
type Pipeline struct {
	Tx         *ring.SharedRing[ring.BufferDescriptor]
	Completion *ring.SharedRing[ring.CompletionDescriptor]
	U          *umem.Umem
	Bounce     *bounce.Buffer
	Queue      xdpif.TxQueue

	Waiter Waiter

	// PastBound indicates the socket has moved beyond Bound (Detached
	// or Closing); used for the detach-flush-complete signal.
	PastBound func() bool

	outstanding int32
	sealed      int32
	caps        xdpif.Capabilities

	drainMu   sync.Mutex
	drainCond *sync.Cond

	Stats Stats
}

// New builds a TX pipeline bound to an already-opened XDP TX queue.
func New(tx *ring.SharedRing[ring.BufferDescriptor], completion *ring.SharedRing[ring.CompletionDescriptor], u *umem.Umem, b *bounce.Buffer, q xdpif.TxQueue) *Pipeline {
	p := &Pipeline{Tx: tx, Completion: completion, U: u, Bounce: b, Queue: q, caps: q.Capabilities()}
	p.drainCond = sync.NewCond(&p.drainMu)
	q.SetFlushCallback(p.FlushTransmit)
	return p
}

// OutstandingFrames returns the current count of frames posted to the
// NIC and not yet reaped as completions.
func (p *Pipeline) OutstandingFrames() int32 { return atomic.LoadInt32(&p.outstanding) }

// Seal stops enqueue from admitting any further TX descriptors (spec.md
// §5: close stops new enqueues before draining). Already-outstanding
// frames continue to be reaped normally.
func (p *Pipeline) Seal() { atomic.StoreInt32(&p.sealed, 1) }

// WaitDrained blocks until OutstandingFrames reaches zero. Callers
// should Seal first so the count cannot climb back up while waiting.
func (p *Pipeline) WaitDrained() {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()
	for atomic.LoadInt32(&p.outstanding) != 0 {
		p.drainCond.Wait()
	}
}

// FlushTransmit is invoked by the XDP TX queue's callback (spec.md
// §4.6). It runs completion reap first, then enqueues eligible
// application descriptors.
func (p *Pipeline) FlushTransmit() {
	p.reapCompletions()
	produced := p.enqueue()

	// spec.md §4.6: once at least one frame is outstanding the
	// interface drives further flushes itself, so a pending NEED_POKE
	// hint is no longer needed (poll-mode backchannels, not modeled
	// here, can re-arm it independently).
	if produced > 0 && atomic.LoadInt32(&p.outstanding) > 0 && p.Tx.NeedsPoke() {
		p.Tx.ClearNeedPoke()
	}

	if atomic.LoadInt32(&p.outstanding) == 0 {
		avail := p.Tx.ConsPeek(1)
		if avail == 0 {
			p.Tx.SetNeedPoke()
			// Re-check for input after arming to avoid losing a
			// concurrently-enqueued wakeup (spec.md §4.6 armed-and-check).
			if p.Tx.ConsPeek(1) > 0 {
				p.enqueue()
			}
		}
	}
}

func (p *Pipeline) reapCompletions() {
	addrs := p.Queue.ReapCompletions()
	if len(addrs) == 0 {
		return
	}

	compFree := p.Completion.ProdReserve(uint32(len(addrs)))
	compBase := p.Completion.ProducerIndex()
	var n uint32
	for _, addr := range addrs {
		if p.Bounce != nil {
			p.Bounce.Release(addr)
		}
		if n >= compFree {
			continue
		}
		*p.Completion.Element(compBase + n) = ring.CompletionDescriptor(addr)
		n++
	}
	p.Completion.ProdSubmit(n)
	if n < uint32(len(addrs)) {
		// the completion ring had no room for every address the NIC
		// reaped; those frames' completions are lost to userspace
		// (spec.md §3 I3), so only the ones actually recorded count as
		// no longer outstanding.
		p.Completion.SetError(api.RingErrorInvalidRing)
	}
	atomic.AddInt32(&p.outstanding, -int32(n))
	if atomic.LoadInt32(&p.outstanding) < 0 {
		atomic.StoreInt32(&p.outstanding, 0)
	}
	if atomic.LoadInt32(&p.outstanding) == 0 {
		p.drainMu.Lock()
		p.drainCond.Broadcast()
		p.drainMu.Unlock()
	}

	if p.Waiter != nil {
		p.Waiter.SignalTx()
	}
	if p.PastBound != nil && p.PastBound() && atomic.LoadInt32(&p.outstanding) == 0 {
		if p.Waiter != nil {
			p.Waiter.SignalDetachFlushComplete()
		}
	}
}

func (p *Pipeline) enqueue() uint32 {
	if atomic.LoadInt32(&p.sealed) != 0 {
		return 0
	}

	xdpFree := p.Queue.FreeSlots()
	txPending := p.Tx.ConsPeek(xdpFree)

	// compFree is the completion ring's actual free producer slots
	// (spec.md §3 I3's "completion_producer_available"), less the
	// slots already owed to frames that are outstanding but haven't
	// produced a completion yet. A negative deficit means outstanding
	// has outrun the ring's real capacity and the ring is sealed.
	actualCompFree := p.Completion.ProdReserve(p.Completion.Cap())
	deficit := int64(actualCompFree) - int64(atomic.LoadInt32(&p.outstanding))
	if deficit < 0 {
		p.Completion.SetError(api.RingErrorInvalidRing)
		return 0
	}
	compFree := uint32(deficit)

	desired := txPending
	if xdpFree < desired {
		desired = xdpFree
	}
	if compFree < desired {
		desired = compFree
	}

	txBase := p.Tx.ConsumerIndex()
	var produced uint32
	for i := uint32(0); i < desired; i++ {
		desc := *p.Tx.Element(txBase + i)
		base := desc.Base()
		offset := uint64(desc.Offset())
		length := uint64(desc.Length)

		if base+offset+length > uint64(p.U.TotalSize()) || length == 0 ||
			length > uint64(min32(p.caps.MaxBufferLength, p.caps.MaxFrameLength)) {
			atomic.AddInt64(&p.Stats.TxInvalidDescriptors, 1)
			continue
		}

		mapping, status := p.bounceOrDirect(base, uint32(offset), uint32(length))
		if status != api.StatusSuccess {
			atomic.AddInt64(&p.Stats.TxInvalidDescriptors, 1)
			continue
		}
		_ = mapping // a real build would hand this span to the NIC's DMA path

		if status := p.Queue.Submit(base, uint32(length)); status != api.StatusSuccess {
			atomic.AddInt64(&p.Stats.TxInvalidDescriptors, 1)
			continue
		}
		produced++
	}
	p.Tx.ConsRelease(desired)
	if produced > 0 {
		atomic.AddInt32(&p.outstanding, int32(produced))
	}
	return produced
}

func (p *Pipeline) bounceOrDirect(chunkBase uint64, dataOffset, dataLength uint32) ([]byte, api.Status) {
	if p.Bounce == nil {
		return p.U.Chunk(chunkBase), api.StatusSuccess
	}
	return p.Bounce.Bounce(chunkBase, dataOffset, dataLength)
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
