// File: txpath/txpath_test.go
package txpath

import (
	"sync/atomic"
	"testing"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/bounce"
	"github.com/winxdp/xsk/ring"
	"github.com/winxdp/xsk/umem"
	"github.com/winxdp/xsk/xdpif"
	"github.com/winxdp/xsk/xdpif/sim"
)

// reorderingQueue submits like the real sim queue but reports
// completions in a caller-supplied order rather than submission
// order, modeling a NIC that completes out of order.
type reorderingQueue struct {
	xdpif.TxQueue
	completions []uint64
}

func (q *reorderingQueue) ReapCompletions() []uint64 {
	out := q.completions
	q.completions = nil
	return out
}

type fakeWaiter struct {
	txSignals      int
	detachSignaled bool
}

func (w *fakeWaiter) SignalTx()                  { w.txSignals++ }
func (w *fakeWaiter) SignalDetachFlushComplete() { w.detachSignaled = true }

func newTestPipeline(t *testing.T, chunkSize uint32) (*Pipeline, *umem.Umem) {
	t.Helper()
	buf := make([]byte, int(chunkSize)*8)
	u, status := umem.Register(umem.Registration{Buffer: buf, ChunkSize: chunkSize}, umem.NewProcessRef(1))
	if status != api.StatusSuccess {
		t.Fatalf("umem.Register failed: %v", status)
	}
	tx := ring.New[ring.BufferDescriptor](8)
	comp := ring.New[ring.CompletionDescriptor](8)
	iface := sim.New(1)
	q, st := iface.OpenTxQueue(api.DefaultTxHookID, 0)
	if st != api.StatusSuccess {
		t.Fatalf("OpenTxQueue failed: %v", st)
	}
	p := New(tx, comp, u, bounce.NewPassthrough(u), q)
	return p, u
}

func postTxDescriptor(p *Pipeline, base uint64, offset uint16, length uint32) {
	n := p.Tx.ProdReserve(1)
	if n == 0 {
		panic("tx ring full")
	}
	idx := p.Tx.ProducerIndex()
	*p.Tx.Element(idx) = ring.NewBufferDescriptor(base, offset, length)
	p.Tx.ProdSubmit(1)
}

func TestPipeline_EnqueuesValidDescriptor(t *testing.T) {
	p, u := newTestPipeline(t, 2048)
	copy(u.Chunk(0)[:5], []byte("hello"))
	postTxDescriptor(p, 0, 0, 5)

	p.FlushTransmit()

	if got := p.OutstandingFrames(); got != 1 {
		t.Fatalf("expected 1 outstanding frame, got %d", got)
	}
}

func TestPipeline_RejectsOversizedDescriptor(t *testing.T) {
	p, _ := newTestPipeline(t, 2048)
	postTxDescriptor(p, 0, 0, 999999)

	p.FlushTransmit()

	if p.Stats.TxInvalidDescriptors != 1 {
		t.Fatalf("expected 1 invalid descriptor, got %d", p.Stats.TxInvalidDescriptors)
	}
	if p.OutstandingFrames() != 0 {
		t.Fatalf("expected 0 outstanding frames, got %d", p.OutstandingFrames())
	}
}

func TestPipeline_ReapsCompletionsAndSignalsWaiter(t *testing.T) {
	p, u := newTestPipeline(t, 2048)
	copy(u.Chunk(0)[:5], []byte("hello"))
	postTxDescriptor(p, 0, 0, 5)

	w := &fakeWaiter{}
	p.Waiter = w

	p.FlushTransmit() // enqueue, then sim completes immediately on next reap
	p.FlushTransmit() // reap

	if p.OutstandingFrames() != 0 {
		t.Fatalf("expected outstanding frames to drain to 0, got %d", p.OutstandingFrames())
	}
	if w.txSignals == 0 {
		t.Fatal("expected SignalTx to have been called")
	}

	comp := p.Completion.ConsPeek(1)
	if comp == 0 {
		t.Fatal("expected a completion descriptor to be available")
	}
}

func TestPipeline_SignalsDetachFlushCompleteWhenPastBound(t *testing.T) {
	p, u := newTestPipeline(t, 2048)
	copy(u.Chunk(0)[:5], []byte("hello"))
	postTxDescriptor(p, 0, 0, 5)

	w := &fakeWaiter{}
	p.Waiter = w
	p.PastBound = func() bool { return true }

	p.FlushTransmit()
	p.FlushTransmit()

	if !w.detachSignaled {
		t.Fatal("expected SignalDetachFlushComplete to have been called")
	}
}

func TestPipeline_OutOfOrderCompletion(t *testing.T) {
	buf := make([]byte, 2048*8)
	u, status := umem.Register(umem.Registration{Buffer: buf, ChunkSize: 2048}, umem.NewProcessRef(1))
	if status != api.StatusSuccess {
		t.Fatalf("umem.Register failed: %v", status)
	}
	tx := ring.New[ring.BufferDescriptor](8)
	comp := ring.New[ring.CompletionDescriptor](8)
	iface := sim.New(1)
	real, _ := iface.OpenTxQueue(api.DefaultTxHookID, 0)
	q := &reorderingQueue{TxQueue: real}
	p := New(tx, comp, u, bounce.NewPassthrough(u), q)

	postTxDescriptor(p, 0, 0, 5)    // chunk 0
	postTxDescriptor(p, 2048, 0, 5) // chunk 1
	p.FlushTransmit()

	// the interface completes chunk 1 first, then chunk 0
	q.completions = []uint64{2048, 0}
	p.FlushTransmit()

	if n := comp.ConsPeek(2); n != 2 {
		t.Fatalf("expected 2 completions, got %d", n)
	}
	idx := comp.ConsumerIndex()
	first, second := *comp.Element(idx), *comp.Element(idx+1)
	if first != 2048 || second != 0 {
		t.Fatalf("expected completion order [2048, 0], got [%d, %d]", first, second)
	}
}

func TestPipeline_EnqueueRespectsActualCompletionFreeSlots(t *testing.T) {
	buf := make([]byte, 2048*8)
	u, status := umem.Register(umem.Registration{Buffer: buf, ChunkSize: 2048}, umem.NewProcessRef(1))
	if status != api.StatusSuccess {
		t.Fatalf("umem.Register failed: %v", status)
	}
	tx := ring.New[ring.BufferDescriptor](8)
	comp := ring.New[ring.CompletionDescriptor](2) // small: two in-flight completions fill it
	iface := sim.New(1)
	q, _ := iface.OpenTxQueue(api.DefaultTxHookID, 0)
	p := New(tx, comp, u, bounce.NewPassthrough(u), q)

	postTxDescriptor(p, 0, 0, 5)
	postTxDescriptor(p, 2048, 0, 5)
	p.FlushTransmit() // enqueue both; sim queue completes on next reap
	p.FlushTransmit() // reap fills the completion ring (cap 2), nothing consumed

	if p.OutstandingFrames() != 0 {
		t.Fatalf("expected outstanding to drain to 0, got %d", p.OutstandingFrames())
	}
	if n := comp.ConsPeek(2); n != 2 {
		t.Fatalf("expected completion ring full (2), got %d", n)
	}

	// Post two more descriptors while the completion ring is still a
	// stale, unconsumed backlog: nothing should be admitted, since the
	// ring has no real free slots regardless of outstanding being 0.
	postTxDescriptor(p, 0, 0, 5)
	postTxDescriptor(p, 2048, 0, 5)
	p.FlushTransmit()

	if p.OutstandingFrames() != 0 {
		t.Fatalf("expected enqueue to admit nothing against a full completion ring, got %d outstanding", p.OutstandingFrames())
	}
	if n := p.Tx.ConsPeek(2); n != 2 {
		t.Fatalf("expected the 2 new tx descriptors to remain unconsumed, got %d", n)
	}
	if p.Completion.Error() != api.RingErrorNone {
		t.Fatalf("blocked admission should not seal the ring, got error %v", p.Completion.Error())
	}

	// Draining the completion ring frees real slots; the same flush
	// now admits the pending descriptors.
	comp.ConsRelease(2)
	p.FlushTransmit()

	if p.OutstandingFrames() != 2 {
		t.Fatalf("expected 2 outstanding after completion ring drained, got %d", p.OutstandingFrames())
	}
}

func TestPipeline_EnqueueSealsCompletionRingOnNegativeDeficit(t *testing.T) {
	p, _ := newTestPipeline(t, 2048)

	// Simulate outstanding having outrun the completion ring's actual
	// capacity (e.g. a race or a miscounted reap elsewhere).
	atomic.StoreInt32(&p.outstanding, int32(p.Completion.Cap())+1)
	postTxDescriptor(p, 0, 0, 5)

	if produced := p.enqueue(); produced != 0 {
		t.Fatalf("expected 0 produced on negative completion deficit, got %d", produced)
	}
	if p.Completion.Error() != api.RingErrorInvalidRing {
		t.Fatalf("expected completion ring sealed with RingErrorInvalidRing, got %v", p.Completion.Error())
	}
}

func TestPipeline_ReapDropsCompletionsWithoutOverDecrementingOutstanding(t *testing.T) {
	buf := make([]byte, 2048*8)
	u, status := umem.Register(umem.Registration{Buffer: buf, ChunkSize: 2048}, umem.NewProcessRef(1))
	if status != api.StatusSuccess {
		t.Fatalf("umem.Register failed: %v", status)
	}
	tx := ring.New[ring.BufferDescriptor](8)
	comp := ring.New[ring.CompletionDescriptor](2)
	iface := sim.New(1)
	real, _ := iface.OpenTxQueue(api.DefaultTxHookID, 0)
	q := &reorderingQueue{TxQueue: real}
	p := New(tx, comp, u, bounce.NewPassthrough(u), q)

	atomic.StoreInt32(&p.outstanding, 3)
	q.completions = []uint64{0, 2048, 4096} // NIC reaps 3, ring only has room for 2

	p.reapCompletions()

	if n := comp.ConsPeek(2); n != 2 {
		t.Fatalf("expected 2 completions recorded, got %d", n)
	}
	if p.Completion.Error() != api.RingErrorInvalidRing {
		t.Fatalf("expected ring sealed after dropping a completion, got %v", p.Completion.Error())
	}
	if got := p.OutstandingFrames(); got != 1 {
		t.Fatalf("expected outstanding to drop only by the 2 recorded completions (3-2=1), got %d", got)
	}
}

func TestPipeline_BouncesTransmitData(t *testing.T) {
	buf := make([]byte, 2048*8)
	u, status := umem.Register(umem.Registration{Buffer: buf, ChunkSize: 2048}, umem.NewProcessRef(1))
	if status != api.StatusSuccess {
		t.Fatalf("umem.Register failed: %v", status)
	}
	tx := ring.New[ring.BufferDescriptor](8)
	comp := ring.New[ring.CompletionDescriptor](8)
	iface := sim.New(1)
	q, _ := iface.OpenTxQueue(api.DefaultTxHookID, 0)
	b := bounce.New(u)
	p := New(tx, comp, u, b, q)

	copy(u.Chunk(0)[:5], []byte("hello"))
	postTxDescriptor(p, 0, 0, 5)
	p.FlushTransmit()

	if b.InFlight(0) != 1 {
		t.Fatalf("expected bounce in-flight count 1 after enqueue, got %d", b.InFlight(0))
	}
}
