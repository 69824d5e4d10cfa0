// File: xdpif/sim/sim.go
// Package sim is an in-memory loopback implementation of xdpif,
// standing in for a real NIC miniport's XDP queues. It drives the
// scenarios spec.md §8 names (S1-S7) for tests and the xsksim CLI
// harness without any kernel or hardware dependency.
//
// Grounded on the teacher's fake/ package (in-memory fakes of
// transport collaborators used by its own test suite), adapted from
// faking a WebSocket transport to faking an XDP NIC queue pair.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package sim

import (
	"sync"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/xdpif"
)

// Interface is a simulated NIC exposing one RX and one TX queue per
// queue id.
type Interface struct {
	ifIndex uint32
	mu      sync.Mutex
	rx      map[uint32]*RxQueue
	tx      map[uint32]*TxQueue
	txCaps  map[uint32]xdpif.Capabilities
}

// New creates a simulated interface identified by ifIndex.
func New(ifIndex uint32) *Interface {
	return &Interface{
		ifIndex: ifIndex,
		rx:      make(map[uint32]*RxQueue),
		tx:      make(map[uint32]*TxQueue),
		txCaps:  make(map[uint32]xdpif.Capabilities),
	}
}

// SetTxCapabilities overrides the capabilities reported by a TX queue
// not yet opened, e.g. to simulate a lower MTU than the default 64
// KiB (spec.md §8 S4's "Interface MTU = 2048").
func (i *Interface) SetTxCapabilities(queueID uint32, caps xdpif.Capabilities) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.txCaps[queueID] = caps
}

func (i *Interface) IfIndex() uint32 { return i.ifIndex }

func (i *Interface) OpenRxQueue(hook api.HookID, queueID uint32) (xdpif.RxQueue, api.Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if q, ok := i.rx[queueID]; ok {
		return q, api.StatusSuccess
	}
	q := &RxQueue{queueID: queueID, frames: make(chan xdpif.Frame, 256)}
	i.rx[queueID] = q
	return q, api.StatusSuccess
}

func (i *Interface) OpenTxQueue(hook api.HookID, queueID uint32) (xdpif.TxQueue, api.Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if q, ok := i.tx[queueID]; ok {
		return q, api.StatusSuccess
	}
	caps, overridden := i.txCaps[queueID]
	q := &TxQueue{queueID: queueID, capacity: 256, caps: caps, capsSet: overridden}
	i.tx[queueID] = q
	return q, api.StatusSuccess
}

// Deliver injects an ingress frame on a queue (test/harness driver).
func (i *Interface) Deliver(queueID uint32, f xdpif.Frame) bool {
	i.mu.Lock()
	q, ok := i.rx[queueID]
	i.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case q.frames <- f:
		return true
	default:
		return false
	}
}

// RxQueue is a simulated XDP RX queue.
type RxQueue struct {
	queueID uint32
	frames  chan xdpif.Frame
	sink    xdpif.RxSink
	actions []api.RxAction
	mu      sync.Mutex
}

func (q *RxQueue) QueueID() uint32 { return q.queueID }

func (q *RxQueue) Capabilities() xdpif.Capabilities {
	return xdpif.Capabilities{
		MaxBufferLength:          4096,
		MaxFrameLength:           65536,
		VirtualAddressEnabled:    true,
		ChecksumOffloadSupported: api.ChecksumOffloadIPv4 | api.ChecksumOffloadTCP | api.ChecksumOffloadUDP,
	}
}

func (q *RxQueue) Register(sink xdpif.RxSink) api.Status {
	q.sink = sink
	sink.OnAttach(xdpif.RxAttach{
		Frames: q.frames,
		Action: q.recordAction,
	})
	return api.StatusSuccess
}

func (q *RxQueue) Unregister() {
	if q.sink != nil {
		q.sink.OnDetach()
		q.sink.OnDetachComplete()
		q.sink.OnDelete()
	}
}

func (q *RxQueue) recordAction(a api.RxAction) {
	q.mu.Lock()
	q.actions = append(q.actions, a)
	q.mu.Unlock()
}

// Actions returns the per-frame actions recorded by a batched-exclusive
// consumer (test observation hook).
func (q *RxQueue) Actions() []api.RxAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]api.RxAction, len(q.actions))
	copy(out, q.actions)
	return out
}

// TxQueue is a simulated XDP TX queue: an append-only log of submitted
// addresses, bounded by capacity, reaped as completions on the next poll.
type TxQueue struct {
	queueID  uint32
	capacity uint32
	mu       sync.Mutex
	pending  []uint64
	flush    func()
	notify   func()
	caps     xdpif.Capabilities
	capsSet  bool
	reorder  func(submitted []uint64) []uint64
}

func (q *TxQueue) QueueID() uint32 { return q.queueID }

func (q *TxQueue) Capabilities() xdpif.Capabilities {
	if q.capsSet {
		return q.caps
	}
	return xdpif.Capabilities{
		MaxBufferLength:          4096,
		MaxFrameLength:           65536,
		VirtualAddressEnabled:    true,
		ChecksumOffloadSupported: api.ChecksumOffloadIPv4 | api.ChecksumOffloadTCP | api.ChecksumOffloadUDP,
	}
}

func (q *TxQueue) SetFlushCallback(flush func()) { q.flush = flush }

func (q *TxQueue) FreeSlots() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	used := uint32(len(q.pending))
	if used >= q.capacity {
		return 0
	}
	return q.capacity - used
}

func (q *TxQueue) Submit(umemAddr uint64, length uint32) api.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	if uint32(len(q.pending)) >= q.capacity {
		return api.StatusInsufficientResources
	}
	q.pending = append(q.pending, umemAddr)
	return api.StatusSuccess
}

// ReapCompletions drains every address submitted so far, simulating an
// interface that completes transmits immediately. If a reorder function
// has been installed with SetCompletionReorder, it overrides the drained addresses' order instead of
// reporting FIFO submission order, modeling an out-of-order NIC.
func (q *TxQueue) ReapCompletions() []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	if q.reorder != nil {
		out = q.reorder(out)
	}
	return out
}

// SetCompletionReorder installs a function that reorders (or filters)
// the addresses a reap would otherwise report in submission order,
// for simulating an out-of-order-completing NIC (spec.md §8 S3).
func (q *TxQueue) SetCompletionReorder(fn func(submitted []uint64) []uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reorder = fn
}

// NotifyQueue returns the callback a bound socket captures and invokes
// to tell this simulated interface new TX work is available. Absent an
// explicit override, it drives the queue's own flush callback directly,
// modeling a loopback NIC that reaps and completes on notification
// rather than on its own interrupt schedule.
func (q *TxQueue) NotifyQueue() func() {
	if q.notify != nil {
		return q.notify
	}
	return q.Kick
}

// Kick invokes the registered flush_transmit callback, simulating the
// interface driving the socket's TX pipeline (spec.md §4.6).
func (q *TxQueue) Kick() {
	if q.flush != nil {
		q.flush()
	}
}
