// File: notify/event.go
// Package notify implements the socket wait/wake primitive (spec.md
// §4.8): an edge-triggered manual-reset event guarded by a generation
// counter so a concurrent poll-mode change can abandon an in-progress
// wait instead of blocking it forever.
//
// Grounded on the teacher's internal/concurrency/eventloop.go
// wake/park pattern, backed on Windows by a real OS event object via
// golang.org/x/sys/windows (the same dependency umem already uses for
// VirtualLock), mirroring the pin_windows.go/pin_linux.go platform
// split.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/winxdp/xsk/api"
)

// osEvent is a manual-reset wait primitive; see event_windows.go and
// event_stub.go for platform backends.
type osEvent interface {
	Set()
	Reset()
	Wait(timeout time.Duration) bool
	Close()
}

// Readiness answers whether each wait-able condition currently holds.
// The owning socket implements this over its RX/completion rings.
type Readiness interface {
	RxAvailable() bool
	TxCompAvailable() bool
}

// Controller implements one socket's notify(in_flags, timeout)
// operation (spec.md §4.8), including the single-wait-per-socket
// restriction and poll-mode-change abandonment.
type Controller struct {
	ev         osEvent
	readiness  Readiness
	mu         sync.Mutex
	active     bool
	ioWait     uint32
	generation uint32
}

// New creates a notify controller over the given readiness source.
func New(r Readiness) *Controller {
	return &Controller{ev: newOSEvent(), readiness: r}
}

// Close releases the underlying OS event.
func (c *Controller) Close() { c.ev.Close() }

// SignalRx wakes an active wait if WAIT_RX is currently armed.
func (c *Controller) SignalRx() { c.signal(api.NotifyWaitRx) }

// SignalTx wakes an active wait if WAIT_TX is currently armed.
func (c *Controller) SignalTx() { c.signal(api.NotifyWaitTx) }

// SignalDetachFlushComplete wakes any active wait unconditionally, so a
// socket tearing down never leaves a waiter blocked past detach.
func (c *Controller) SignalDetachFlushComplete() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active {
		c.ev.Set()
	}
}

func (c *Controller) signal(bit api.NotifyFlag) {
	if api.NotifyFlag(atomic.LoadUint32(&c.ioWait))&bit != 0 {
		c.ev.Set()
	}
}

// BumpGeneration invalidates any in-progress wait (spec.md §4.8: "detect
// intervening poll-mode change via a snapshot of an internal-wait
// generation counter and abandon the wait if it changed").
func (c *Controller) BumpGeneration() {
	atomic.AddUint32(&c.generation, 1)
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active {
		c.ev.Set()
	}
}

// Notify runs the full notify(in_flags, timeout) sequence. poke, when
// non-nil, is invoked with the poke bits of in_flags before any wait
// logic executes (driving the socket-poll or interface-notify path per
// spec.md §4.7).
func (c *Controller) Notify(in api.NotifyFlag, timeout time.Duration, poke func(api.NotifyFlag)) (api.ResultFlag, api.Status) {
	const validBits = api.NotifyPokeRx | api.NotifyPokeTx | api.NotifyWaitRx | api.NotifyWaitTx
	if in&^validBits != 0 {
		return 0, api.StatusInvalidParameter
	}

	if pokeBits := in & (api.NotifyPokeRx | api.NotifyPokeTx); pokeBits != 0 && poke != nil {
		poke(pokeBits)
	}

	waitBits := in & (api.NotifyWaitRx | api.NotifyWaitTx)
	if waitBits == 0 {
		return 0, api.StatusSuccess
	}

	if ready := c.checkReady(waitBits); ready != 0 {
		return ready, api.StatusSuccess
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return 0, api.StatusInvalidDeviceState
	}
	c.active = true
	atomic.StoreUint32(&c.ioWait, uint32(waitBits))
	c.ev.Reset()
	snapshot := atomic.LoadUint32(&c.generation)
	c.mu.Unlock()

	if ready := c.checkReady(waitBits); ready != 0 {
		c.finish()
		return ready, api.StatusSuccess
	}
	if atomic.LoadUint32(&c.generation) != snapshot {
		c.finish()
		return 0, api.StatusCancelled
	}

	signaled := c.ev.Wait(timeout)
	ready := c.checkReady(waitBits)
	c.finish()
	if !signaled && ready == 0 {
		return 0, api.StatusTimeout
	}
	return ready, api.StatusSuccess
}

func (c *Controller) finish() {
	c.mu.Lock()
	c.active = false
	atomic.StoreUint32(&c.ioWait, 0)
	c.mu.Unlock()
}

func (c *Controller) checkReady(waitBits api.NotifyFlag) api.ResultFlag {
	var out api.ResultFlag
	if waitBits&api.NotifyWaitRx != 0 && c.readiness.RxAvailable() {
		out |= api.ResultRxAvailable
	}
	if waitBits&api.NotifyWaitTx != 0 && c.readiness.TxCompAvailable() {
		out |= api.ResultTxCompAvailable
	}
	return out
}
