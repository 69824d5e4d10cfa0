// File: pollmode/pollmode.go
// Package pollmode implements the per-socket poll mode controller
// (spec.md §4.7): DEFAULT/SOCKET/BUSY modes, backchannel acquisition,
// and the synchronous socket-poll loop used by SOCKET mode's
// notify(POKE).
//
// Grounded on the teacher's internal/concurrency/poller_linux.go and
// poller_windows.go (a backchannel abstraction polled at a controlled
// quota) and threadpool.go's waiter-count yield pattern, adapted from
// generic I/O readiness polling to RX/TX quota-bounded XDP polling.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pollmode

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/winxdp/xsk/api"
)

// pollQuota is the per-iteration RX/TX batch ceiling (spec.md §4.7 and
// §9: an acknowledged tuning constant, kept fixed per DESIGN.md's Open
// Question decision).
const pollQuota = 256

// Backchannel is a lower-layer poll handle the controller can drive
// exclusively (SOCKET mode) or keep continuously active (BUSY mode).
type Backchannel interface {
	AcquireExclusive() api.Status
	AcquireBusy() api.Status
	Release()
	SetNeedPoke(bool)
	// PollInvoke drives up to rxQuota/txQuota units of work and returns
	// which wait conditions became ready.
	PollInvoke(rxQuota, txQuota uint32) api.ResultFlag
}

// Quotas supplies the live counts pollmode needs to compute each
// iteration's quota (spec.md §4.7).
type Quotas struct {
	FillAvailable  func() uint32
	RxFree         func() uint32
	TxAvailable    func() uint32
	CompletionFree func() uint32
}

// Controller owns one socket's poll-mode state machine.
type Controller struct {
	mu      sync.Mutex
	waiters int32

	mode   api.PollMode
	rx, tx Backchannel
	shared bool
	quotas Quotas

	pollRequest chan struct{}
}

// New creates a controller starting in DEFAULT mode. rx and tx may be
// the same Backchannel when the interface exposes one combined handle.
func New(rx, tx Backchannel, shared bool, quotas Quotas) *Controller {
	return &Controller{rx: rx, tx: tx, shared: shared, quotas: quotas, pollRequest: make(chan struct{}, 1)}
}

// Mode returns the current poll mode.
func (c *Controller) Mode() api.PollMode {
	c.lock()
	defer c.unlock()
	return c.mode
}

// SetMode exits the current mode fully, then enters the new one
// (spec.md §4.7: "transitions exit the current mode fully before
// entering the new one").
func (c *Controller) SetMode(mode api.PollMode) api.Status {
	c.lock()
	defer c.unlock()

	if err := c.exit(c.mode); err != api.StatusSuccess {
		return err
	}
	if err := c.enter(mode); err != api.StatusSuccess {
		c.mode = api.PollModeDefault
		return err
	}
	c.mode = mode
	return api.StatusSuccess
}

func (c *Controller) exit(mode api.PollMode) api.Status {
	switch mode {
	case api.PollModeSocket, api.PollModeBusy:
		if c.rx != nil {
			c.rx.Release()
		}
		if c.tx != nil && !c.shared {
			c.tx.Release()
		}
	}
	return api.StatusSuccess
}

func (c *Controller) enter(mode api.PollMode) api.Status {
	switch mode {
	case api.PollModeDefault:
		return api.StatusSuccess
	case api.PollModeSocket:
		if c.rx != nil {
			if st := c.rx.AcquireExclusive(); st != api.StatusSuccess {
				return st
			}
			c.rx.SetNeedPoke(true)
		}
		if c.tx != nil && !c.shared {
			if st := c.tx.AcquireExclusive(); st != api.StatusSuccess {
				return st
			}
		}
		if c.tx != nil {
			c.tx.SetNeedPoke(true)
		}
		return api.StatusSuccess
	case api.PollModeBusy:
		if c.rx != nil {
			if st := c.rx.AcquireBusy(); st != api.StatusSuccess {
				return st
			}
			c.rx.SetNeedPoke(false)
		}
		if c.tx != nil && !c.shared {
			if st := c.tx.AcquireBusy(); st != api.StatusSuccess {
				return st
			}
		}
		if c.tx != nil {
			c.tx.SetNeedPoke(false)
		}
		return api.StatusSuccess
	default:
		return api.StatusInvalidParameter
	}
}

// RequestWake is called by an interface-initiated wakeup while in
// SOCKET mode; it unblocks a poll loop parked on the poll-request
// event.
func (c *Controller) RequestWake() {
	select {
	case c.pollRequest <- struct{}{}:
	default:
	}
}

// lock/unlock implement the per-socket exclusive push-lock with a
// waiter counter (spec.md §4.7); ShouldYield reads that counter.
// RunSocketPollLoop does not take this lock and does not consult
// ShouldYield, so a SetMode call runs alongside it without preempting it.
func (c *Controller) lock() {
	atomic.AddInt32(&c.waiters, 1)
	c.mu.Lock()
}

func (c *Controller) unlock() {
	c.mu.Unlock()
	atomic.AddInt32(&c.waiters, -1)
}

// ShouldYield reports whether any goroutine currently holds or is
// waiting on the poll-mode lock.
func (c *Controller) ShouldYield() bool {
	return atomic.LoadInt32(&c.waiters) > 0
}

// quota computes min(pollQuota, available, free) for one direction.
func quota(available, free func() uint32) uint32 {
	q := uint32(pollQuota)
	if available != nil {
		if a := available(); a < q {
			q = a
		}
	}
	if free != nil {
		if f := free(); f < q {
			q = f
		}
	}
	return q
}

// pollOnce runs one iteration of the socket-poll loop (spec.md §4.7).
func (c *Controller) pollOnce() api.ResultFlag {
	rxQuota := quota(c.quotas.FillAvailable, c.quotas.RxFree)
	txQuota := quota(c.quotas.TxAvailable, c.quotas.CompletionFree)

	var ready api.ResultFlag
	if c.rx != nil {
		ready |= c.rx.PollInvoke(rxQuota, 0)
	}
	if c.tx != nil && c.tx != c.rx {
		ready |= c.tx.PollInvoke(0, txQuota)
	}
	return ready
}

// RunSocketPollLoop runs notify(POKE)'s synchronous poll loop directly
// on the calling thread until waitFlags is satisfied, the deadline
// passes, or no wait is requested (spec.md §4.7).
func (c *Controller) RunSocketPollLoop(waitFlags api.ResultFlag, deadline time.Time) api.ResultFlag {
	armed := false
	for {
		ready := c.pollOnce()
		if waitFlags == 0 || ready&waitFlags == waitFlags {
			return ready
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ready
		}
		if ready == 0 {
			if !armed {
				armed = true
				continue
			}
			remaining := time.Until(deadline)
			if deadline.IsZero() {
				remaining = 50 * time.Millisecond
			}
			select {
			case <-c.pollRequest:
			case <-time.After(remaining):
				return ready
			}
		}
	}
}
