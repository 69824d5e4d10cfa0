// File: xsk/notify_glue.go
// Socket-level notify(flags, timeout) entry point (spec.md §4.8) and
// the notify.Readiness implementation it relies on.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xsk

import (
	"time"

	"github.com/winxdp/xsk/api"
)

// RxAvailable implements notify.Readiness.
func (s *Socket) RxAvailable() bool {
	s.mu.Lock()
	r := s.rxRing
	s.mu.Unlock()
	return r != nil && r.ConsPeek(1) > 0
}

// TxCompAvailable implements notify.Readiness.
func (s *Socket) TxCompAvailable() bool {
	s.mu.Lock()
	r := s.compRing
	s.mu.Unlock()
	return r != nil && r.ConsPeek(1) > 0
}

// Notify implements spec.md §4.8's notify(in_flags, timeout): validates
// that the requested direction has a ring, drives the poke path, and
// defers wait semantics to notify.Controller.
func (s *Socket) Notify(flags api.NotifyFlag, timeout time.Duration) (api.ResultFlag, api.Status) {
	s.mu.Lock()
	hasRx, hasTx := s.rxRing != nil, s.txRing != nil
	s.mu.Unlock()

	if flags&(api.NotifyPokeRx|api.NotifyWaitRx) != 0 && !hasRx {
		return 0, api.StatusInvalidParameter
	}
	if flags&(api.NotifyPokeTx|api.NotifyWaitTx) != 0 && !hasTx {
		return 0, api.StatusInvalidParameter
	}

	return s.notifyCtl.Notify(flags, timeout, s.poke)
}

// Poke drives the same interface-notify path a real completion
// interrupt would (spec.md §4.7's "poke" side of notify), exported so
// a harness driving a simulated interface can nudge TX completion
// processing without a real NIC interrupt to rely on.
func (s *Socket) Poke(bits api.NotifyFlag) { s.poke(bits) }

// poke drives the socket-poll or interface-notify path for whichever
// directions were requested (spec.md §4.7/§4.8).
func (s *Socket) poke(bits api.NotifyFlag) {
	s.mu.Lock()
	mode := s.desiredPollMode
	pm := s.pollMode
	txNotify := s.txNotify
	s.mu.Unlock()

	if bits&api.NotifyPokeTx != 0 && txNotify != nil {
		txNotify()
	}
	if mode == api.PollModeSocket && pm != nil {
		pm.RunSocketPollLoop(0, time.Time{})
	}
}
