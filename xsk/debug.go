// File: xsk/debug.go
// Read-only accessors used by the xsksim CLI harness and
// control.DebugProbes registrations to introspect a socket's
// internals without a dedicated GET_SOCKOPT for every question.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xsk

import (
	"github.com/winxdp/xsk/ring"
	"github.com/winxdp/xsk/umem"
)

// DebugFillRing returns the socket's fill ring, or nil if unset.
func (s *Socket) DebugFillRing() *ring.SharedRing[ring.FillDescriptor] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fill
}

// DebugRxRing returns the socket's RX ring, or nil if unset.
func (s *Socket) DebugRxRing() *ring.SharedRing[ring.BufferDescriptor] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxRing
}

// DebugTxRing returns the socket's TX ring, or nil if unset.
func (s *Socket) DebugTxRing() *ring.SharedRing[ring.BufferDescriptor] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txRing
}

// DebugCompletionRing returns the socket's completion ring, or nil if unset.
func (s *Socket) DebugCompletionRing() *ring.SharedRing[ring.CompletionDescriptor] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compRing
}

// DebugUmem returns the socket's attached UMEM, or nil if unset.
func (s *Socket) DebugUmem() *umem.Umem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.u
}

// RegisterDebugProbes wires this socket's statistics and state into a
// debug probe registry, with probe names prefixed by label.
func (s *Socket) RegisterDebugProbes(dp interface {
	RegisterProbe(name string, fn func() any)
}, label string) {
	dp.RegisterProbe(label+".state", func() any { return s.State() })
	dp.RegisterProbe(label+".statistics", func() any { return s.GetStatistics() })
	dp.RegisterProbe(label+".poll_mode", func() any { return s.PollMode() })
}
