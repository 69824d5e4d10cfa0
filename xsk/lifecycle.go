// File: xsk/lifecycle.go
// Socket teardown (spec.md §4.4: "IOCTL cleanup transitions any state
// to Closing").
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xsk

import "github.com/winxdp/xsk/api"

// Close transitions the socket to Closing from any state, seals the TX
// pipeline against new enqueues and waits for it to drain, releases its
// RX queue registration, drops its UMEM reference, and closes its work
// queue and notify controller (spec.md §5: "close waits for the TX
// pipeline to drain ... but only after stopping new enqueues").
func (s *Socket) Close() api.Status {
	s.mu.Lock()
	s.state = api.StateClosing
	u := s.u
	rxQueue := s.rxQueue
	wq := s.workQueue
	txPipeline := s.txPipeline
	s.mu.Unlock()

	if txPipeline != nil {
		txPipeline.Seal()
		txPipeline.WaitDrained()
	}

	s.notifyCtl.BumpGeneration()
	s.notifyCtl.Close()

	if rxQueue != nil {
		rxQueue.Unregister()
	}
	if u != nil {
		u.Deref()
	}
	if wq != nil {
		wq.Close()
	}
	return api.StatusSuccess
}
