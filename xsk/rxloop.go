// File: xsk/rxloop.go
// Wires a freshly-attached RX queue's frame channel into an
// rxpath.Pipeline.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xsk

import (
	"github.com/winxdp/xsk/rxpath"
	"github.com/winxdp/xsk/xdpif"
)

// newRxPipelineLocked builds an RX pipeline from the socket's
// already-sized fill/RX rings. Caller must hold s.mu.
func newRxPipelineLocked(s *Socket) *rxpath.Pipeline {
	p := rxpath.New(s.fill, s.rxRing, s.u)
	p.ZeroCopy = s.u.ZeroCopyRx()
	p.Waiter = s.notifyCtl
	return p
}

// runRxLoop drains a's frame channel into pipeline one frame at a time
// until the channel is closed (interface torn down), the
// batched-exclusive entry point of spec.md §4.5.
func (s *Socket) runRxLoop(a xdpif.RxAttach, pipeline *rxpath.Pipeline) {
	for frame := range a.Frames {
		pipeline.ConsumeExclusive([]xdpif.Frame{frame}, a.Action)
	}
}
