// File: xsk/bind.go
// Socket bind/activate sequence and the RX/TX bind work items run on
// the interface's serialized work queue (spec.md §4.4).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xsk

import (
	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/txpath"
	"github.com/winxdp/xsk/workqueue"
	"github.com/winxdp/xsk/xdpif"
)

// RingInfo describes the ring layout handed back by Activate (spec.md
// §4.4's "fills the outgoing ring-info set for the caller").
type RingInfo struct {
	FillSize       uint32
	RxSize         uint32
	TxSize         uint32
	CompletionSize uint32
}

// Bind dispatches one work item per enabled direction onto the
// interface's binding work queue and waits for each to complete
// (spec.md §4.4). On any failure it unwinds successfully-bound
// directions and restores Unbound.
func (s *Socket) Bind(ifIndex, queueID uint32, flags api.BindFlag) api.Status {
	if flags&(api.BindGeneric|api.BindNative) == (api.BindGeneric | api.BindNative) {
		return api.StatusInvalidParameter
	}
	rxEnabled := flags&api.BindRx != 0
	txEnabled := flags&api.BindTx != 0
	if !rxEnabled && !txEnabled {
		return api.StatusInvalidParameter
	}

	s.mu.Lock()
	if s.state != api.StateUnbound {
		s.mu.Unlock()
		return api.StatusInvalidDeviceState
	}
	if s.u == nil {
		s.mu.Unlock()
		return api.StatusInvalidDeviceState
	}
	if rxEnabled && (s.rxRing == nil || s.fill == nil) {
		s.mu.Unlock()
		return api.StatusInvalidParameter
	}
	if txEnabled && (s.txRing == nil || s.compRing == nil) {
		s.mu.Unlock()
		return api.StatusInvalidParameter
	}
	s.ifIndex, s.queueID, s.flags = ifIndex, queueID, flags
	s.state = api.StateBinding
	if s.workQueue == nil {
		s.workQueue = workqueue.New()
	}
	wq := s.workQueue
	s.mu.Unlock()

	var bound []api.BindFlag
	if rxEnabled {
		if status := wq.Submit("rx-bind", s.rxBindWork); status != api.StatusSuccess {
			s.unwind(bound)
			s.mu.Lock()
			s.state = api.StateUnbound
			s.mu.Unlock()
			return status
		}
		bound = append(bound, api.BindRx)
	}
	if txEnabled {
		if status := wq.Submit("tx-bind", s.txBindWork); status != api.StatusSuccess {
			s.unwind(bound)
			s.mu.Lock()
			s.state = api.StateUnbound
			s.mu.Unlock()
			return status
		}
		bound = append(bound, api.BindTx)
	}
	return api.StatusSuccess
}

func (s *Socket) unwind(bound []api.BindFlag) {
	for _, d := range bound {
		switch d {
		case api.BindRx:
			s.workQueue.Submit("rx-detach", s.rxDetachWork)
		case api.BindTx:
			s.workQueue.Submit("tx-detach", s.txDetachWork)
		}
	}
}

// Activate transitions Binding -> Bound and reports ring sizes (spec.md
// §4.4). Kept separate from Bind so callers may query ring info after
// binding completes but before relying on the datapath.
func (s *Socket) Activate(flags api.BindFlag) (RingInfo, api.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != api.StateBinding {
		return RingInfo{}, api.StatusInvalidDeviceState
	}
	s.state = api.StateBound
	return RingInfo{
		FillSize:       s.ringSize[api.RingFill],
		RxSize:         s.ringSize[api.RingRx],
		TxSize:         s.ringSize[api.RingTx],
		CompletionSize: s.ringSize[api.RingCompletion],
	}, api.StatusSuccess
}

// rxBindWork finds or opens the XDP RX queue and registers this socket
// as its notification sink (spec.md §4.4's "RX bind work").
func (s *Socket) rxBindWork() api.Status {
	q, status := s.iface.OpenRxQueue(s.hookRx, s.queueID)
	if status != api.StatusSuccess {
		return status
	}
	s.mu.Lock()
	s.rxQueue = q
	s.mu.Unlock()
	s.log().Debug("xsk: rx queue bound")
	return q.Register(s)
}

// rxDetachWork releases the RX queue reference during bind unwind.
func (s *Socket) rxDetachWork() api.Status {
	s.mu.Lock()
	q := s.rxQueue
	s.rxQueue = nil
	s.mu.Unlock()
	if q != nil {
		q.Unregister()
	}
	return api.StatusSuccess
}

// txBindWork creates the XDP TX queue, reads its capabilities, and
// builds the TX pipeline (spec.md §4.4's "TX bind work"; the DMA
// adapter / common-buffer steps have no usermode equivalent and are
// not modeled here, see DESIGN.md).
func (s *Socket) txBindWork() api.Status {
	q, status := s.iface.OpenTxQueue(s.hookTx, s.queueID)
	if status != api.StatusSuccess {
		return status
	}
	s.mu.Lock()
	s.txQueue = q
	s.txNotify = q.NotifyQueue()
	s.txPipeline = txpath.New(s.txRing, s.compRing, s.u, s.bounceBuf, q)
	s.txPipeline.Waiter = s.notifyCtl
	s.txPipeline.PastBound = func() bool { return s.State() > api.StateBound }
	s.mu.Unlock()
	s.log().Debug("xsk: tx queue bound")
	return api.StatusSuccess
}

// txDetachWork drops the TX queue reference during bind unwind or a
// lower-layer TX detach event.
func (s *Socket) txDetachWork() api.Status {
	s.mu.Lock()
	s.txQueue = nil
	s.txNotify = nil
	s.txPipeline = nil
	s.mu.Unlock()
	return api.StatusSuccess
}

// HandleTxDetach implements the TX detach event spec.md §4.4 describes:
// "state transition Bound -> Detached; dispatches TX-detach work."
func (s *Socket) HandleTxDetach() {
	s.mu.Lock()
	if s.state == api.StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = api.StateDetached
	wq := s.workQueue
	s.mu.Unlock()

	s.notifyCtl.BumpGeneration()
	if wq != nil {
		wq.Submit("tx-detach", s.txDetachWork)
	}
}

// OnAttach implements xdpif.RxSink (spec.md §4.4's ATTACH notification):
// captures the frame source, builds the RX pipeline, and starts
// consuming frames.
func (s *Socket) OnAttach(a xdpif.RxAttach) {
	s.mu.Lock()
	pipeline := newRxPipelineLocked(s)
	s.rxPipeline = pipeline
	s.datapathAttached = true
	s.mu.Unlock()

	go s.runRxLoop(a, pipeline)
}

// OnDetach implements xdpif.RxSink (spec.md §4.4 DETACH): releases
// polling backchannels. This implementation holds no backchannel in any
// poll mode, so it only marks the datapath detached.
func (s *Socket) OnDetach() {
	s.mu.Lock()
	s.datapathAttached = false
	s.mu.Unlock()
}

// OnDetachComplete implements xdpif.RxSink (spec.md §4.4
// DETACH_COMPLETE): drops captured pointers.
func (s *Socket) OnDetachComplete() {
	s.mu.Lock()
	s.rxPipeline = nil
	s.mu.Unlock()
}

// OnDelete implements xdpif.RxSink (spec.md §4.4 DELETE): closes the RX
// queue reference.
func (s *Socket) OnDelete() {
	s.mu.Lock()
	s.rxQueue = nil
	s.mu.Unlock()
}
