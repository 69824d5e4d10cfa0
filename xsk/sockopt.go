// File: xsk/sockopt.go
// get_sockopt/set_sockopt surface (spec.md §4.4, §6): ring infos,
// statistics, hook ids, per-direction ring errors, processor affinity,
// checksum-offload, and poll mode.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xsk

import (
	"strconv"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/control"
)

// SetProcessorAffinity pins this socket's bind/detach work queue to a
// logical CPU (spec.md §6, §4.4's set_sockopt processor-affinity
// option) and stamps RingFlagAffinityChanged on every ring this socket
// currently owns, so a reader polling ring flags observes the change.
func (s *Socket) SetProcessorAffinity(cpuID int) api.Status {
	s.mu.Lock()
	s.processorCPU = cpuID
	wq := s.workQueue
	fill, rxRing, txRing, compRing := s.fill, s.rxRing, s.txRing, s.compRing
	s.mu.Unlock()

	if wq != nil {
		wq.SetAffinity(cpuID)
	}
	if fill != nil {
		fill.SetAffinityChanged()
	}
	if rxRing != nil {
		rxRing.SetAffinityChanged()
	}
	if txRing != nil {
		txRing.SetAffinityChanged()
	}
	if compRing != nil {
		compRing.SetAffinityChanged()
	}
	return api.StatusSuccess
}

// ProcessorAffinity returns the CPU id set by SetProcessorAffinity, or
// -1 if none has been set.
func (s *Socket) ProcessorAffinity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processorCPU
}

// SetChecksumOffload applies the SET_SOCKOPT tx/rx checksum-offload
// enable option (spec.md §4.4, §6). A mask with any bit the bound TX/RX
// queue does not advertise as supported is rejected with
// StatusInvalidParameter. When either mask changes, it stamps
// RingFlagOffloadChanged on every ring this socket currently owns so a
// reader polling ring flags observes the change.
func (s *Socket) SetChecksumOffload(txMask, rxMask api.ChecksumOffload) api.Status {
	s.mu.Lock()
	if s.txQueue != nil {
		if txMask&^s.txQueue.Capabilities().ChecksumOffloadSupported != 0 {
			s.mu.Unlock()
			return api.StatusInvalidParameter
		}
	}
	if s.rxQueue != nil {
		if rxMask&^s.rxQueue.Capabilities().ChecksumOffloadSupported != 0 {
			s.mu.Unlock()
			return api.StatusInvalidParameter
		}
	}
	changed := txMask != s.txChecksumOffload || rxMask != s.rxChecksumOffload
	s.txChecksumOffload = txMask
	s.rxChecksumOffload = rxMask
	fill, rxRing, txRing, compRing := s.fill, s.rxRing, s.txRing, s.compRing
	s.mu.Unlock()

	if !changed {
		return api.StatusSuccess
	}
	if fill != nil {
		fill.SetOffloadChanged()
	}
	if rxRing != nil {
		rxRing.SetOffloadChanged()
	}
	if txRing != nil {
		txRing.SetOffloadChanged()
	}
	if compRing != nil {
		compRing.SetOffloadChanged()
	}
	return api.StatusSuccess
}

// GetChecksumOffload returns the GET_SOCKOPT checksum extension
// descriptor: the union of what the bound queues support, and what is
// currently enabled per direction.
func (s *Socket) GetChecksumOffload() api.ChecksumOffloadDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	var supported api.ChecksumOffload
	if s.txQueue != nil {
		supported |= s.txQueue.Capabilities().ChecksumOffloadSupported
	}
	if s.rxQueue != nil {
		supported |= s.rxQueue.Capabilities().ChecksumOffloadSupported
	}
	return api.ChecksumOffloadDescriptor{
		Supported: supported,
		TxEnabled: s.txChecksumOffload,
		RxEnabled: s.rxChecksumOffload,
	}
}

// Statistics is the GET_SOCKOPT statistics snapshot (spec.md §7's
// rx_dropped/rx_invalid_descriptors/rx_truncated/tx_invalid_descriptors
// counters, surfaced through ReportMetrics and control.MetricsRegistry
// in the CLI harness).
type Statistics struct {
	RxDropped            int64
	RxInvalidDescriptors int64
	RxTruncated          int64
	TxInvalidDescriptors int64
}

// GetStatistics returns a point-in-time snapshot of this socket's
// datapath counters.
func (s *Socket) GetStatistics() Statistics {
	s.mu.Lock()
	rx, tx := s.rxPipeline, s.txPipeline
	s.mu.Unlock()

	var out Statistics
	if rx != nil {
		out.RxDropped = rx.Stats.RxDropped
		out.RxInvalidDescriptors = rx.Stats.RxInvalidDescriptors
		out.RxTruncated = rx.Stats.RxTruncated
	}
	if tx != nil {
		out.TxInvalidDescriptors = tx.Stats.TxInvalidDescriptors
	}
	return out
}

// GetRingInfo reports the currently configured ring sizes.
func (s *Socket) GetRingInfo() RingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RingInfo{
		FillSize:       s.ringSize[api.RingFill],
		RxSize:         s.ringSize[api.RingRx],
		TxSize:         s.ringSize[api.RingTx],
		CompletionSize: s.ringSize[api.RingCompletion],
	}
}

// GetHookIDs returns the hook ids in effect for RX and TX.
func (s *Socket) GetHookIDs() (rx, tx api.HookID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hookRx, s.hookTx
}

// RingError reports the sticky error code (if any) for one ring kind.
func (s *Socket) RingError(kind api.RingKind) api.RingError {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case api.RingRx:
		if s.rxRing != nil {
			return s.rxRing.Error()
		}
	case api.RingFill:
		if s.fill != nil {
			return s.fill.Error()
		}
	case api.RingTx:
		if s.txRing != nil {
			return s.txRing.Error()
		}
	case api.RingCompletion:
		if s.compRing != nil {
			return s.compRing.Error()
		}
	}
	return api.RingErrorNone
}

// BindFlags returns the flags passed to Bind.
func (s *Socket) BindFlags() api.BindFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// ReportMetrics pushes this socket's current statistics into a shared
// prometheus-backed registry, labeled by its bound interface/queue.
func (s *Socket) ReportMetrics(mr *control.MetricsRegistry) {
	s.mu.Lock()
	ifIndex, queueID := s.ifIndex, s.queueID
	rx, tx := s.rxPipeline, s.txPipeline
	s.mu.Unlock()

	var stats Statistics
	var outstanding int32
	if rx != nil {
		stats.RxDropped = rx.Stats.RxDropped
		stats.RxInvalidDescriptors = rx.Stats.RxInvalidDescriptors
		stats.RxTruncated = rx.Stats.RxTruncated
	}
	if tx != nil {
		stats.TxInvalidDescriptors = tx.Stats.TxInvalidDescriptors
		outstanding = tx.OutstandingFrames()
	}

	mr.Observe(strconv.FormatUint(uint64(ifIndex), 10), strconv.FormatUint(uint64(queueID), 10),
		stats.RxDropped, stats.RxInvalidDescriptors, stats.RxTruncated, stats.TxInvalidDescriptors, outstanding)
}

// PollMode returns the poll mode currently in effect.
func (s *Socket) PollMode() api.PollMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desiredPollMode
}
