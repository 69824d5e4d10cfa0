// File: xdpif/xdpif.go
// Package xdpif defines the boundary between the XSK datapath core and
// its lower-layer collaborators: the XDP RX/TX queues and the
// interface binding machinery spec.md §1 and §4.4 describe as external
// to this module. A real build wires these to actual NIC miniport
// queues; xdpif/sim provides an in-memory loopback implementation for
// tests and the simulation CLI.
//
// Grounded on the teacher's adapters/ package pattern of small
// interfaces describing an external transport collaborator
// (core/protocol and adapters/* separate "what we need from the
// outside world" from "how we implement our own side").
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xdpif

import "github.com/winxdp/xsk/api"

// Capabilities describes an XDP queue's negotiated limits (spec.md §4.4
// "reads its capabilities").
type Capabilities struct {
	MaxBufferLength          uint32
	MaxFrameLength           uint32
	OutOfOrderCompletion     bool
	LogicalAddressEnabled    bool
	VirtualAddressEnabled    bool
	MdlExtensionEnabled      bool
	ChecksumOffloadSupported api.ChecksumOffload
}

// Frame is one ingress frame as delivered by the RX queue: Fragments[0]
// is the frame's first buffer, any remaining entries are additional
// fragments (spec.md §4.5's fragment ring iteration).
type Frame struct {
	Fragments [][]byte
}

// Interface is the XDP binding target identified by if_index in bind()
// (spec.md §4.4).
type Interface interface {
	IfIndex() uint32
	OpenRxQueue(hook api.HookID, queueID uint32) (RxQueue, api.Status)
	OpenTxQueue(hook api.HookID, queueID uint32) (TxQueue, api.Status)
}

// RxQueue is the XDP RX queue a socket's RX subcomponent binds to
// (spec.md §4.4 "RX bind work").
type RxQueue interface {
	QueueID() uint32
	Capabilities() Capabilities
	Register(sink RxSink) api.Status
	Unregister()
}

// RxSink receives the notification sequence spec.md §4.4 describes:
// ATTACH, DETACH, DETACH_COMPLETE, DELETE.
type RxSink interface {
	OnAttach(a RxAttach)
	OnDetach()
	OnDetachComplete()
	OnDelete()
}

// RxAttach is delivered on ATTACH. Frames carries ingress frames;
// Action, when non-nil, lets a batched-exclusive consumer stamp the
// per-frame action extension (spec.md §4.5's "writes
// XDP_RX_ACTION_DROP ... before advancing").
type RxAttach struct {
	Frames <-chan Frame
	Action func(api.RxAction)
}

// TxQueue is the XDP TX queue a socket's TX subcomponent binds to
// (spec.md §4.4 "TX bind work").
type TxQueue interface {
	QueueID() uint32
	Capabilities() Capabilities
	// SetFlushCallback registers the socket's flush_transmit entry
	// point (spec.md §4.6); the queue invokes it at its own cadence.
	SetFlushCallback(flush func())
	// FreeSlots reports xdp_tx_free: how many NIC-side slots remain.
	FreeSlots() uint32
	// Submit posts one outbound descriptor (the product of txpath's
	// enqueue phase) to the NIC-side frame ring.
	Submit(umemAddr uint64, length uint32) api.Status
	// ReapCompletions returns UMEM-relative addresses NIC-completed
	// since the last call (in-order or out-of-order per Capabilities).
	ReapCompletions() []uint64
	// NotifyQueue returns the interface's wake callback (spec.md §4.4
	// "captures the interface's notify_queue callback").
	NotifyQueue() func()
}
