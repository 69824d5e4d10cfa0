// File: xsk/socket.go
// Package xsk implements the XSK socket (spec.md §3, §4.4): the
// control-surface state machine, UMEM attachment, ring sizing, and the
// bind/activate sequence that wires an RX/TX pipeline pair to a lower
// interface.
//
// Grounded on the teacher's server/hioload.go and server/server.go
// (a mutex-guarded lifecycle object moving through explicit states,
// exposing Start/Stop/Close-shaped control operations) generalized
// from an HTTP server's listen/serve/shutdown states to the socket's
// Unbound/Binding/Bound/Detached/Closing state machine.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xsk

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/bounce"
	"github.com/winxdp/xsk/control"
	"github.com/winxdp/xsk/notify"
	"github.com/winxdp/xsk/pollmode"
	"github.com/winxdp/xsk/ring"
	"github.com/winxdp/xsk/rxpath"
	"github.com/winxdp/xsk/txpath"
	"github.com/winxdp/xsk/umem"
	"github.com/winxdp/xsk/workqueue"
	"github.com/winxdp/xsk/xdpif"
)

// Socket is one XSK endpoint (spec.md §3's Socket data model).
type Socket struct {
	mu    sync.Mutex
	state api.SocketState

	u         *umem.Umem
	umemOwner umem.ProcessRef

	hookRx api.HookID
	hookTx api.HookID

	ringSize map[api.RingKind]uint32
	fill     *ring.SharedRing[ring.FillDescriptor]
	rxRing   *ring.SharedRing[ring.BufferDescriptor]
	txRing   *ring.SharedRing[ring.BufferDescriptor]
	compRing *ring.SharedRing[ring.CompletionDescriptor]

	rxPipeline *rxpath.Pipeline
	txPipeline *txpath.Pipeline
	bounceBuf  *bounce.Buffer

	iface   xdpif.Interface
	ifIndex uint32
	queueID uint32
	flags   api.BindFlag

	rxQueue xdpif.RxQueue
	txQueue xdpif.TxQueue

	// txNotify is the TX queue's notify_queue callback (spec.md §4.4),
	// captured at bind time and invoked by poke() in place of a
	// concrete-type assertion on the queue implementation.
	txNotify func()

	txChecksumOffload api.ChecksumOffload
	rxChecksumOffload api.ChecksumOffload

	workQueue *workqueue.Queue

	desiredPollMode api.PollMode
	pollMode        *pollmode.Controller
	notifyCtl       *notify.Controller

	datapathAttached bool
	processorCPU     int

	registry *control.Registry
}

// New allocates a zeroed socket bound to no UMEM, no rings, default
// hook ids, and state Unbound (spec.md §4.4's create).
func New(iface xdpif.Interface, owner umem.ProcessRef) *Socket {
	s := &Socket{
		state:     api.StateUnbound,
		iface:     iface,
		umemOwner: owner,
		hookRx:       api.DefaultRxHookID,
		hookTx:       api.DefaultTxHookID,
		ringSize:     make(map[api.RingKind]uint32),
		processorCPU: -1,
	}
	s.notifyCtl = notify.New(s)
	return s
}

// State returns the socket's current lifecycle state.
func (s *Socket) State() api.SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetUmem registers a new UMEM for this socket (spec.md §4.4's
// set_umem). Only permitted in Unbound with no UMEM already attached.
func (s *Socket) SetUmem(reg umem.Registration) api.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != api.StateUnbound {
		return api.StatusInvalidDeviceState
	}
	if s.u != nil {
		return api.StatusInvalidDeviceState
	}
	u, status := umem.Register(reg, s.umemOwner)
	if status != api.StatusSuccess {
		return status
	}
	if s.registry != nil {
		u.SetZeroCopyRx(s.registry.RxZeroCopy())
	}
	s.u = u
	s.bounceBuf = s.newBounceLocked(u)
	return api.StatusSuccess
}

// SetUmemShared attaches this socket to a peer's already-registered
// UMEM (spec.md §4.4: "supports sharing by handle"). The peer must
// also be Unbound and already own a UMEM.
func (s *Socket) SetUmemShared(peer *Socket) api.Status {
	peer.mu.Lock()
	if peer.state != api.StateUnbound || peer.u == nil {
		peer.mu.Unlock()
		return api.StatusInvalidDeviceState
	}
	peerUmem := peer.u
	peer.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != api.StateUnbound || s.u != nil {
		return api.StatusInvalidDeviceState
	}
	if status := peerUmem.Attach(); status != api.StatusSuccess {
		return status
	}
	if s.registry != nil {
		peerUmem.SetZeroCopyRx(s.registry.RxZeroCopy())
	}
	s.u = peerUmem
	s.bounceBuf = s.newBounceLocked(peerUmem)
	return api.StatusSuccess
}

// SetRegistry attaches the process-wide control registry this socket
// consults for the XskDisableTxBounce and XskRxZeroCopy controls.
// Takes effect on the next SetUmem/SetUmemShared call.
func (s *Socket) SetRegistry(r *control.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = r
}

// newBounceLocked builds the bounce buffer SetUmem/SetUmemShared
// install, honoring the XskDisableTxBounce registry control (spec.md
// §6): disabled means transmits map UMEM directly with no mirror.
func (s *Socket) newBounceLocked(u *umem.Umem) *bounce.Buffer {
	if s.registry != nil && s.registry.DisableTxBounce() {
		return bounce.NewPassthrough(u)
	}
	return bounce.New(u)
}

func isPow2(n uint32) bool { return n != 0 && n&(n-1) == 0 }

// SetRingSize sizes one of the four ring kinds (spec.md §4.4's
// set_ring_size). Only permitted in Unbound; n must be a power of two.
// The TX ring starts with NEED_POKE set, per spec.md §4.4.
func (s *Socket) SetRingSize(kind api.RingKind, n uint32) api.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != api.StateUnbound {
		return api.StatusInvalidDeviceState
	}
	if !isPow2(n) {
		return api.StatusInvalidParameter
	}

	switch kind {
	case api.RingFill:
		s.fill = ring.New[ring.FillDescriptor](n)
	case api.RingRx:
		s.rxRing = ring.New[ring.BufferDescriptor](n)
	case api.RingTx:
		s.txRing = ring.New[ring.BufferDescriptor](n)
		s.txRing.SetNeedPoke()
	case api.RingCompletion:
		s.compRing = ring.New[ring.CompletionDescriptor](n)
	default:
		return api.StatusInvalidParameter
	}
	s.ringSize[kind] = n
	return api.StatusSuccess
}

// SetHookID stores the hook id used at bind time (spec.md §4.4). Only
// permitted in Unbound.
func (s *Socket) SetHookID(dir api.HookDirection, hook api.HookID) api.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != api.StateUnbound {
		return api.StatusInvalidDeviceState
	}
	switch dir {
	case api.HookDirectionRx:
		s.hookRx = hook
	case api.HookDirectionTx:
		s.hookTx = hook
	default:
		return api.StatusInvalidParameter
	}
	return api.StatusSuccess
}

// SetPollMode records the desired poll mode (spec.md §4.7) and bumps
// the notify generation. The mode is applied through s.pollMode only
// when that controller is set and the datapath is attached; nothing in
// this package sets s.pollMode, and OnAttach does not apply a recorded
// mode, so here the mode is recorded and reported by PollMode only.
func (s *Socket) SetPollMode(mode api.PollMode) api.Status {
	s.mu.Lock()
	s.desiredPollMode = mode
	attached := s.datapathAttached
	controller := s.pollMode
	s.mu.Unlock()

	s.notifyCtl.BumpGeneration()
	if attached && controller != nil {
		return controller.SetMode(mode)
	}
	return api.StatusSuccess
}

func (s *Socket) log() *logrus.Entry {
	return logrus.WithField("if_index", s.ifIndex).WithField("queue_id", s.queueID)
}
