// File: xsk/socket_test.go
package xsk

import (
	"testing"
	"time"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/ring"
	"github.com/winxdp/xsk/umem"
	"github.com/winxdp/xsk/xdpif"
	"github.com/winxdp/xsk/xdpif/sim"
)

func newBoundSocket(t *testing.T) (*Socket, *sim.Interface) {
	t.Helper()
	iface := sim.New(7)
	s := New(iface, umem.NewProcessRef(1))

	buf := make([]byte, 2048*16)
	if status := s.SetUmem(umem.Registration{Buffer: buf, ChunkSize: 2048, Headroom: 64}); status != api.StatusSuccess {
		t.Fatalf("SetUmem failed: %v", status)
	}
	for _, kind := range []api.RingKind{api.RingFill, api.RingRx, api.RingTx, api.RingCompletion} {
		if status := s.SetRingSize(kind, 16); status != api.StatusSuccess {
			t.Fatalf("SetRingSize(%v) failed: %v", kind, status)
		}
	}
	if status := s.Bind(7, 0, api.BindRx|api.BindTx); status != api.StatusSuccess {
		t.Fatalf("Bind failed: %v", status)
	}
	if _, status := s.Activate(api.BindRx | api.BindTx); status != api.StatusSuccess {
		t.Fatalf("Activate failed: %v", status)
	}
	if s.State() != api.StateBound {
		t.Fatalf("expected state Bound, got %v", s.State())
	}
	return s, iface
}

func TestSocket_SetUmemRejectedOutsideUnbound(t *testing.T) {
	s, _ := newBoundSocket(t)
	status := s.SetUmem(umem.Registration{Buffer: make([]byte, 4096), ChunkSize: 2048})
	if status != api.StatusInvalidDeviceState {
		t.Fatalf("expected StatusInvalidDeviceState, got %v", status)
	}
}

func TestSocket_SetRingSizeRejectsNonPowerOfTwo(t *testing.T) {
	iface := sim.New(1)
	s := New(iface, umem.NewProcessRef(1))
	if status := s.SetRingSize(api.RingRx, 3); status != api.StatusInvalidParameter {
		t.Fatalf("expected StatusInvalidParameter, got %v", status)
	}
}

func TestSocket_BindFailsWithoutSizedRings(t *testing.T) {
	iface := sim.New(1)
	s := New(iface, umem.NewProcessRef(1))
	s.SetUmem(umem.Registration{Buffer: make([]byte, 4096), ChunkSize: 2048})
	status := s.Bind(1, 0, api.BindRx)
	if status != api.StatusInvalidParameter {
		t.Fatalf("expected StatusInvalidParameter, got %v", status)
	}
	if s.State() != api.StateUnbound {
		t.Fatalf("expected state to remain Unbound, got %v", s.State())
	}
}

func TestSocket_RxFrameFlowsThroughToRing(t *testing.T) {
	s, iface := newBoundSocket(t)

	n := s.fill.ProdReserve(1)
	if n == 0 {
		t.Fatal("expected fill ring capacity")
	}
	idx := s.fill.ProducerIndex()
	*s.fill.Element(idx) = 0
	s.fill.ProdSubmit(1)

	ok := iface.Deliver(0, xdpif.Frame{Fragments: [][]byte{[]byte("hello")}})
	if !ok {
		t.Fatal("expected frame delivery to succeed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.rxRing.ConsPeek(1) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s.rxRing.ConsPeek(1) == 0 {
		t.Fatal("expected an RX descriptor to become available")
	}
}

func TestSocket_TxFlushProducesCompletion(t *testing.T) {
	s, _ := newBoundSocket(t)

	copy(s.u.Chunk(0)[:5], []byte("hello"))
	n := s.txRing.ProdReserve(1)
	if n == 0 {
		t.Fatal("expected tx ring capacity")
	}
	idx := s.txRing.ProducerIndex()
	*s.txRing.Element(idx) = ring.NewBufferDescriptor(0, 0, 5)
	s.txRing.ProdSubmit(1)

	out, status := s.Notify(api.NotifyPokeTx, 0)
	if status != api.StatusSuccess {
		t.Fatalf("Notify failed: %v", status)
	}
	_ = out

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.compRing.ConsPeek(1) > 0 {
			break
		}
		s.poke(api.NotifyPokeTx)
		time.Sleep(10 * time.Millisecond)
	}
	if s.compRing.ConsPeek(1) == 0 {
		t.Fatal("expected a completion descriptor after flush")
	}
}

func TestSocket_SetChecksumOffloadClampsToCapabilitiesAndStampsRings(t *testing.T) {
	s, _ := newBoundSocket(t)

	s.txRing.ClearOffloadChanged()
	s.compRing.ClearOffloadChanged()
	s.rxRing.ClearOffloadChanged()
	s.fill.ClearOffloadChanged()

	status := s.SetChecksumOffload(api.ChecksumOffloadIPv4|api.ChecksumOffloadTCP, api.ChecksumOffloadUDP)
	if status != api.StatusSuccess {
		t.Fatalf("SetChecksumOffload failed: %v", status)
	}

	desc := s.GetChecksumOffload()
	if desc.TxEnabled != api.ChecksumOffloadIPv4|api.ChecksumOffloadTCP {
		t.Fatalf("unexpected TxEnabled: %v", desc.TxEnabled)
	}
	if desc.RxEnabled != api.ChecksumOffloadUDP {
		t.Fatalf("unexpected RxEnabled: %v", desc.RxEnabled)
	}
	if desc.Supported&api.ChecksumOffloadIPv4 == 0 {
		t.Fatalf("expected Supported to include IPv4, got %v", desc.Supported)
	}

	if !s.txRing.ClearOffloadChanged() {
		t.Fatal("expected txRing OFFLOAD_CHANGED to be set")
	}
	if !s.compRing.ClearOffloadChanged() {
		t.Fatal("expected compRing OFFLOAD_CHANGED to be set")
	}
	if !s.rxRing.ClearOffloadChanged() {
		t.Fatal("expected rxRing OFFLOAD_CHANGED to be set")
	}
	if !s.fill.ClearOffloadChanged() {
		t.Fatal("expected fill OFFLOAD_CHANGED to be set")
	}
}

func TestSocket_SetChecksumOffloadRejectsUnsupportedBits(t *testing.T) {
	iface := sim.New(7)
	iface.SetTxCapabilities(0, xdpif.Capabilities{ChecksumOffloadSupported: api.ChecksumOffloadIPv4})
	s := New(iface, umem.NewProcessRef(1))

	buf := make([]byte, 2048*16)
	if status := s.SetUmem(umem.Registration{Buffer: buf, ChunkSize: 2048, Headroom: 64}); status != api.StatusSuccess {
		t.Fatalf("SetUmem failed: %v", status)
	}
	for _, kind := range []api.RingKind{api.RingFill, api.RingRx, api.RingTx, api.RingCompletion} {
		if status := s.SetRingSize(kind, 16); status != api.StatusSuccess {
			t.Fatalf("SetRingSize(%v) failed: %v", kind, status)
		}
	}
	if status := s.Bind(7, 0, api.BindRx|api.BindTx); status != api.StatusSuccess {
		t.Fatalf("Bind failed: %v", status)
	}
	if _, status := s.Activate(api.BindRx | api.BindTx); status != api.StatusSuccess {
		t.Fatalf("Activate failed: %v", status)
	}

	status := s.SetChecksumOffload(api.ChecksumOffloadTCP, 0)
	if status != api.StatusInvalidParameter {
		t.Fatalf("expected StatusInvalidParameter, got %v", status)
	}
}

func TestSocket_CloseDrainsOutstandingTxBeforeReturning(t *testing.T) {
	s, _ := newBoundSocket(t)

	copy(s.u.Chunk(0)[:5], []byte("hello"))
	n := s.txRing.ProdReserve(1)
	if n == 0 {
		t.Fatal("expected tx ring capacity")
	}
	idx := s.txRing.ProducerIndex()
	*s.txRing.Element(idx) = ring.NewBufferDescriptor(0, 0, 5)
	s.txRing.ProdSubmit(1)
	s.poke(api.NotifyPokeTx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.txPipeline.OutstandingFrames() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if s.txPipeline.OutstandingFrames() == 0 {
		t.Fatal("expected a TX frame to become outstanding before Close")
	}

	done := make(chan api.Status, 1)
	go func() {
		done <- s.Close()
	}()

	select {
	case <-done:
		t.Fatal("Close returned before the outstanding TX frame drained")
	case <-time.After(100 * time.Millisecond):
	}

	s.poke(api.NotifyPokeTx)

	select {
	case status := <-done:
		if status != api.StatusSuccess {
			t.Fatalf("expected Close to succeed, got %v", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Close to drain and return")
	}

	if s.txPipeline.OutstandingFrames() != 0 {
		t.Fatalf("expected no outstanding frames after Close, got %d", s.txPipeline.OutstandingFrames())
	}
}

func TestSocket_NotifyWaitRxWakesOnData(t *testing.T) {
	s, iface := newBoundSocket(t)

	n := s.fill.ProdReserve(1)
	if n == 0 {
		t.Fatal("expected fill ring capacity")
	}
	idx := s.fill.ProducerIndex()
	*s.fill.Element(idx) = 0
	s.fill.ProdSubmit(1)

	done := make(chan api.Status, 1)
	go func() {
		_, status := s.Notify(api.NotifyWaitRx, 2*time.Second)
		done <- status
	}()

	time.Sleep(50 * time.Millisecond)
	iface.Deliver(0, xdpif.Frame{Fragments: [][]byte{[]byte("x")}})

	select {
	case status := <-done:
		if status != api.StatusSuccess {
			t.Fatalf("expected success, got %v", status)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for notify to observe RX data")
	}
}
