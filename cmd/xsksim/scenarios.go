// File: cmd/xsksim/scenarios.go
// Drives the testable properties the datapath core was built against
// (a logged walk-through of each property, not a substitute for the
// package test suites) against the in-memory simulated interface, for
// manual exploration and demos.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/control"
	"github.com/winxdp/xsk/ring"
	"github.com/winxdp/xsk/umem"
	"github.com/winxdp/xsk/xdpif"
	"github.com/winxdp/xsk/xdpif/sim"
	"github.com/winxdp/xsk/xsk"
)

// scenario is one named, runnable demonstration.
type scenario struct {
	name string
	desc string
	run  func(log *logrus.Entry, reg *control.Registry) error
}

var scenarios = []scenario{
	{"s1", "single RX frame", scenarioSingleRxFrame},
	{"s2", "bounced TX", scenarioBouncedTx},
	{"s3", "out-of-order completion", scenarioOutOfOrderCompletion},
	{"s4", "MTU violation", scenarioMTUViolation},
	{"s5", "wait with timeout", scenarioWaitTimeout},
	{"s6", "wait then wake", scenarioWaitThenWake},
	{"s7", "shared UMEM", scenarioSharedUmem},
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

func newBoundSocket(log *logrus.Entry, reg *control.Registry, iface *sim.Interface, ifIndex, queueID uint32, bufLen int, chunkSize, headroom uint32, flags api.BindFlag) (*xsk.Socket, error) {
	s := xsk.New(iface, umem.NewProcessRef(1))
	s.SetRegistry(reg)
	buf := make([]byte, bufLen)
	if status := s.SetUmem(umem.Registration{Buffer: buf, ChunkSize: chunkSize, Headroom: headroom}); status != api.StatusSuccess {
		return nil, fmt.Errorf("set_umem: %v", status)
	}
	for _, kind := range []api.RingKind{api.RingFill, api.RingRx, api.RingTx, api.RingCompletion} {
		if status := s.SetRingSize(kind, 16); status != api.StatusSuccess {
			return nil, fmt.Errorf("set_ring_size(%v): %v", kind, status)
		}
	}
	if status := s.Bind(ifIndex, queueID, flags); status != api.StatusSuccess {
		return nil, fmt.Errorf("bind: %v", status)
	}
	if _, status := s.Activate(flags); status != api.StatusSuccess {
		return nil, fmt.Errorf("activate: %v", status)
	}
	log.WithField("scenario", "bind").Debug("socket bound")
	return s, nil
}

func scenarioSingleRxFrame(log *logrus.Entry, reg *control.Registry) error {
	iface := sim.New(1)
	s, err := newBoundSocket(log, reg, iface, 1, 0, 64*1024, 4096, 0, api.BindRx)
	if err != nil {
		return err
	}

	fill, rx := socketRings(s)
	if fill.ProdReserve(1) == 0 {
		return fmt.Errorf("no fill capacity")
	}
	idx := fill.ProducerIndex()
	*fill.Element(idx) = 0
	fill.ProdSubmit(1)

	payload := "GenericRxSingleFrame"
	iface.Deliver(0, xdpif.Frame{Fragments: [][]byte{[]byte(payload)}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && rx.ConsPeek(1) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if rx.ConsPeek(1) == 0 {
		return fmt.Errorf("no RX descriptor arrived")
	}
	d := *rx.Element(rx.ConsumerIndex())
	log.WithFields(logrus.Fields{
		"base": d.Base(), "offset": d.Offset(), "length": d.Length,
	}).Info("s1: rx descriptor observed")
	return nil
}

func scenarioBouncedTx(log *logrus.Entry, reg *control.Registry) error {
	iface := sim.New(1)
	s, err := newBoundSocket(log, reg, iface, 1, 0, 64*1024, 4096, 0, api.BindTx)
	if err != nil {
		return err
	}
	u := socketUmem(s)
	payload := append([]byte{0xA5, 0xCC, 0x77, 0x29, 0xCE, 0x99, 0xC1, 0x6A}, []byte("GenericTxSingleFrame\x00")...)
	copy(u.Chunk(0)[13:13+len(payload)], payload)

	tx, comp := socketTxRings(s)
	idx := tx.ProducerIndex()
	if tx.ProdReserve(1) == 0 {
		return fmt.Errorf("no tx capacity")
	}
	*tx.Element(idx) = ring.NewBufferDescriptor(0, 13, uint32(len(payload)))
	tx.ProdSubmit(1)

	s.Notify(api.NotifyPokeTx, 0)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && comp.ConsPeek(1) == 0 {
		s.Poke(api.NotifyPokeTx)
		time.Sleep(5 * time.Millisecond)
	}
	if comp.ConsPeek(1) == 0 {
		return fmt.Errorf("no completion arrived")
	}
	log.WithField("completion", *comp.Element(comp.ConsumerIndex())).Info("s2: completion observed")
	return nil
}

func scenarioOutOfOrderCompletion(log *logrus.Entry, reg *control.Registry) error {
	iface := sim.New(1)
	s, err := newBoundSocket(log, reg, iface, 1, 0, 64*1024, 4096, 0, api.BindTx)
	if err != nil {
		return err
	}
	q, status := iface.OpenTxQueue(api.DefaultTxHookID, 0)
	if status != api.StatusSuccess {
		return fmt.Errorf("open tx queue: %v", status)
	}
	simQueue, ok := q.(*sim.TxQueue)
	if !ok {
		return fmt.Errorf("expected *sim.TxQueue, got %T", q)
	}

	u := socketUmem(s)
	copy(u.Chunk(0)[:1], []byte{0})
	copy(u.Chunk(4096)[:1], []byte{0})

	tx, comp := socketTxRings(s)
	tx.ProdReserve(2)
	base := tx.ProducerIndex()
	*tx.Element(base) = ring.NewBufferDescriptor(0, 0, 1)
	*tx.Element(base + 1) = ring.NewBufferDescriptor(4096, 0, 1)
	tx.ProdSubmit(2)
	s.Notify(api.NotifyPokeTx, 0)
	time.Sleep(20 * time.Millisecond)

	simQueue.SetCompletionReorder(func(submitted []uint64) []uint64 {
		reordered := make([]uint64, len(submitted))
		for i, addr := range submitted {
			reordered[len(submitted)-1-i] = addr
		}
		return reordered
	})
	s.Poke(api.NotifyPokeTx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && comp.ConsPeek(2) < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	if comp.ConsPeek(2) < 2 {
		return fmt.Errorf("expected 2 completions, got %d", comp.ConsPeek(2))
	}
	idx := comp.ConsumerIndex()
	first, second := *comp.Element(idx), *comp.Element(idx+1)
	log.WithFields(logrus.Fields{"first": first, "second": second}).Info("s3: completion order observed")
	if first != 4096 || second != 0 {
		return fmt.Errorf("expected completion order [4096, 0], got [%d, %d]", first, second)
	}
	return nil
}

func scenarioMTUViolation(log *logrus.Entry, reg *control.Registry) error {
	iface := sim.New(1)
	iface.SetTxCapabilities(0, xdpif.Capabilities{MaxBufferLength: 4096, MaxFrameLength: 2048, VirtualAddressEnabled: true})
	s, err := newBoundSocket(log, reg, iface, 1, 0, 64*1024, 4096, 0, api.BindTx)
	if err != nil {
		return err
	}
	tx, _ := socketTxRings(s)
	idx := tx.ProducerIndex()
	tx.ProdReserve(1)
	*tx.Element(idx) = ring.NewBufferDescriptor(0, 0, 2049)
	tx.ProdSubmit(1)

	s.Notify(api.NotifyPokeTx, 0)
	time.Sleep(50 * time.Millisecond)
	s.Poke(api.NotifyPokeTx)

	stats := s.GetStatistics()
	log.WithField("tx_invalid_descriptors", stats.TxInvalidDescriptors).Info("s4: MTU violation accounted")
	if stats.TxInvalidDescriptors != 1 {
		return fmt.Errorf("expected tx_invalid_descriptors == 1, got %d", stats.TxInvalidDescriptors)
	}
	return nil
}

func scenarioWaitTimeout(log *logrus.Entry, reg *control.Registry) error {
	iface := sim.New(1)
	s, err := newBoundSocket(log, reg, iface, 1, 0, 64*1024, 4096, 0, api.BindRx)
	if err != nil {
		return err
	}
	start := time.Now()
	out, status := s.Notify(api.NotifyWaitRx, time.Second)
	elapsed := time.Since(start)
	log.WithFields(logrus.Fields{"status": status, "out_flags": out, "elapsed": elapsed}).Info("s5: wait timed out")
	if status != api.StatusTimeout {
		return fmt.Errorf("expected StatusTimeout, got %v", status)
	}
	return nil
}

func scenarioWaitThenWake(log *logrus.Entry, reg *control.Registry) error {
	iface := sim.New(1)
	s, err := newBoundSocket(log, reg, iface, 1, 0, 64*1024, 4096, 0, api.BindRx)
	if err != nil {
		return err
	}
	fill, _ := socketRings(s)
	fill.ProdReserve(1)
	*fill.Element(fill.ProducerIndex()) = 0
	fill.ProdSubmit(1)

	done := make(chan api.ResultFlag, 1)
	go func() {
		out, _ := s.Notify(api.NotifyWaitRx, 2*time.Second)
		done <- out
	}()

	time.Sleep(10 * time.Millisecond)
	iface.Deliver(0, xdpif.Frame{Fragments: [][]byte{[]byte("x")}})

	select {
	case out := <-done:
		log.WithField("out_flags", out).Info("s6: woke on RX data")
	case <-time.After(3 * time.Second):
		return fmt.Errorf("timed out waiting for wake")
	}
	return nil
}

func scenarioSharedUmem(log *logrus.Entry, reg *control.Registry) error {
	iface := sim.New(1)
	a := xsk.New(iface, umem.NewProcessRef(1))
	a.SetRegistry(reg)
	if status := a.SetUmem(umem.Registration{Buffer: make([]byte, 64*1024), ChunkSize: 4096}); status != api.StatusSuccess {
		return fmt.Errorf("A set_umem: %v", status)
	}
	for _, kind := range []api.RingKind{api.RingFill, api.RingRx} {
		a.SetRingSize(kind, 16)
	}
	if status := a.Bind(1, 0, api.BindRx); status != api.StatusSuccess {
		return fmt.Errorf("A bind: %v", status)
	}
	a.Activate(api.BindRx)

	b := xsk.New(iface, umem.NewProcessRef(2))
	b.SetRegistry(reg)
	if status := b.SetUmemShared(a); status != api.StatusSuccess {
		return fmt.Errorf("B set_umem_shared: %v", status)
	}
	for _, kind := range []api.RingKind{api.RingTx, api.RingCompletion} {
		b.SetRingSize(kind, 16)
	}
	if status := b.Bind(1, 0, api.BindTx); status != api.StatusSuccess {
		return fmt.Errorf("B bind: %v", status)
	}
	b.Activate(api.BindTx)

	log.Info("s7: A and B share one UMEM; closing A leaves it mapped while B still holds a reference")
	a.Close()
	b.Close()
	return nil
}

func socketRings(s *xsk.Socket) (*ring.SharedRing[ring.FillDescriptor], *ring.SharedRing[ring.BufferDescriptor]) {
	return s.DebugFillRing(), s.DebugRxRing()
}

func socketTxRings(s *xsk.Socket) (*ring.SharedRing[ring.BufferDescriptor], *ring.SharedRing[ring.CompletionDescriptor]) {
	return s.DebugTxRing(), s.DebugCompletionRing()
}

func socketUmem(s *xsk.Socket) *umem.Umem {
	return s.DebugUmem()
}
