// control/registry_test.go
package control

import (
	"testing"
	"time"
)

func TestRegistry_DefaultsOff(t *testing.T) {
	r := NewRegistry()
	if r.DisableTxBounce() {
		t.Fatal("expected DisableTxBounce to default off")
	}
	if r.RxZeroCopy() {
		t.Fatal("expected RxZeroCopy to default off")
	}
}

func TestRegistry_SetDispatchesReload(t *testing.T) {
	r := NewRegistry()
	got := make(chan RegistrySnapshot, 1)
	r.OnReload(func(s RegistrySnapshot) { got <- s })

	r.SetDisableTxBounce(true)

	select {
	case s := <-got:
		if !s.DisableTxBounce {
			t.Fatal("expected snapshot to reflect the new value")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reload dispatch")
	}
}

func TestRegistry_GetSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.SetRxZeroCopy(true)
	snap := r.GetSnapshot()
	r.SetRxZeroCopy(false)
	if !snap.RxZeroCopy {
		t.Fatal("expected the earlier snapshot to be unaffected by a later change")
	}
}

func TestDebugProbes_RegisterAndDump(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	out := dp.DumpState()
	if out["answer"] != 42 {
		t.Fatalf("expected probe value 42, got %v", out["answer"])
	}
	dp.UnregisterProbe("answer")
	if _, ok := dp.DumpState()["answer"]; ok {
		t.Fatal("expected probe to be removed")
	}
}

func TestMetricsRegistry_ObserveAndSnapshot(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Observe("1", "0", 3, 1, 2, 0, 5)
	snap := mr.GetSnapshot("1", "0")
	if snap["rx_dropped"] != float64(3) {
		t.Fatalf("expected rx_dropped 3, got %v", snap["rx_dropped"])
	}
	if snap["rx_invalid_descriptors"] != float64(1) {
		t.Fatalf("expected rx_invalid_descriptors 1, got %v", snap["rx_invalid_descriptors"])
	}
}

func TestMetricsRegistry_ObserveIsMonotonic(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Observe("1", "0", 3, 0, 0, 0, 0)
	mr.Observe("1", "0", 1, 0, 0, 0, 0) // lower value: must not decrement the counter
	snap := mr.GetSnapshot("1", "0")
	if snap["rx_dropped"] != float64(3) {
		t.Fatalf("expected counter to stay at 3, got %v", snap["rx_dropped"])
	}
}
