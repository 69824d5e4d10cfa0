// File: workqueue/workqueue_test.go
package workqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/winxdp/xsk/api"
)

func TestQueue_RunsInSubmissionOrder(t *testing.T) {
	q := New()
	var order []int32
	var mu sync.Mutex
	for i := int32(0); i < 5; i++ {
		i := i
		status := q.Submit("item", func() api.Status {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return api.StatusSuccess
		})
		if status != api.StatusSuccess {
			t.Fatalf("Submit failed: %v", status)
		}
	}
	for i, v := range order {
		if v != int32(i) {
			t.Fatalf("expected in-order execution, got %v", order)
		}
	}
}

func TestQueue_RejectsAfterClose(t *testing.T) {
	q := New()
	q.Close()
	status := q.Submit("noop", func() api.Status { return api.StatusSuccess })
	if status != api.StatusInvalidDeviceState {
		t.Fatalf("expected StatusInvalidDeviceState after close, got %v", status)
	}
}

func TestQueue_ConcurrentSubmitCounts(t *testing.T) {
	q := New()
	var n int32
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			q.Submit("count", func() api.Status {
				atomic.AddInt32(&n, 1)
				return api.StatusSuccess
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for submissions to complete")
		}
	}
	if atomic.LoadInt32(&n) != 8 {
		t.Fatalf("expected 8 completed items, got %d", n)
	}
}
