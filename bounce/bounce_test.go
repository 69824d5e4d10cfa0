// File: bounce/bounce_test.go
package bounce

import (
	"testing"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/umem"
)

func newTestUmem(t *testing.T, chunkSize uint32, chunks int) *umem.Umem {
	t.Helper()
	buf := make([]byte, int(chunkSize)*chunks)
	u, status := umem.Register(umem.Registration{
		Buffer:    buf,
		ChunkSize: chunkSize,
	}, umem.NewProcessRef(1))
	if status != api.StatusSuccess {
		t.Fatalf("umem.Register failed: %v", status)
	}
	return u
}

func TestBounce_RejectsStraddlingDescriptor(t *testing.T) {
	u := newTestUmem(t, 2048, 4)
	b := New(u)

	if _, status := b.Bounce(0, 2000, 100); status == api.StatusSuccess {
		t.Fatal("expected straddling descriptor to be rejected")
	}
}

func TestBounce_CopiesOnFirstPost(t *testing.T) {
	u := newTestUmem(t, 2048, 4)
	src := u.Chunk(2048)
	copy(src, []byte("hello"))

	b := New(u)
	mapping, status := b.Bounce(2048, 0, 5)
	if status != api.StatusSuccess {
		t.Fatalf("Bounce failed: %v", status)
	}
	if string(mapping[:5]) != "hello" {
		t.Fatalf("expected mirrored bytes %q, got %q", "hello", mapping[:5])
	}
	if got := b.InFlight(2048); got != 1 {
		t.Fatalf("expected in-flight counter 1, got %d", got)
	}
}

func TestBounce_ImmutableWhileInFlight(t *testing.T) {
	u := newTestUmem(t, 2048, 4)
	src := u.Chunk(0)
	copy(src, []byte("first"))

	b := New(u)
	first, status := b.Bounce(0, 0, 5)
	if status != api.StatusSuccess {
		t.Fatalf("Bounce failed: %v", status)
	}
	if string(first[:5]) != "first" {
		t.Fatalf("expected %q, got %q", "first", first[:5])
	}

	// Application mutates the UMEM chunk while the first transmit is
	// still outstanding (in-flight counter == 1).
	copy(src, []byte("later"))

	second, status := b.Bounce(0, 0, 5)
	if status != api.StatusSuccess {
		t.Fatalf("Bounce failed: %v", status)
	}
	if string(second[:5]) != "first" {
		t.Fatalf("bounce mirror must stay frozen at %q while in flight, got %q", "first", second[:5])
	}
	if got := b.InFlight(0); got != 2 {
		t.Fatalf("expected in-flight counter 2, got %d", got)
	}

	b.Release(0)
	b.Release(0)
	if got := b.InFlight(0); got != 0 {
		t.Fatalf("expected in-flight counter 0 after release, got %d", got)
	}

	// Counter has drained; the next bounce may refresh from UMEM.
	third, status := b.Bounce(0, 0, 5)
	if status != api.StatusSuccess {
		t.Fatalf("Bounce failed: %v", status)
	}
	if string(third[:5]) != "later" {
		t.Fatalf("expected refreshed bytes %q, got %q", "later", third[:5])
	}
}

func TestBounce_Passthrough(t *testing.T) {
	u := newTestUmem(t, 2048, 4)
	src := u.Chunk(0)
	copy(src, []byte("direct"))

	b := NewPassthrough(u)
	if b.Configured() {
		t.Fatal("passthrough buffer must report Configured() == false")
	}

	mapping, status := b.Bounce(0, 0, 6)
	if status != api.StatusSuccess {
		t.Fatalf("Bounce failed: %v", status)
	}
	if string(mapping[:6]) != "direct" {
		t.Fatalf("expected passthrough UMEM bytes %q, got %q", "direct", mapping[:6])
	}

	// Mutating UMEM is immediately visible through passthrough mapping.
	copy(src, []byte("change"))
	mapping2, _ := b.Bounce(0, 0, 6)
	if string(mapping2[:6]) != "change" {
		t.Fatalf("passthrough must reflect live UMEM, got %q", mapping2[:6])
	}

	b.Release(0) // no-op, must not panic
}

func TestBounce_RejectsInvalidChunkBase(t *testing.T) {
	u := newTestUmem(t, 2048, 4)
	b := New(u)
	if _, status := b.Bounce(9999999, 0, 10); status == api.StatusSuccess {
		t.Fatal("expected invalid chunk base to be rejected")
	}
}
