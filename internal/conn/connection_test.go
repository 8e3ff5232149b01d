package conn

import (
	"io"
	"testing"
	"time"

	"github.com/wanhive/overlay-hub/internal/wire"
)

type nopSocket struct{}

func (nopSocket) Read(p []byte) (int, error)  { return 0, io.EOF }
func (nopSocket) Write(p []byte) (int, error) { return len(p), nil }
func (nopSocket) Close() error                { return nil }

func TestBitsetSetClearTest(t *testing.T) {
	var b Bitset
	b.Set(42)
	if !b.Test(42) {
		t.Fatal("expected bit 42 set")
	}
	if b.Test(41) {
		t.Fatal("bit 41 should be unset")
	}
	b.Clear(42)
	if b.Test(42) {
		t.Fatal("expected bit 42 cleared")
	}
}

func TestBitsetAny(t *testing.T) {
	var b Bitset
	if b.Any() {
		t.Fatal("fresh bitset should report no subscriptions")
	}
	b.Set(255)
	if !b.Any() {
		t.Fatal("expected Any() true after Set(255)")
	}
}

func TestQueueBoundedBackpressure(t *testing.T) {
	q := NewQueue(2)
	if !q.Push(wire.New()) || !q.Push(wire.New()) {
		t.Fatal("expected first two pushes to succeed")
	}
	if q.Push(wire.New()) {
		t.Fatal("expected third push to be rejected under cap")
	}
	if q.Len() != 2 {
		t.Fatalf("len=%d, want 2", q.Len())
	}
}

func TestQueueUnboundedFIFOOrder(t *testing.T) {
	q := NewQueue(0)
	a, b, c := wire.New(), wire.New(), wire.New()
	a.Sequence, b.Sequence, c.Sequence = 1, 2, 3
	q.Push(a)
	q.Push(b)
	q.Push(c)
	if q.Pop().Sequence != 1 || q.Pop().Sequence != 2 || q.Pop().Sequence != 3 {
		t.Fatal("FIFO order violated")
	}
	if q.Pop() != nil {
		t.Fatal("expected nil after drain")
	}
}

func TestRekeySetsActive(t *testing.T) {
	c := New(1000, nopSocket{}, 0)
	if c.HasFlag(FlagActive) {
		t.Fatal("fresh connection should not be active")
	}
	c.Rekey(42)
	if c.ID != 42 {
		t.Fatalf("ID=%d, want 42", c.ID)
	}
	if !c.HasFlag(FlagActive) {
		t.Fatal("expected active flag after rekey")
	}
}

func TestExpired(t *testing.T) {
	c := New(1, nopSocket{}, 0)
	c.LastIO = time.Now().Add(-10 * time.Second)
	if !c.Expired(5*time.Second, time.Now()) {
		t.Fatal("expected expiry past deadline")
	}
	if c.Expired(20*time.Second, time.Now()) {
		t.Fatal("should not be expired within deadline")
	}
}
