package pktpool

import "testing"

func TestAllocRecycle(t *testing.T) {
	p := New(2)
	a := p.Alloc(1)
	if a == nil {
		t.Fatal("expected packet")
	}
	b := p.Alloc(2)
	if b == nil {
		t.Fatal("expected packet")
	}
	if p.Alloc(3) != nil {
		t.Fatal("expected nil on exhaustion")
	}
	if err := p.Invariant(); err != nil {
		t.Fatal(err)
	}

	p.Recycle(a)
	if p.Free() != 1 {
		t.Fatalf("free=%d, want 1", p.Free())
	}
	c := p.Alloc(3)
	if c == nil {
		t.Fatal("expected packet after recycle")
	}
	if err := p.Invariant(); err != nil {
		t.Fatal(err)
	}
}

func TestRetainRecycleFanout(t *testing.T) {
	p := New(1)
	pkt := p.Alloc(1)
	p.Retain(pkt) // two subscribers
	if p.RefCount(pkt) != 2 {
		t.Fatalf("refcount=%d, want 2", p.RefCount(pkt))
	}
	p.Recycle(pkt)
	if p.Allocated() != 1 {
		t.Fatalf("packet recycled too early: allocated=%d", p.Allocated())
	}
	p.Recycle(pkt)
	if p.Allocated() != 0 {
		t.Fatalf("packet not recycled after last release: allocated=%d", p.Allocated())
	}
	if p.Free() != 1 {
		t.Fatalf("free=%d, want 1", p.Free())
	}
}
