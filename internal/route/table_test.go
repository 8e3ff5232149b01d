package route

import "testing"

func TestNewTableFingerStarts(t *testing.T) {
	tb := New(0, 4) // L=4, MaxID=15
	for i := 0; i < 4; i++ {
		want := (uint64(0) + (uint64(1) << uint(i))) % 16
		if got := tb.Finger(i).Start; got != want {
			t.Errorf("finger[%d].start = %d, want %d", i, got, want)
		}
	}
	if tb.Successor() != tb.Self() {
		t.Fatalf("fresh table successor should be self")
	}
}

func TestSetSuccessorIsFinger0(t *testing.T) {
	tb := New(5, 4)
	tb.SetSuccessor(9, true)
	if tb.Finger(0).ID != 9 || tb.Successor() != 9 {
		t.Fatalf("successor not wired to finger[0]")
	}
}

func TestNotifyAndLocalSuccessor(t *testing.T) {
	tb := New(10, 4) // MaxID=15
	if !tb.Notify(3) {
		t.Fatal("expected first notify to commit (stale predecessor)")
	}
	if tb.Predecessor().ID != 3 {
		t.Fatalf("predecessor = %d, want 3", tb.Predecessor().ID)
	}
	// k in (3,10] is local
	if tb.LocalSuccessor(7) != 10 {
		t.Fatalf("expected 7 to be local")
	}
	if tb.LocalSuccessor(2) != 0 {
		t.Fatalf("expected 2 to be non-local")
	}
	// a later notify outside (pred, self) must not commit
	if tb.Notify(1) {
		t.Fatal("notify from outside (pred,self) should not commit")
	}
}

func TestClosestPredecessor(t *testing.T) {
	tb := New(0, 4) // MaxID=15
	tb.SetFinger(0, 4, true)
	tb.SetFinger(1, 6, true)
	tb.SetFinger(2, 12, false) // not connected
	tb.SetFinger(3, 12, true)
	if got := tb.ClosestPredecessor(14); got != 12 {
		t.Fatalf("ClosestPredecessor(14) = %d, want 12", got)
	}
	if got := tb.ClosestConnectedPredecessor(14); got != 12 {
		t.Fatalf("connected-only should still find finger[3]=12, got %d", got)
	}
	// restrict so only fingers below 12 are connected
	tb.SetFinger(3, 12, false)
	if got := tb.ClosestConnectedPredecessor(14); got != 6 {
		t.Fatalf("ClosestConnectedPredecessor(14) = %d, want 6", got)
	}
}

func TestMapDirectVsMixed(t *testing.T) {
	l := 4
	maxNodes := uint64(2)
	// within range: direct mask
	if got := Map(5, l, maxNodes); got != 5 {
		t.Fatalf("Map(5) = %d, want 5", got)
	}
	// large id: mixed, must still land in [0, MaxID]
	id := uint64(1) << 40
	mapped := Map(id, l, maxNodes)
	if mapped > 15 {
		t.Fatalf("Map(%d) = %d, out of range", id, mapped)
	}
}

func TestRecentPeersSample(t *testing.T) {
	rp := NewRecentPeers(3)
	rp.Seen(1)
	rp.Seen(2)
	rp.Seen(3)
	rp.Seen(4) // wraps, evicts 1
	got := rp.Sample(3)
	want := map[uint64]bool{2: true, 3: true, 4: true}
	if len(got) != 3 {
		t.Fatalf("Sample returned %d items, want 3", len(got))
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected id %d in sample %v", id, got)
		}
	}
}
