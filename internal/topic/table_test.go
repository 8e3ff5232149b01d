package topic

import "testing"

func TestSubscribeIdempotent(t *testing.T) {
	tt := New()
	tt.Subscribe(42, 100)
	tt.Subscribe(42, 100)
	if tt.Count(42) != 1 {
		t.Fatalf("count=%d, want 1", tt.Count(42))
	}
}

func TestUnsubscribeReturnsToBaseline(t *testing.T) {
	tt := New()
	tt.Subscribe(5, 1)
	tt.Unsubscribe(5, 1)
	if tt.Count(5) != 0 {
		t.Fatalf("count=%d, want 0", tt.Count(5))
	}
	if tt.IsSubscribed(5, 1) {
		t.Fatal("still subscribed after unsubscribe")
	}
}

func TestRemoveOnTeardown(t *testing.T) {
	tt := New()
	tt.Subscribe(1, 9)
	tt.Subscribe(2, 9)
	tt.Subscribe(3, 8)
	tt.Remove(9)
	if tt.IsSubscribed(1, 9) || tt.IsSubscribed(2, 9) {
		t.Fatal("connection still subscribed after Remove")
	}
	if !tt.IsSubscribed(3, 8) {
		t.Fatal("unrelated subscription wrongly removed")
	}
}

func TestFanoutSubscribers(t *testing.T) {
	tt := New()
	tt.Subscribe(42, 1)
	tt.Subscribe(42, 2)
	subs := tt.Subscribers(42)
	if len(subs) != 2 {
		t.Fatalf("subscribers=%v, want 2 entries", subs)
	}
}
