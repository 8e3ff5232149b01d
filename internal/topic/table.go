// Package topic implements the hub's 256-entry publish/subscribe table.
// Ownership direction is one-way: the table holds subscriber connection
// ids, never back-pointers into connection objects; tearing down a
// connection (Remove) clears its id from every topic's set.
package topic

const count = 256

// Table maps topic id (0..255) to the set of subscribing connection ids.
type Table struct {
	subscribers [count]map[uint64]struct{}
}

// New creates an empty topic table.
func New() *Table {
	return &Table{}
}

// Subscribe adds connID as a subscriber of topic t. Idempotent.
func (tt *Table) Subscribe(t uint8, connID uint64) {
	if tt.subscribers[t] == nil {
		tt.subscribers[t] = make(map[uint64]struct{})
	}
	tt.subscribers[t][connID] = struct{}{}
}

// Unsubscribe removes connID from topic t. Idempotent.
func (tt *Table) Unsubscribe(t uint8, connID uint64) {
	delete(tt.subscribers[t], connID)
}

// IsSubscribed reports whether connID currently subscribes to topic t.
func (tt *Table) IsSubscribed(t uint8, connID uint64) bool {
	_, ok := tt.subscribers[t][connID]
	return ok
}

// Subscribers returns the current subscriber set for topic t. The
// returned slice is a snapshot; callers must not assume stability across
// calls that mutate the table.
func (tt *Table) Subscribers(t uint8) []uint64 {
	set := tt.subscribers[t]
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Remove drops connID from every topic, used on connection teardown to
// keep both sides of the subscription consistent.
func (tt *Table) Remove(connID uint64) {
	for t := 0; t < count; t++ {
		delete(tt.subscribers[t], connID)
	}
}

// Count returns the number of subscribers on topic t.
func (tt *Table) Count(t uint8) int {
	return len(tt.subscribers[t])
}
