// Package route implements the overlay hub's Chord-style finger table:
// identifier mapping into the key space, successor/predecessor tracking,
// and closest-predecessor routing.
package route

import "fmt"

// Finger is one entry of the routing table.
type Finger struct {
	Start     uint64 // (self + 2^i) mod (MaxID+1)
	ID        uint64 // current identifier occupying this slot; self until resolved
	Previous  uint64 // identifier held before the last change, for change detection
	Connected bool
}

// Predecessor is the ring's counter-clockwise neighbor pointer.
type Predecessor struct {
	ID       uint64
	Previous uint64
	Valid    bool
}

// Table is a Chord finger table of size L over the key space
// [0, 2^L - 1]. It is owned and mutated only by the hub goroutine and the
// stabilizer's notify/fix-finger results it reports back.
type Table struct {
	self   uint64
	l      int
	maxID  uint64
	finger []Finger
	pred   Predecessor
}

// New builds a table of size l (log2 of the key space) for node self.
// self must already be reduced into [0, 2^l - 1] by Map.
func New(self uint64, l int) *Table {
	if l <= 0 || l > 63 {
		panic(fmt.Sprintf("route: invalid table size %d", l))
	}
	maxID := (uint64(1) << uint(l)) - 1
	t := &Table{self: self, l: l, maxID: maxID, finger: make([]Finger, l)}
	for i := range t.finger {
		start := (self + (uint64(1) << uint(i))) % (maxID + 1)
		t.finger[i] = Finger{Start: start, ID: self, Previous: self}
	}
	return t
}

// Self returns this node's key-space identifier.
func (t *Table) Self() uint64 { return t.self }

// MaxID returns 2^L - 1.
func (t *Table) MaxID() uint64 { return t.maxID }

// Size returns L, the number of fingers.
func (t *Table) Size() int { return t.l }

// Finger returns a copy of finger i.
func (t *Table) Finger(i int) Finger { return t.finger[i] }

// SetFinger overwrites finger i in place, recording the previous
// occupant. Fingers are never dropped, only overwritten.
func (t *Table) SetFinger(i int, id uint64, connected bool) {
	f := &t.finger[i]
	f.Previous = f.ID
	f.ID = id
	f.Connected = connected
}

// SetSuccessor is SetFinger(0, id, connected).
func (t *Table) SetSuccessor(id uint64, connected bool) {
	t.SetFinger(0, id, connected)
}

// Successor returns finger[0].ID.
func (t *Table) Successor() uint64 { return t.finger[0].ID }

// Predecessor returns the current predecessor pointer.
func (t *Table) Predecessor() Predecessor { return t.pred }

// Notify considers p as a candidate predecessor: committed only if p
// falls strictly between the current predecessor and self, or if the
// current predecessor is not yet valid (stale). This is expected to
// land on the next stabilization round, so the caller should invoke
// Notify once per round, not per message.
func (t *Table) Notify(p uint64) (changed bool) {
	if !t.pred.Valid || between(p, t.pred.ID, t.self, false) {
		t.pred.Previous = t.pred.ID
		t.pred.ID = p
		t.pred.Valid = true
		return true
	}
	return false
}

// SetPredecessor overwrites the predecessor pointer directly, used by
// the controller-mediated node/set_predecessor operation. Ordinary
// stabilization only ever moves the predecessor through Notify; this
// bypass exists for operator/controller correction.
func (t *Table) SetPredecessor(id uint64) {
	t.pred.Previous = t.pred.ID
	t.pred.ID = id
	t.pred.Valid = true
}

// Between reports whether x lies in the interval (a, b) on the ring,
// modulo maxID+1. When inclusiveB is true the interval is (a, b]. Used
// by the stabilizer, which otherwise has no access to a table's
// identifier-space arithmetic.
func Between(x, a, b uint64, inclusiveB bool) bool {
	return between(x, a, b, inclusiveB)
}

// between reports whether x lies in the open interval (a, b) on the ring,
// modulo maxID+1. When inclusive is true the interval is (a, b].
func between(x, a, b uint64, inclusiveB bool) bool {
	if a == b {
		// single-node ring: every other id is "between"
		return x != a
	}
	if a < b {
		if inclusiveB {
			return x > a && x <= b
		}
		return x > a && x < b
	}
	// wrap-around interval
	if inclusiveB {
		return x > a || x <= b
	}
	return x > a || x < b
}

// LocalSuccessor returns self if k falls in (predecessor, self], else 0
// meaning "not local".
func (t *Table) LocalSuccessor(k uint64) uint64 {
	if !t.pred.Valid {
		// no known predecessor yet: treat the whole ring as ours until
		// stabilization narrows it, matching a freshly bootstrapped node.
		return t.self
	}
	if between(k, t.pred.ID, t.self, true) {
		return t.self
	}
	return 0
}

// ClosestPredecessor returns the largest finger identifier strictly
// between self and k, falling back to self when no finger qualifies.
func (t *Table) ClosestPredecessor(k uint64) uint64 {
	return t.closestPredecessor(k, false)
}

// ClosestConnectedPredecessor is the routing-safe variant restricted to
// fingers currently marked connected, used to route around dead peers.
func (t *Table) ClosestConnectedPredecessor(k uint64) uint64 {
	return t.closestPredecessor(k, true)
}

func (t *Table) closestPredecessor(k uint64, connectedOnly bool) uint64 {
	for i := t.l - 1; i >= 0; i-- {
		f := t.finger[i]
		if connectedOnly && !f.Connected {
			continue
		}
		if between(f.ID, t.self, k, false) {
			return f.ID
		}
	}
	return t.self
}

// Map reduces a 64-bit identifier into the [0, MaxID] key space: a direct
// mask when id is within the overlay+ephemeral-adjacent range, otherwise
// a multiplicative mixing hash reduced to L bits so client identifiers
// spread uniformly across overlay keys.
func Map(id uint64, l int, maxNodes uint64) uint64 {
	maxID := (uint64(1) << uint(l)) - 1
	if id <= maxID+maxNodes {
		return id & maxID
	}
	// 64-bit multiplicative hash (Fibonacci hashing constant), then
	// reduce to the low L bits of the mixed high word.
	const mul = 0x9E3779B97F4A7C15
	mixed := id * mul
	return (mixed >> uint(64-l)) & maxID
}
