// Package pktpool implements the hub's bounded, reference-counted packet
// slab. The pool is owned and used by a single goroutine (the hub); no
// locking is performed.
package pktpool

import (
	"fmt"

	"github.com/wanhive/overlay-hub/internal/wire"
)

// Pool is a fixed-capacity free list of wire.Packet objects with
// reference-counted handoff, mirroring the batch/flush bookkeeping style
// of the teacher's pipeline runner: bounded work in flight, explicit
// counters, no hidden growth.
type Pool struct {
	capacity  int
	free      []*wire.Packet
	allocated int
	refs      map[*wire.Packet]int
}

// New creates a pool pre-populated with capacity packets.
func New(capacity int) *Pool {
	p := &Pool{
		capacity: capacity,
		free:     make([]*wire.Packet, 0, capacity),
		refs:     make(map[*wire.Packet]int, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.free = append(p.free, wire.New())
	}
	return p
}

// Capacity returns the pool's fixed size.
func (p *Pool) Capacity() int { return p.capacity }

// Allocated returns the number of packets currently checked out.
func (p *Pool) Allocated() int { return p.allocated }

// Free returns the number of packets available for allocation.
func (p *Pool) Free() int { return len(p.free) }

// Alloc checks out a packet for the given origin connection id, with an
// initial reference count of one. It never blocks; on exhaustion it
// returns nil so the caller can run a purge sweep.
func (p *Pool) Alloc(origin uint64) *wire.Packet {
	if len(p.free) == 0 {
		return nil
	}
	n := len(p.free) - 1
	pkt := p.free[n]
	p.free[n] = nil
	p.free = p.free[:n]

	pkt.Reset()
	pkt.Source = origin
	p.refs[pkt] = 1
	p.allocated++
	return pkt
}

// Retain bumps a packet's reference count, used when the hub hands the
// same packet to multiple topic subscribers.
func (p *Pool) Retain(pkt *wire.Packet) {
	p.refs[pkt]++
}

// Recycle decrements a packet's reference count; when it reaches zero the
// packet returns to the free list.
func (p *Pool) Recycle(pkt *wire.Packet) {
	n, ok := p.refs[pkt]
	if !ok {
		return
	}
	n--
	if n > 0 {
		p.refs[pkt] = n
		return
	}
	delete(p.refs, pkt)
	p.allocated--
	p.free = append(p.free, pkt)
}

// RefCount reports the current reference count of an allocated packet.
func (p *Pool) RefCount(pkt *wire.Packet) int {
	return p.refs[pkt]
}

// Invariant checks capacity == allocated+free.
func (p *Pool) Invariant() error {
	if p.allocated+len(p.free) != p.capacity {
		return fmt.Errorf("pktpool: invariant broken: allocated=%d free=%d capacity=%d",
			p.allocated, len(p.free), p.capacity)
	}
	return nil
}
