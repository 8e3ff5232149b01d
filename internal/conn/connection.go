// Package conn implements per-peer connection state: identity, queues,
// topic subscriptions, and the flag bits the hub dispatcher consults on
// every packet.
package conn

import (
	"fmt"
	"time"

	"github.com/wanhive/overlay-hub/internal/wire"
)

// Flag bits.
type Flags uint8

const (
	FlagActive Flags = 1 << iota
	FlagPriority
	FlagOverlayRole
	FlagProxyPending
	FlagMulticast
	FlagInvalid
)

// Bitset is a 256-bit subscription bitmap, one bit per topic id.
type Bitset [4]uint64

func (b *Bitset) Set(topic uint8)   { b[topic/64] |= 1 << (topic % 64) }
func (b *Bitset) Clear(topic uint8) { b[topic/64] &^= 1 << (topic % 64) }
func (b *Bitset) Test(topic uint8) bool {
	return b[topic/64]&(1<<(topic%64)) != 0
}
func (b *Bitset) Any() bool {
	return b[0] != 0 || b[1] != 0 || b[2] != 0 || b[3] != 0
}

// Queue is a FIFO of outbound packets with an optional cap; cap == 0
// means unbounded, the default for peers/controller/stabilizer. Clients
// get a positive cap for backpressure.
type Queue struct {
	items []*wire.Packet
	cap   int
}

// NewQueue creates a queue. cap <= 0 means unbounded.
func NewQueue(cap int) *Queue {
	if cap < 0 {
		cap = 0
	}
	return &Queue{cap: cap}
}

// Push enqueues a packet in arrival order. Returns false if the queue is
// at capacity (bounded queues only), signalling backpressure to the
// caller.
func (q *Queue) Push(p *wire.Packet) bool {
	if q.cap > 0 && len(q.items) >= q.cap {
		return false
	}
	q.items = append(q.items, p)
	return true
}

// Pop removes and returns the oldest packet, or nil if empty.
func (q *Queue) Pop() *wire.Packet {
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p
}

// Len returns the number of queued packets.
func (q *Queue) Len() int { return len(q.items) }

// Connection is the hub's per-peer state.
type Connection struct {
	ID       uint64 // ephemeral on accept; reassigned on successful registration
	Group    uint8
	Flags    Flags
	Topics   Bitset
	Inbound  *wire.Packet // single-packet staging area
	Outbound *Queue
	LastIO   time.Time

	// socket is left as an interface so tests can substitute a fake; the
	// hub supplies a *net.TCPConn or *tls.Conn in production.
	socket ReadWriteCloser
}

// ReadWriteCloser is the minimal socket surface the hub needs.
type ReadWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// New creates a freshly accepted connection with an ephemeral id and a
// bounded outbound queue (clients default to bounded; overlay peers and
// the controller pass outboundCap<=0 for unbounded).
func New(ephemeralID uint64, socket ReadWriteCloser, outboundCap int) *Connection {
	return &Connection{
		ID:       ephemeralID,
		Outbound: NewQueue(outboundCap),
		socket:   socket,
		LastIO:   time.Now(),
	}
}

func (c *Connection) HasFlag(f Flags) bool { return c.Flags&f != 0 }
func (c *Connection) SetFlag(f Flags)      { c.Flags |= f }
func (c *Connection) ClearFlag(f Flags)    { c.Flags &^= f }

// Rekey reassigns the connection's identifier after a successful
// registration handshake.
func (c *Connection) Rekey(id uint64) {
	c.ID = id
	c.SetFlag(FlagActive)
}

// Touch records a successful I/O event for deadline tracking.
func (c *Connection) Touch() { c.LastIO = time.Now() }

// Expired reports whether the connection has been idle past deadline.
func (c *Connection) Expired(deadline time.Duration, now time.Time) bool {
	return now.Sub(c.LastIO) > deadline
}

// Read reads from the socket into buf, returning the number of bytes
// that arrived in one read; the Inbound staging packet is not touched.
func (c *Connection) Read(buf []byte) (int, error) {
	if c.socket == nil {
		return 0, fmt.Errorf("conn: no socket attached")
	}
	n, err := c.socket.Read(buf)
	if err == nil {
		c.Touch()
	}
	return n, err
}

// Write sends bytes directly on the socket; the hub uses this to drain
// Outbound.
func (c *Connection) Write(buf []byte) (int, error) {
	if c.socket == nil {
		return 0, fmt.Errorf("conn: no socket attached")
	}
	n, err := c.socket.Write(buf)
	if err == nil {
		c.Touch()
	}
	return n, err
}

// Close shuts down the underlying socket.
func (c *Connection) Close() error {
	if c.socket == nil {
		return nil
	}
	return c.socket.Close()
}
