// Package stabilize implements the background stabilization loop:
// periodically asking the successor for its predecessor, notifying,
// fixing one finger per round, and pinging the controller. It talks to
// the hub goroutine over a pair of unbuffered channels standing in for
// a real socketpair — the hub treats the stabilizer as just another
// connection in its event loop, the same idiomatic-Go substitute used
// alongside internal/reactor.
package stabilize

import "github.com/wanhive/overlay-hub/internal/wire"

// Socketpair is the channel pair a Stabilizer and the hub use to
// exchange stabilization probes and responses. Requests flow
// stabilizer -> hub; Responses flow hub -> stabilizer. The hub closes
// Responses when its event loop returns, modeling shutdown of the hub's
// end of a real socketpair: the stabilizer's receive sees the closed
// channel and its loop exits, mirroring an EOF-on-read shutdown signal.
type Socketpair struct {
	Requests  chan *wire.Packet
	Responses chan *wire.Packet
}

// NewSocketpair creates an unbuffered channel pair.
func NewSocketpair() *Socketpair {
	return &Socketpair{
		Requests:  make(chan *wire.Packet),
		Responses: make(chan *wire.Packet),
	}
}
