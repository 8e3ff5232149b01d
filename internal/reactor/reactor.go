// Package reactor is the hub's idiomatic-Go substitute for an
// edge-triggered poller (epoll/kqueue). Go's netpoller already
// multiplexes blocking reads across goroutines, so instead of wrapping a
// raw readiness API the reactor runs one goroutine per connection doing
// blocking reads, funnels every decoded frame into a single inbox
// channel owned by the hub goroutine, and tags ticker, signal, and
// file-watch events onto the same channel so the hub's dispatch loop has
// exactly one place to select from.
package reactor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/conn"
	"github.com/wanhive/overlay-hub/internal/wire"
)

// Kind tags what produced an Event.
type Kind int

const (
	EventPacket Kind = iota
	EventClosed
	EventTick
	EventFileChanged
	EventShutdown
)

// Event is the single type flowing through the hub's inbox channel,
// whatever its origin.
type Event struct {
	Kind   Kind
	Conn   *conn.Connection
	Packet *wire.Packet
	Path   string
	Err    error
}

// Reactor owns the inbox channel and the ancillary event sources: a
// ticker, an fsnotify watcher, and the process signal channel.
type Reactor struct {
	inbox   chan Event
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	tick    time.Duration
}

// New creates a Reactor. tick is the interval of EventTick, on which the
// hub sweeps idle connections, flushes audit batches and samples
// metrics; the stabilizer runs on its own period and is not prompted by
// the tick.
func New(tick time.Duration, logger *zap.Logger) (*Reactor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reactor: creating watcher: %w", err)
	}
	return &Reactor{
		inbox:   make(chan Event, 256),
		watcher: watcher,
		logger:  logger.Named("reactor"),
		tick:    tick,
	}, nil
}

// Inbox is the single channel the hub goroutine reads from.
func (r *Reactor) Inbox() <-chan Event { return r.inbox }

// Watch registers a hot-reload watch on path (options file, hosts file,
// keys, certs). Watch invalidation (IN_IGNORED-equivalent) is handled by
// fsnotify internally; re-adding after a rename is the caller's
// responsibility via the reload handler.
func (r *Reactor) Watch(path string) error {
	if err := r.watcher.Add(path); err != nil {
		return fmt.Errorf("reactor: watching %s: %w", path, err)
	}
	return nil
}

// ServeConnection runs the blocking read loop for one connection until
// it errors or ctx is cancelled, delivering every decoded frame (and a
// final EventClosed) to the inbox. Call this in its own goroutine per
// accepted connection.
func (r *Reactor) ServeConnection(ctx context.Context, c *conn.Connection) {
	for {
		pkt, err := readPacket(c)
		if err != nil {
			r.deliver(ctx, Event{Kind: EventClosed, Conn: c, Err: err})
			return
		}
		if !r.deliver(ctx, Event{Kind: EventPacket, Conn: c, Packet: pkt}) {
			return
		}
	}
}

func (r *Reactor) deliver(ctx context.Context, ev Event) bool {
	select {
	case r.inbox <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// readPacket blocks until a full header-plus-payload frame has been
// read from c, or returns the first I/O error encountered.
func readPacket(c *conn.Connection) (*wire.Packet, error) {
	p := wire.New()
	if _, err := io.ReadFull(c, p.Buf[:wire.HeaderSize]); err != nil {
		return nil, fmt.Errorf("reactor: reading header: %w", err)
	}
	if err := p.UnpackHeader(); err != nil {
		return nil, fmt.Errorf("reactor: unpacking header: %w", err)
	}
	rest := int(p.Length) - wire.HeaderSize
	if rest > 0 {
		if _, err := io.ReadFull(c, p.Buf[wire.HeaderSize:p.Length]); err != nil {
			return nil, fmt.Errorf("reactor: reading payload: %w", err)
		}
	}
	if err := p.Bind(int(p.Length)); err != nil {
		return nil, fmt.Errorf("reactor: binding frame: %w", err)
	}
	return p, nil
}

// Run drives the ticker, signal, and file-watch event sources until ctx
// is cancelled. Per-connection packet delivery happens independently via
// ServeConnection goroutines feeding the same inbox.
func (r *Reactor) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !r.deliver(ctx, Event{Kind: EventTick}) {
				return
			}

		case sig := <-sigCh:
			r.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			r.deliver(ctx, Event{Kind: EventShutdown})
			return

		case ev, ok := <-r.watcher.Events:
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !r.deliver(ctx, Event{Kind: EventFileChanged, Path: ev.Name}) {
				return
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				continue
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// Close releases the fsnotify watcher.
func (r *Reactor) Close() error {
	return r.watcher.Close()
}
