// Package hub implements the overlay hub's single-threaded dispatcher:
// the only goroutine that touches routing table, topic table,
// connection pool, message pool, and authenticator map. Every other
// package that mutates hub state (internal/reactor, internal/stabilize)
// hands work to it over a channel rather than calling in directly.
package hub

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/audit"
	"github.com/wanhive/overlay-hub/internal/auth"
	"github.com/wanhive/overlay-hub/internal/conn"
	"github.com/wanhive/overlay-hub/internal/hostsdir"
	"github.com/wanhive/overlay-hub/internal/metrics"
	"github.com/wanhive/overlay-hub/internal/pktpool"
	"github.com/wanhive/overlay-hub/internal/reactor"
	"github.com/wanhive/overlay-hub/internal/route"
	"github.com/wanhive/overlay-hub/internal/stabilize"
	"github.com/wanhive/overlay-hub/internal/topic"
	"github.com/wanhive/overlay-hub/internal/wcrypto"
)

// Config holds the hub's identity and tunables, sourced from
// internal/config.
type Config struct {
	Self           uint64
	Group          uint8
	Netmask        uint64
	TableSize      int // L, finger count / key-space bits
	MaxNodes       uint64
	PoolCapacity   int
	MaxConnections int // connection-table capacity; triggers a purge sweep on exhaustion
	ClientQueueCap int
	Deadline       time.Duration
	RecentPeers    int
}

// Hub owns all mutable overlay state. It is not safe for concurrent
// use; Run must be the only goroutine invoking its methods.
type Hub struct {
	cfg Config

	table  *route.Table
	topics *topic.Table
	pool   *pktpool.Pool
	recent *route.RecentPeers

	conns map[uint64]*conn.Connection
	authn map[uint64]*auth.Authenticator

	identity      *wcrypto.Identity
	creds         auth.CredentialStore
	hosts         *hostsdir.Directory
	auditLog      *audit.Writer
	auditProducer *audit.Producer
	auditBuffer   []audit.Event

	// pendingNonce holds the N2 challenge issued to a proxy-pending peer
	// connection by handleToken, consulted by enroll when that peer's
	// basic/register arrives.
	pendingNonce map[uint64][]byte
	// peerKeys caches the public half of overlay peer identities known to
	// this hub, filled by RegisterPeerKey.
	peerKeys map[uint64]*wcrypto.PublicKey

	reactor *reactor.Reactor
	pair    *stabilize.Socketpair

	logger *zap.Logger

	reloadPaths ReloadPaths

	ephemeralCursor uint64
	shuttingDown    bool
	startedAt       time.Time

	droppedMalformed uint64
	purgeCount       uint64

	// dispatchTable is the (command, qualifier) -> handler map, built
	// once here rather than per-packet on the hub's hot path.
	dispatchTable map[handlerKey]handlerFunc
}

// New creates a Hub. creds, hosts, and auditLog may be nil in
// configurations that don't need them (tests, minimal deployments).
func New(cfg Config, identity *wcrypto.Identity, creds auth.CredentialStore, hosts *hostsdir.Directory,
	auditLog *audit.Writer, r *reactor.Reactor, pair *stabilize.Socketpair, logger *zap.Logger) *Hub {
	h := &Hub{
		cfg:          cfg,
		table:        route.New(route.Map(cfg.Self, cfg.TableSize, cfg.MaxNodes), cfg.TableSize),
		topics:       topic.New(),
		pool:         pktpool.New(cfg.PoolCapacity),
		recent:       route.NewRecentPeers(cfg.RecentPeers),
		conns:        make(map[uint64]*conn.Connection),
		authn:        make(map[uint64]*auth.Authenticator),
		identity:     identity,
		creds:        creds,
		hosts:        hosts,
		auditLog:     auditLog,
		pendingNonce: make(map[uint64][]byte),
		peerKeys:     make(map[uint64]*wcrypto.PublicKey),
		reactor:      r,
		pair:         pair,
		logger:       logger.Named("hub"),
		startedAt:    time.Now(),
	}
	h.dispatchTable = h.buildDispatchTable()
	return h
}

// Table returns the routing table backing this hub, so the process
// wiring layer can bind a Stabilizer to the same instance.
func (h *Hub) Table() *route.Table {
	return h.table
}

// SetAuditProducer attaches an optional Kafka mirror for operational
// events, wired independently of the Postgres writer (AUDIT.brokers may
// be unset).
func (h *Hub) SetAuditProducer(p *audit.Producer) {
	h.auditProducer = p
}

// SetReloadPaths records which on-disk paths map to which reloadable
// resource, consulted by handleReload when the reactor reports a
// file-change event.
func (h *Hub) SetReloadPaths(rp ReloadPaths) {
	h.reloadPaths = rp
}

// RegisterPeerKey records the public half of a known overlay peer's
// long-term identity, consulted when verifying that peer's
// basic/register token. Its only caller is reloadPeerPublicKey, on a
// change to a public key file named after the peer's identifier; no
// wire-protocol handler and no startup step registers keys.
func (h *Hub) RegisterPeerKey(id uint64, key *wcrypto.PublicKey) {
	h.peerKeys[id] = key
}

// nextEphemeral allocates an ephemeral identifier for a freshly accepted
// connection, reserved outside the overlay key space.
func (h *Hub) nextEphemeral() uint64 {
	h.ephemeralCursor++
	return h.table.MaxID() + h.cfg.MaxNodes + 1 + h.ephemeralCursor
}

// Accept registers a freshly accepted socket as a connection with an
// ephemeral identifier and begins serving it via the reactor. When the
// connection table is full it runs a purge sweep first, per the
// resource-exhaustion policy.
func (h *Hub) Accept(ctx context.Context, socket conn.ReadWriteCloser) *conn.Connection {
	if h.cfg.MaxConnections > 0 && len(h.conns) >= h.cfg.MaxConnections {
		if closed := h.runPurgeSweep(1); closed == 0 {
			h.logger.Warn("connection table full and purge reclaimed nothing", zap.Int("capacity", h.cfg.MaxConnections))
			_ = socket.Close()
			return nil
		}
	}
	id := h.nextEphemeral()
	c := conn.New(id, socket, h.cfg.ClientQueueCap)
	h.conns[id] = c
	h.authn[id] = auth.New(h.creds, []byte(fmt.Sprintf("pepper-%d", h.cfg.Self)))
	go h.reactor.ServeConnection(ctx, c)
	return c
}

// remove tears a connection down: drops it from every topic's
// subscriber set, clears its authenticator state, and — if it held an
// overlay role — leaves its finger slots marked unconnected for
// re-stabilization.
func (h *Hub) remove(c *conn.Connection) {
	delete(h.conns, c.ID)
	delete(h.authn, c.ID)
	delete(h.pendingNonce, c.ID)
	h.topics.Remove(c.ID)
	if c.HasFlag(conn.FlagOverlayRole) {
		for i := 0; i < h.table.Size(); i++ {
			if h.table.Finger(i).ID == c.ID {
				h.table.SetFinger(i, h.table.Finger(i).ID, false)
			}
		}
	}
	_ = c.Close()
}

// Run is the hub's event loop: the only place hub state is mutated. It
// drains the reactor's inbox (connection packets, ticks, file-change
// events, shutdown signal) and the stabilizer's request channel until
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.pair.Responses)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-h.reactor.Inbox():
			if !ok {
				return
			}
			h.handleReactorEvent(ctx, ev)

		case req, ok := <-h.pair.Requests:
			if !ok {
				return
			}
			h.handleWorkerRequest(ctx, req)
		}
	}
}

func (h *Hub) handleReactorEvent(ctx context.Context, ev reactor.Event) {
	switch ev.Kind {
	case reactor.EventPacket:
		h.dispatch(ev.Conn, ev.Packet, sourceClient)
	case reactor.EventClosed:
		if ev.Conn != nil {
			h.remove(ev.Conn)
		}
	case reactor.EventTick:
		now := time.Now()
		h.sweepIdle(now)
		h.flushAudit(ctx, now)
		h.sampleMetrics()
	case reactor.EventFileChanged:
		h.handleReload(ctx, ev.Path)
	case reactor.EventShutdown:
		h.shuttingDown = true
	}
}

// sampleMetrics reports point-in-time connection and pool occupancy,
// called once per tick rather than on every mutation to keep the hub's
// dispatch path free of metrics-library overhead.
func (h *Hub) sampleMetrics() {
	snap := h.Snapshot()
	metrics.ConnectionsGauge.WithLabelValues("ephemeral").Set(float64(snap.Ephemeral))
	metrics.ConnectionsGauge.WithLabelValues("client").Set(float64(snap.Clients))
	metrics.ConnectionsGauge.WithLabelValues("overlay").Set(float64(snap.Overlay))
	metrics.PoolOccupancy.WithLabelValues("allocated").Set(float64(snap.PoolAllocated))
	metrics.PoolOccupancy.WithLabelValues("free").Set(float64(snap.PoolFree))
}

// sweepIdle closes connections past their activity deadline, per the
// hub's periodic tick responsibility.
func (h *Hub) sweepIdle(now time.Time) {
	for _, c := range h.conns {
		if c.HasFlag(conn.FlagPriority) {
			continue
		}
		if c.Expired(h.cfg.Deadline, now) {
			h.logger.Info("closing idle connection", zap.Uint64("id", c.ID))
			h.remove(c)
		}
	}
}
