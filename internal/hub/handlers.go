package hub

import (
	"bytes"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/audit"
	"github.com/wanhive/overlay-hub/internal/auth"
	"github.com/wanhive/overlay-hub/internal/conn"
	"github.com/wanhive/overlay-hub/internal/metrics"
	"github.com/wanhive/overlay-hub/internal/wire"
)

// handlerKey is the dispatch table's key: a (command, qualifier) pair.
type handlerKey struct {
	command   uint8
	qualifier uint8
}

type handlerFunc func(c *conn.Connection, p *wire.Packet)

// buildDispatchTable constructs the (command, qualifier) -> handler map
// once, at hub construction, rather than on every dispatched packet.
func (h *Hub) buildDispatchTable() map[handlerKey]handlerFunc {
	return map[handlerKey]handlerFunc{
		{wire.CommandNull, wire.QualifierIdentify}:     h.handleIdentify,
		{wire.CommandNull, wire.QualifierAuthenticate}: h.handleAuthenticate,
		{wire.CommandNull, wire.QualifierDescribe}:     h.handleDescribe,

		{wire.CommandBasic, wire.QualifierFindRoot}:  h.handleFindRoot,
		{wire.CommandBasic, wire.QualifierBootstrap}: h.handleBootstrap,

		{wire.CommandMulticast, wire.QualifierPublish}:     h.handlePublish,
		{wire.CommandMulticast, wire.QualifierSubscribe}:   h.handleSubscribe,
		{wire.CommandMulticast, wire.QualifierUnsubscribe}: h.handleUnsubscribe,

		{wire.CommandNode, wire.QualifierGetPredecessor}: h.handleGetPredecessor,
		{wire.CommandNode, wire.QualifierSetPredecessor}: h.handleSetPredecessor,
		{wire.CommandNode, wire.QualifierGetSuccessor}:   h.handleGetSuccessor,
		{wire.CommandNode, wire.QualifierSetSuccessor}:   h.handleSetSuccessor,
		{wire.CommandNode, wire.QualifierGetFinger}:       h.handleGetFinger,
		{wire.CommandNode, wire.QualifierSetFinger}:       h.handleSetFinger,
		{wire.CommandNode, wire.QualifierGetNeighbours}:  h.handleGetNeighbours,
		{wire.CommandNode, wire.QualifierNotify}:         h.handleNotify,

		{wire.CommandOverlay, wire.QualifierFindSuccessor}: h.handleFindSuccessor,
		{wire.CommandOverlay, wire.QualifierPing}:          h.handlePing,
		{wire.CommandOverlay, wire.QualifierMap}:           h.handleMap,
	}
}

// handlerFor looks up the local handler for a self-destined packet,
// keyed on its (command, qualifier) pair.
func (h *Hub) handlerFor(command, qualifier uint8) (handlerFunc, bool) {
	f, ok := h.dispatchTable[handlerKey{command, qualifier}]
	return f, ok
}

// reject replies to a request with a rejected null, the uniform response
// for malformed payloads and protocol errors.
func (h *Hub) reject(c *conn.Connection, p *wire.Packet) {
	metrics.DroppedMalformedTotal.Inc()
	h.droppedMalformed++
	p.Status = wire.StatusRejected
	p.Length = wire.HeaderSize
	_ = p.PackHeader()
	h.enqueue(c, p)
}

func (h *Hub) accept(c *conn.Connection, p *wire.Packet) {
	p.Status = wire.StatusAccepted
	h.enqueue(c, p)
}

// --- null/* : SRP handshake (spec 4.6.2, 4.3) ---

func (h *Hub) handleIdentify(c *conn.Connection, p *wire.Packet) {
	if c == nil {
		return
	}
	r := wire.NewReader(p)
	identityBlob, err := r.GetBlob()
	if err != nil {
		h.reject(c, p)
		return
	}
	aBlob, err := r.GetBlob()
	if err != nil {
		h.reject(c, p)
		return
	}

	a, ok := h.authn[c.ID]
	if !ok {
		a = auth.New(h.creds, []byte(fmt.Sprintf("pepper-%d", h.cfg.Self)))
		h.authn[c.ID] = a
	}

	salt, B, err := a.Identify(string(identityBlob), new(big.Int).SetBytes(aBlob))
	if err != nil {
		h.reject(c, p)
		return
	}

	w := wire.NewWriter(p)
	if err := w.PutBlob(salt.Bytes()); err != nil || w.PutBlob(B.Bytes()) != nil {
		h.reject(c, p)
		return
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		h.reject(c, p)
		return
	}
	h.accept(c, p)
}

func (h *Hub) handleAuthenticate(c *conn.Connection, p *wire.Packet) {
	if c == nil {
		return
	}
	a, ok := h.authn[c.ID]
	if !ok {
		h.reject(c, p)
		return
	}
	r := wire.NewReader(p)
	m, err := r.GetBlob()
	if err != nil {
		h.reject(c, p)
		return
	}

	hostProof, err := a.Authenticate(m)
	if err != nil {
		delete(h.authn, c.ID)
		h.reject(c, p)
		return
	}

	w := wire.NewWriter(p)
	if err := w.PutBlob(hostProof); err != nil {
		h.reject(c, p)
		return
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		h.reject(c, p)
		return
	}
	h.accept(c, p)
}

// handleDescribe serves null/describe: hub metrics for authorized peers
// only. The payload layout mirrors HubInfo (see snapshot.go).
func (h *Hub) handleDescribe(c *conn.Connection, p *wire.Packet) {
	if c == nil || !c.HasFlag(conn.FlagOverlayRole) {
		h.reject(c, p)
		return
	}
	snap := h.Snapshot()
	w := wire.NewWriter(p)
	fields := []uint64{
		uint64(snap.UptimeSeconds),
		uint64(snap.Ephemeral),
		uint64(snap.Clients),
		uint64(snap.Overlay),
		uint64(snap.PoolAllocated),
		uint64(snap.PoolFree),
		uint64(snap.PoolCapacity),
		snap.Successor,
		snap.Predecessor,
	}
	for _, v := range fields {
		if err := w.PutUint64(v); err != nil {
			h.reject(c, p)
			return
		}
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		h.reject(c, p)
		return
	}
	h.accept(c, p)
}

// --- basic/* : registration and directory lookups ---

// enroll handles the intercepted basic/register request: either a client
// completing the SRP handshake, or a peer completing the RSA token
// handshake.
func (h *Hub) enroll(c *conn.Connection, p *wire.Packet) interceptResult {
	if c == nil {
		return resultDrop
	}
	if a, ok := h.authn[c.ID]; ok && a.ReadyToAuthorize() {
		return h.enrollClient(c, p, a)
	}
	if c.HasFlag(conn.FlagProxyPending) {
		return h.enrollPeer(c, p)
	}
	h.reject(c, p)
	return resultRespondOnly
}

func (h *Hub) enrollClient(c *conn.Connection, p *wire.Packet, a *auth.Authenticator) interceptResult {
	r := wire.NewReader(p)
	requestedID, err := r.GetUint64()
	if err != nil {
		h.reject(c, p)
		return resultRespondOnly
	}
	if existing, ok := h.conns[requestedID]; ok && existing != c {
		metrics.RegistrationsTotal.WithLabelValues("client", "rejected").Inc()
		h.reject(c, p)
		return resultRespondOnly
	}

	group := a.Group()
	delete(h.authn, c.ID)
	c.Rekey(requestedID)
	c.Group = group

	if err := p.Sign(h.identity); err != nil {
		h.logger.Warn("failed to sign register reply", zap.Error(err))
	}
	h.recordEvent(audit.KindRegister, requestedID, a.Identity(), nil)
	metrics.RegistrationsTotal.WithLabelValues("client", "accepted").Inc()
	h.accept(c, p)
	return resultRespondAndDeliver
}

func (h *Hub) enrollPeer(c *conn.Connection, p *wire.Packet) interceptResult {
	expected, ok := h.pendingNonce[c.ID]
	if !ok {
		h.reject(c, p)
		return resultRespondOnly
	}
	claimedID := p.Source
	if key, known := h.peerKeys[claimedID]; known {
		if err := p.Verify(key); err != nil {
			metrics.RegistrationsTotal.WithLabelValues("peer", "rejected").Inc()
			h.reject(c, p)
			return resultRespondOnly
		}
	}
	r := wire.NewReader(p)
	n2, err := r.GetBlob()
	if err != nil || !bytes.Equal(n2, expected) {
		metrics.RegistrationsTotal.WithLabelValues("peer", "rejected").Inc()
		h.reject(c, p)
		return resultRespondOnly
	}

	delete(h.pendingNonce, c.ID)
	if existing, ok := h.conns[claimedID]; ok && existing != c {
		// Simultaneous mutual registration: the numerically smaller
		// identifier wins, per the tie-break both ends must agree on.
		if claimedID > h.cfg.Self {
			metrics.RegistrationsTotal.WithLabelValues("peer", "rejected").Inc()
			h.reject(c, p)
			return resultRespondOnly
		}
		h.remove(existing)
	}
	c.Rekey(claimedID)
	c.ClearFlag(conn.FlagProxyPending)
	c.SetFlag(conn.FlagOverlayRole)
	h.recent.Seen(claimedID)
	h.recordEvent(audit.KindRegister, claimedID, "", map[string]string{"role": "peer"})
	metrics.RegistrationsTotal.WithLabelValues("peer", "accepted").Inc()
	h.accept(c, p)
	return resultRespondAndDeliver
}

// handleToken answers a peer's basic/token request: decrypt its N1,
// issue our own N2, and sign the reply with our long-term identity.
func (h *Hub) handleToken(c *conn.Connection, p *wire.Packet) interceptResult {
	if c == nil || h.identity == nil {
		h.reject(c, p)
		return resultRespondOnly
	}
	n1, err := h.identity.Decrypt(p.Payload())
	if err != nil {
		h.reject(c, p)
		return resultRespondOnly
	}
	n2, err := auth.NewNonce()
	if err != nil {
		h.reject(c, p)
		return resultRespondOnly
	}
	h.pendingNonce[c.ID] = n2
	c.SetFlag(conn.FlagProxyPending)

	w := wire.NewWriter(p)
	if err := w.PutBlob(n1); err != nil || w.PutBlob(n2) != nil {
		h.reject(c, p)
		return resultRespondOnly
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		h.reject(c, p)
		return resultRespondOnly
	}
	if err := p.Sign(h.identity); err != nil {
		h.logger.Warn("failed to sign token reply", zap.Error(err))
	}
	h.accept(c, p)
	return resultRespondOnly
}

func (h *Hub) handleFindRoot(c *conn.Connection, p *wire.Packet) {
	r := wire.NewReader(p)
	query, err := r.GetUint64()
	if err != nil {
		h.reject(c, p)
		return
	}
	owner := h.gateway(query)
	w := wire.NewWriter(p)
	if err := w.PutUint64(owner); err != nil {
		h.reject(c, p)
		return
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		h.reject(c, p)
		return
	}
	h.accept(c, p)
}

func (h *Hub) handleBootstrap(c *conn.Connection, p *wire.Packet) {
	const maxSample = 8
	ids := h.recent.Sample(maxSample)
	w := wire.NewWriter(p)
	if err := w.PutUint16(uint16(len(ids))); err != nil {
		h.reject(c, p)
		return
	}
	for _, id := range ids {
		if err := w.PutUint64(id); err != nil {
			h.reject(c, p)
			return
		}
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		h.reject(c, p)
		return
	}
	h.accept(c, p)
}

// --- multicast/* : topic pub/sub ---

func (h *Hub) handlePublish(c *conn.Connection, p *wire.Packet) {
	if c == nil {
		return
	}
	topicID := p.Session
	for _, subID := range h.topics.Subscribers(topicID) {
		if subID == c.ID {
			continue
		}
		sub, ok := h.conns[subID]
		if !ok {
			continue
		}
		if !h.permit(c.ID, sub.ID) || sub.Group == c.Group {
			continue
		}
		cp := clonePacket(p)
		cp.Destination = 0
		h.enqueue(sub, cp)
	}
	// Publish has no direct reply to the sender.
}

func (h *Hub) handleSubscribe(c *conn.Connection, p *wire.Packet) {
	if c == nil {
		return
	}
	t := p.Session
	h.topics.Subscribe(t, c.ID)
	c.Topics.Set(t)
	c.SetFlag(conn.FlagMulticast)
	h.accept(c, p)
}

func (h *Hub) handleUnsubscribe(c *conn.Connection, p *wire.Packet) {
	if c == nil {
		return
	}
	t := p.Session
	h.topics.Unsubscribe(t, c.ID)
	c.Topics.Clear(t)
	if !c.Topics.Any() {
		c.ClearFlag(conn.FlagMulticast)
	}
	h.accept(c, p)
}

// clonePacket copies a packet's header and payload for independent
// fan-out delivery to a subscriber; the pool's reference counting
// handles shared ownership when the hub is wired to allocate through it
// rather than the reactor's per-read buffers.
func clonePacket(p *wire.Packet) *wire.Packet {
	np := wire.New()
	copy(np.Buf[:p.Length], p.Buf[:p.Length])
	np.Header = p.Header
	np.Limit = p.Limit
	return np
}

// --- node/* : controller-mediated routing-table operations ---

func (h *Hub) handleGetPredecessor(c *conn.Connection, p *wire.Packet) {
	h.replyID(c, p, h.table.Predecessor().ID)
}

func (h *Hub) handleSetPredecessor(c *conn.Connection, p *wire.Packet) {
	r := wire.NewReader(p)
	id, err := r.GetUint64()
	if err != nil {
		h.reject(c, p)
		return
	}
	h.table.SetPredecessor(id)
	h.replyID(c, p, id)
}

func (h *Hub) handleGetSuccessor(c *conn.Connection, p *wire.Packet) {
	h.replyID(c, p, h.table.Successor())
}

func (h *Hub) handleSetSuccessor(c *conn.Connection, p *wire.Packet) {
	r := wire.NewReader(p)
	id, err := r.GetUint64()
	if err != nil {
		h.reject(c, p)
		return
	}
	h.table.SetSuccessor(id, true)
	h.replyID(c, p, id)
}

func (h *Hub) handleGetFinger(c *conn.Connection, p *wire.Packet) {
	r := wire.NewReader(p)
	idx, err := r.GetUint8()
	if err != nil || int(idx) >= h.table.Size() {
		h.reject(c, p)
		return
	}
	h.replyID(c, p, h.table.Finger(int(idx)).ID)
}

func (h *Hub) handleSetFinger(c *conn.Connection, p *wire.Packet) {
	r := wire.NewReader(p)
	idx, err := r.GetUint8()
	if err != nil || int(idx) >= h.table.Size() {
		h.reject(c, p)
		return
	}
	id, err := r.GetUint64()
	if err != nil {
		h.reject(c, p)
		return
	}
	h.table.SetFinger(int(idx), id, true)
	h.replyID(c, p, id)
}

func (h *Hub) handleGetNeighbours(c *conn.Connection, p *wire.Packet) {
	w := wire.NewWriter(p)
	if err := w.PutUint64(h.table.Predecessor().ID); err != nil || w.PutUint64(h.table.Successor()) != nil {
		h.reject(c, p)
		return
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		h.reject(c, p)
		return
	}
	h.accept(c, p)
}

func (h *Hub) handleNotify(c *conn.Connection, p *wire.Packet) {
	r := wire.NewReader(p)
	id, err := r.GetUint64()
	if err != nil {
		h.reject(c, p)
		return
	}
	h.table.Notify(id)
	h.replyID(c, p, h.table.Predecessor().ID)
}

func (h *Hub) replyID(c *conn.Connection, p *wire.Packet, id uint64) {
	w := wire.NewWriter(p)
	if err := w.PutUint64(id); err != nil {
		h.reject(c, p)
		return
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	if err := p.PackHeader(); err != nil {
		h.reject(c, p)
		return
	}
	h.accept(c, p)
}

// --- overlay/* : stabilization and ring operations ---

func (h *Hub) handleFindSuccessor(c *conn.Connection, p *wire.Packet) {
	r := wire.NewReader(p)
	key, err := r.GetUint64()
	if err != nil {
		h.reject(c, p)
		return
	}
	if owner := h.table.LocalSuccessor(key); owner != 0 {
		h.replyID(c, p, owner)
		return
	}
	// Non-recursive single-hop answer: the caller's own stabilizer walks
	// the ring one hop at a time via repeated find-successor probes, so
	// handing back our closest connected predecessor is sufficient for
	// forward progress without the hub blocking on a multi-hop RPC chain.
	h.replyID(c, p, h.table.ClosestConnectedPredecessor(key))
}

func (h *Hub) handlePing(c *conn.Connection, p *wire.Packet) {
	if c == nil {
		return
	}
	h.replyID(c, p, h.cfg.Self)
}

// handleMap traverses the predecessor chain once around the ring,
// closing the loop back to the originator. The originator's identifier
// is pushed onto the payload on entry. p.Hop is not part of the wire
// header, so hopLimit bounds forwarding on this hub only; it does not
// bound a traversal that crosses hubs.
func (h *Hub) handleMap(c *conn.Connection, p *wire.Packet) {
	const hopLimit = 256
	r := wire.NewReader(p)
	originator, err := r.GetUint64()
	if err != nil {
		originator = p.Source
	}
	p.Hop++
	if p.Hop >= hopLimit || h.table.Predecessor().ID == originator {
		w := wire.NewWriter(p)
		if err := w.PutUint64(originator); err != nil {
			h.reject(c, p)
			return
		}
		p.Length = wire.HeaderSize + uint16(w.Len())
		p.Destination = originator
		_ = p.PackHeader()
		h.accept(c, p)
		return
	}
	p.Destination = h.table.Predecessor().ID
	w := wire.NewWriter(p)
	if err := w.PutUint64(originator); err != nil {
		h.reject(c, p)
		return
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	_ = p.PackHeader()
	h.forward(p)
}
