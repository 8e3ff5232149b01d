package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/conn"
	"github.com/wanhive/overlay-hub/internal/route"
	"github.com/wanhive/overlay-hub/internal/wire"
)

// origin classifies where a packet entered the hub from, driving the
// annotate and route stages.
type origin int

const (
	sourceClient origin = iota // external connection, not yet known to be a peer/controller
	sourceWorker                // the stabilizer, via the socketpair
)

// dispatch runs one packet through intercept, annotate, route, and
// serve, in that order, as required by the four-stage pipeline.
func (h *Hub) dispatch(c *conn.Connection, p *wire.Packet, src origin) {
	if action, handled := h.intercept(c, p); handled {
		h.applyAction(c, action, p)
		return
	}
	h.annotate(c, p, src)
	h.route(c, p, src)
	h.serve(c, p)
}

// interceptResult tells dispatch what to do with a packet the intercept
// stage has already fully handled.
type interceptResult int

const (
	resultNotIntercepted interceptResult = iota
	resultRespondAndDeliver
	resultRespondOnly
	resultDrop
)

// intercept catches basic/register and basic/token before annotate can
// rewrite fields the registration signature covers.
func (h *Hub) intercept(c *conn.Connection, p *wire.Packet) (interceptResult, bool) {
	if c == nil {
		return resultNotIntercepted, false
	}
	switch {
	case p.CheckContext(wire.CommandBasic, wire.QualifierRegister, wire.StatusRequest):
		return h.enroll(c, p), true
	case p.CheckContext(wire.CommandBasic, wire.QualifierToken, wire.StatusRequest):
		return h.handleToken(c, p), true
	default:
		return resultNotIntercepted, false
	}
}

func (h *Hub) applyAction(c *conn.Connection, action interceptResult, p *wire.Packet) {
	switch action {
	case resultRespondAndDeliver, resultRespondOnly:
		h.enqueue(c, p)
	case resultDrop:
		// nothing to send; caller already logged if relevant.
	}
}

// annotate applies the flow-control stamping step before routing.
func (h *Hub) annotate(c *conn.Connection, p *wire.Packet, src origin) {
	switch {
	case src == sourceWorker:
		p.Label = workerLabel(h.cfg.Self)
	case c != nil && c.ID == wire.ControllerID:
		// in transit from the controller: label mirrors the group tag so
		// multicast downstream can use it.
		p.Label = uint64(c.Group)
	case c != nil && c.HasFlag(conn.FlagOverlayRole):
		// in transit from a peer: copy the label into the group tag for
		// downstream multicast use, but the source is already the true
		// origin from an earlier hop and must not be overwritten.
		c.Group = uint8(p.Label)
	case c != nil:
		// external client connection: the label and source are rewritten
		// to the connection's own identity to prevent spoofing.
		p.Label = uint64(c.Group)
		p.Source = c.ID
	}
}

func workerLabel(self uint64) uint64 {
	const workerID = 1
	return workerID<<32 | self
}

// route implements plot(packet): choosing the next hop.
func (h *Hub) route(c *conn.Connection, p *wire.Packet, src origin) {
	switch {
	case src == sourceWorker:
		if p.Destination != h.cfg.Self {
			p.Destination = wire.ControllerID
		}
	case c != nil && c.ID == wire.ControllerID && p.Status != wire.StatusRequest && h.isStabilizationReply(p):
		// controller replies carrying stabilization results are handed
		// straight to the worker socket rather than routed further.
		h.deliverToWorker(p)
		p.Destination = h.cfg.Self
		p.Status = wire.StatusAccepted
		// already consumed: the invalid flag makes serve sink the packet
		// instead of dispatching it to a local handler.
		c.SetFlag(conn.FlagInvalid)
	default:
		if h.permit(p.Source, p.Destination) {
			p.Destination = h.gateway(p.Destination)
		} else {
			c2 := c
			if c2 != nil {
				c2.SetFlag(conn.FlagInvalid)
			}
			p.Destination = h.cfg.Self
			p.Status = wire.StatusRejected
		}
	}
}

// isStabilizationReply reports whether p looks like a response the
// worker is waiting on: a node/overlay command carrying a non-request
// status, addressed to this hub.
func (h *Hub) isStabilizationReply(p *wire.Packet) bool {
	if p.Destination != h.cfg.Self {
		return false
	}
	return p.Command == wire.CommandNode || p.Command == wire.CommandOverlay
}

func (h *Hub) deliverToWorker(p *wire.Packet) {
	select {
	case h.pair.Responses <- p:
	default:
		h.logger.Warn("worker response channel full, dropping", zap.Uint16("sequence", p.Sequence))
	}
}

// gateway picks the next hop toward dst: itself if local or the
// controller, otherwise a hop around the ring via the closest known
// predecessor.
func (h *Hub) gateway(dst uint64) uint64 {
	if dst == wire.ControllerID {
		return dst
	}
	mapped := route.Map(dst, h.table.Size(), h.cfg.MaxNodes)
	if h.table.LocalSuccessor(mapped) == h.table.Self() {
		return dst
	}
	return h.table.ClosestConnectedPredecessor(mapped)
}

// permit implements the netmask-gated permission policy (4.6.1).
func (h *Hub) permit(src, dst uint64) bool {
	maxNonEphemeral := h.table.MaxID() + h.cfg.MaxNodes
	if src > maxNonEphemeral || dst > maxNonEphemeral {
		// both non-ephemeral required; ephemeral IDs (unregistered
		// connections) may never route through each other.
		return false
	}
	if dst == wire.ControllerID || dst == workerLabel(h.cfg.Self) {
		return false
	}
	srcInternal := h.isInternal(src)
	dstInternal := h.isInternal(dst)
	if !srcInternal && dstInternal && dst != wire.ControllerID {
		return false
	}
	if !srcInternal && !dstInternal {
		return src&h.cfg.Netmask == dst&h.cfg.Netmask
	}
	return true
}

// isInternal reports whether id names a peer or the controller, as
// opposed to a registered client.
func (h *Hub) isInternal(id uint64) bool {
	if id == wire.ControllerID {
		return true
	}
	if c, ok := h.connByIdentity(id); ok {
		return c.HasFlag(conn.FlagOverlayRole)
	}
	return false
}

func (h *Hub) connByIdentity(id uint64) (*conn.Connection, bool) {
	c, ok := h.conns[id]
	return c, ok
}

// serve dispatches a self-destined, non-invalid packet to a local
// handler, or finalizes already-consumed traffic by forwarding it.
func (h *Hub) serve(c *conn.Connection, p *wire.Packet) {
	if p.Destination != h.cfg.Self {
		h.forward(p)
		return
	}
	if c != nil && c.HasFlag(conn.FlagInvalid) {
		c.ClearFlag(conn.FlagInvalid)
		return
	}
	handler, ok := h.handlerFor(p.Command, p.Qualifier)
	if !ok {
		p.Status = wire.StatusRejected
		h.enqueue(c, p)
		return
	}
	handler(c, p)
}

// forward hands a packet addressed elsewhere to the connection
// currently occupying that identifier, if any; otherwise it is dropped.
func (h *Hub) forward(p *wire.Packet) {
	dst, ok := h.connByIdentity(p.Destination)
	if !ok {
		h.logger.Debug("no route to destination, dropping", zap.Uint64("destination", p.Destination))
		return
	}
	h.enqueue(dst, p)
}

// enqueue stages p on c's outbound queue for the reactor's write side.
// c may be nil (e.g. a worker-destined packet already delivered via the
// socketpair), in which case enqueue is a no-op.
func (h *Hub) enqueue(c *conn.Connection, p *wire.Packet) {
	if c == nil {
		return
	}
	if !c.Outbound.Push(p) {
		h.logger.Warn("outbound queue full, dropping", zap.Uint64("conn", c.ID))
	}
}

// handleWorkerRequest runs a stabilizer-originated request through the
// same pipeline as connection traffic, using sourceWorker as its origin.
func (h *Hub) handleWorkerRequest(ctx context.Context, p *wire.Packet) {
	h.dispatch(nil, p, sourceWorker)
}
