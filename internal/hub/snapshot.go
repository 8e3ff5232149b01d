package hub

import (
	"time"

	"github.com/wanhive/overlay-hub/internal/conn"
)

// HubInfo is a point-in-time snapshot of hub occupancy and routing
// state, serialized by the null/describe wire handler and reused
// verbatim by the operator-facing HTTP endpoint.
type HubInfo struct {
	UptimeSeconds int64
	Ephemeral     int
	Clients       int
	Overlay       int
	PoolAllocated int
	PoolFree      int
	PoolCapacity  int
	Successor     uint64
	Predecessor   uint64
}

// Snapshot classifies every live connection into ephemeral (not yet
// registered), client (registered, not overlay), or overlay (peer or
// controller), alongside pool occupancy and the routing table's
// immediate neighbors.
func (h *Hub) Snapshot() HubInfo {
	info := HubInfo{
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		PoolAllocated: h.pool.Allocated(),
		PoolFree:      h.pool.Free(),
		PoolCapacity:  h.pool.Capacity(),
		Successor:     h.table.Successor(),
		Predecessor:   h.table.Predecessor().ID,
	}
	for _, c := range h.conns {
		switch {
		case c.HasFlag(conn.FlagOverlayRole):
			info.Overlay++
		case c.HasFlag(conn.FlagActive):
			info.Clients++
		default:
			info.Ephemeral++
		}
	}
	return info
}
