package hub

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/conn"
	"github.com/wanhive/overlay-hub/internal/metrics"
	"github.com/wanhive/overlay-hub/internal/route"
)

// purgeMode selects which connections a purge sweep targets.
type purgeMode int

const (
	// purgeTemporary drops ephemeral connections that never completed
	// registration: the cheapest class to reclaim since they hold no
	// routing-table or topic state.
	purgeTemporary purgeMode = iota
	// purgeInvalid drops registered, non-overlay connections whose
	// identifier no longer maps into this hub's share of the key space,
	// the signal Notify raises on a predecessor change.
	purgeInvalid
	// purgeClient drops registered client connections, oldest-idle
	// first, as a last resort under sustained pressure.
	purgeClient
)

func (m purgeMode) String() string {
	switch m {
	case purgeTemporary:
		return "temporary"
	case purgeInvalid:
		return "invalid"
	case purgeClient:
		return "client"
	default:
		return "unknown"
	}
}

// purge runs one sweep in mode, closing connections until target have
// been removed or the mode is exhausted. It returns the number actually
// closed. Overlay peers, the controller, and priority connections are
// never purge candidates.
func (h *Hub) purge(mode purgeMode, target int) int {
	if target <= 0 {
		return 0
	}
	var candidates []*conn.Connection
	for _, c := range h.conns {
		if c.HasFlag(conn.FlagPriority) || c.HasFlag(conn.FlagOverlayRole) {
			continue
		}
		switch mode {
		case purgeTemporary:
			if !c.HasFlag(conn.FlagActive) {
				candidates = append(candidates, c)
			}
		case purgeInvalid:
			if c.HasFlag(conn.FlagActive) && h.outOfRange(c.ID) {
				candidates = append(candidates, c)
			}
		case purgeClient:
			if c.HasFlag(conn.FlagActive) {
				candidates = append(candidates, c)
			}
		}
	}
	if mode == purgeClient {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].LastIO.Before(candidates[j].LastIO)
		})
	}

	closed := 0
	for _, c := range candidates {
		if closed >= target {
			break
		}
		h.logger.Info("purging connection",
			zap.Uint64("id", c.ID), zap.Stringer("mode", mode))
		h.remove(c)
		closed++
	}
	h.purgeCount += uint64(closed)
	if closed > 0 {
		metrics.PurgeTotal.WithLabelValues(mode.String()).Add(float64(closed))
	}
	return closed
}

// outOfRange reports whether id no longer falls under this hub's
// half of the key space, i.e. it is not in (predecessor, self].
func (h *Hub) outOfRange(id uint64) bool {
	mapped := route.Map(id, h.table.Size(), h.cfg.MaxNodes)
	return h.table.LocalSuccessor(mapped) != h.table.Self()
}

// runPurgeSweep escalates through the three purge modes until target
// connections are reclaimed or every mode has been tried. Accept invokes
// it when the connection table is full; packet-pool exhaustion does not
// trigger a sweep.
func (h *Hub) runPurgeSweep(target int) int {
	total := 0
	for _, mode := range []purgeMode{purgeTemporary, purgeInvalid, purgeClient} {
		total += h.purge(mode, target-total)
		if total >= target {
			break
		}
	}
	return total
}
