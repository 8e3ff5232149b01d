// Package metrics declares the hub's Prometheus instrumentation,
// registered once at process start and updated from internal/hub and
// internal/stabilize as connections, purges, and stabilization rounds
// happen.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConnectionsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wanhive_hub_connections",
			Help: "Live connections by class.",
		},
		[]string{"class"}, // ephemeral, client, overlay
	)

	PoolOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wanhive_hub_pool_occupancy",
			Help: "Packet pool slots by state.",
		},
		[]string{"state"}, // allocated, free
	)

	PurgeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wanhive_hub_purge_total",
			Help: "Connections closed by a purge sweep, by mode.",
		},
		[]string{"mode"}, // temporary, invalid, client
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wanhive_hub_registrations_total",
			Help: "basic/register outcomes, by role and result.",
		},
		[]string{"role", "result"}, // role: client|peer, result: accepted|rejected
	)

	DroppedMalformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wanhive_hub_dropped_malformed_total",
			Help: "Frames dropped for being malformed or out-of-order.",
		},
	)

	StabilizationRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wanhive_hub_stabilization_rounds_total",
			Help: "Completed stabilization rounds.",
		},
	)

	StabilizationRoundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wanhive_hub_stabilization_round_duration_seconds",
			Help:    "Wall time of one stabilization round.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
	)

	AuditFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wanhive_hub_audit_flush_total",
			Help: "Audit batch flushes, by sink and result.",
		},
		[]string{"sink", "result"}, // sink: postgres|kafka
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe
// to call more than once (e.g. from tests sharing a process); only the
// first call actually registers anything.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ConnectionsGauge,
			PoolOccupancy,
			PurgeTotal,
			RegistrationsTotal,
			DroppedMalformedTotal,
			StabilizationRoundsTotal,
			StabilizationRoundDuration,
			AuditFlushTotal,
		)
	})
}
