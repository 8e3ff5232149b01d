// Package audit exports operational events — registrations, purges,
// stabilization rounds — to a durable store and an async Kafka topic.
// These are operator-facing records, never routed application packets,
// so the hub's no-durable-message-queue rule for routed traffic does not
// apply to them.
package audit

import "time"

// Kind enumerates the operational event categories the hub emits.
type Kind string

const (
	KindRegister  Kind = "register"
	KindPurge     Kind = "purge"
	KindStabilize Kind = "stabilize"
	KindSubscribe Kind = "subscribe"
	KindReload    Kind = "reload"
)

// Event is a single operational record.
type Event struct {
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	HostID    uint64            `json:"host_id"`
	Identity  string            `json:"identity,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}
