package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/audit"
	"github.com/wanhive/overlay-hub/internal/metrics"
)

// recordEvent appends an operational event to the pending batch. It
// never blocks: the batch is only ever flushed by flushAudit on the
// hub's own periodic tick, in its own goroutine, so request handling is
// never slowed down by the audit store.
func (h *Hub) recordEvent(kind audit.Kind, hostID uint64, identity string, detail map[string]string) {
	if h.auditLog == nil && h.auditProducer == nil {
		return
	}
	h.auditBuffer = append(h.auditBuffer, audit.Event{
		Kind:     kind,
		HostID:   hostID,
		Identity: identity,
		Detail:   detail,
	})
}

// flushAudit drains the pending batch and hands it to the writer and
// producer asynchronously. Called from the hub's tick handler so the
// hub goroutine itself never waits on Postgres or Kafka.
func (h *Hub) flushAudit(ctx context.Context, now time.Time) {
	if len(h.auditBuffer) == 0 {
		return
	}
	batch := h.auditBuffer
	h.auditBuffer = nil
	for i := range batch {
		batch[i].Timestamp = now
	}

	if h.auditLog != nil {
		go func() {
			if _, err := h.auditLog.FlushBatch(ctx, batch); err != nil {
				h.logger.Warn("audit flush failed", zap.Error(err))
				metrics.AuditFlushTotal.WithLabelValues("postgres", "error").Inc()
				return
			}
			metrics.AuditFlushTotal.WithLabelValues("postgres", "ok").Inc()
		}()
	}
	if h.auditProducer != nil {
		go func() {
			if err := h.auditProducer.Publish(ctx, batch); err != nil {
				h.logger.Warn("audit publish failed", zap.Error(err))
				metrics.AuditFlushTotal.WithLabelValues("kafka", "error").Inc()
				return
			}
			metrics.AuditFlushTotal.WithLabelValues("kafka", "ok").Inc()
		}()
	}
}
