package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Writer persists events to the audit_events table, batched the same
// way the hub's other pgx collaborators batch writes.
type Writer struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewWriter creates a Writer backed by pool.
func NewWriter(pool *pgxpool.Pool, logger *zap.Logger) *Writer {
	return &Writer{pool: pool, logger: logger.Named("audit")}
}

// FlushBatch inserts a batch of events, returning the number of rows
// actually inserted.
func (w *Writer) FlushBatch(ctx context.Context, events []Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO audit_events (kind, recorded_at, host_id, identity, detail)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, e := range events {
		var detailJSON []byte
		if len(e.Detail) > 0 {
			detailJSON, _ = json.Marshal(e.Detail)
		}
		batch.Queue(insertSQL, string(e.Kind), e.Timestamp, e.HostID, e.Identity, detailJSON)
	}

	results := tx.SendBatch(ctx, batch)
	var inserted int64
	for i := range events {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("audit: insert event[%d]: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("audit: closing batch results: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("audit: commit tx: %w", err)
	}

	w.logger.Debug("flushed audit batch", zap.Int64("inserted", inserted), zap.Int("batch_size", len(events)))
	return inserted, nil
}

// PurgeOlderThan deletes audit rows recorded more than age ago.
// internal/maintenance does not call it; its sweep drops whole daily
// partitions instead.
func (w *Writer) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := w.pool.Exec(ctx,
		`DELETE FROM audit_events WHERE recorded_at < $1`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
