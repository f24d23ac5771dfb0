package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter persists undeliverable events for replay by the DLQ manager.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// WriteAll records the failed messages in one transaction. Their first
// replay is due immediately.
func (w *DLQWriter) WriteAll(ctx context.Context, failed []failure) error {
	const stmt = `INSERT INTO outbox_dlq (event_id, user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, reason, next_retry_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`

	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, f := range failed {
			batch.Queue(stmt, f.EventID, f.UserID, f.AggregateType, f.AggregateID, f.EventType, f.Topic, f.SchemaSubject, f.PartitionKey, f.Payload, f.Reason)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
