package outbox

import (
	"context"
	"fmt"

	"github.com/ojsys/goodfitapp-backend/internal/persistence/postgres"
)

// DLQWriter persists failed events for investigation and replay.
type DLQWriter struct {
	db postgres.DBTX
}

// NewDLQWriter initialises a writer backed by the provided database handle.
func NewDLQWriter(db postgres.DBTX) *DLQWriter {
	return &DLQWriter{db: db}
}

// Write records a failed outbox message in the DLQ alongside the supplied reason.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	if _, err := w.db.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW())`,
		msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason, msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
	); err != nil {
		return fmt.Errorf("write dlq entry %d: %w", msg.EventID, err)
	}
	return nil
}
