package consumer

import (
	"context"
	"fmt"

	"github.com/ojsys/goodfitapp-backend/internal/persistence/postgres"
)

// PersistenceHandler writes consumed events into Postgres for auditing and replay.
type PersistenceHandler struct {
	db postgres.DBTX
}

// NewPersistenceHandler constructs a handler backed by the provided database handle.
func NewPersistenceHandler(db postgres.DBTX) *PersistenceHandler {
	return &PersistenceHandler{db: db}
}

// Handle stores the event payload in the activity_event_log table. Redelivered
// records are ignored by their (topic, partition, offset) identity.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.db.Exec(ctx,
		`INSERT INTO activity_event_log (event_type, user_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.UserID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("log event %s@%d: %w", msg.Topic, msg.Offset, err)
	}
	return nil
}
