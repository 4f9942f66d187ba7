package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/events"
)

// Recomputer rebuilds a stored daily summary from the activities of that day.
type Recomputer interface {
	Recompute(ctx context.Context, userID string, date time.Time) (domain.DailySummary, error)
}

// RecomputeHandler repairs daily summaries touched by an activity change.
// Recomputation is idempotent, so redelivery and events already applied
// synchronously by the API are harmless. Lifetime stats are left to the
// reconciler because deltas are not idempotent.
type RecomputeHandler struct {
	engine Recomputer
	logger *slog.Logger
}

// NewRecomputeHandler constructs a RecomputeHandler.
func NewRecomputeHandler(engine Recomputer, logger *slog.Logger) *RecomputeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeHandler{engine: engine, logger: logger}
}

// Handle decodes the activity event and recomputes each affected date.
func (h *RecomputeHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeActivityCreated, events.TypeActivityUpdated, events.TypeActivityDeleted:
	default:
		h.logger.DebugContext(ctx, "ignoring event", slog.String("event_type", msg.EventType))
		return nil
	}

	var payload events.ActivityChanged
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		// Undecodable payloads will never succeed on retry.
		h.logger.WarnContext(ctx, "skipping malformed activity event",
			slog.Int64("offset", msg.Offset),
			slog.Any("error", err),
		)
		recordDecodeError(msg.Topic)
		return nil
	}
	change, err := payload.ChangeEvent()
	if err != nil {
		h.logger.WarnContext(ctx, "skipping invalid activity event",
			slog.String("activity_id", payload.ActivityID),
			slog.Any("error", err),
		)
		recordDecodeError(msg.Topic)
		return nil
	}

	for _, date := range change.AffectedDates() {
		if _, err := h.engine.Recompute(ctx, change.UserID, date); err != nil {
			return fmt.Errorf("recompute %s %s: %w", change.UserID, date.Format(time.DateOnly), err)
		}
	}
	return nil
}
