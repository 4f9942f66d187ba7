// Package events defines the payloads published to Kafka for activity changes.
package events

import (
	"fmt"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

// Event types carried in the outbox and the Kafka event_type header.
const (
	TypeActivityCreated = "activity.created"
	TypeActivityUpdated = "activity.updated"
	TypeActivityDeleted = "activity.deleted"
)

// TopicActivityEvents receives every activity change, keyed by user id.
const TopicActivityEvents = "activity_events"

// Contribution is the wire form of domain.Contribution. Date is YYYY-MM-DD in UTC.
type Contribution struct {
	Date      string  `json:"date"`
	Workouts  int     `json:"workouts"`
	Minutes   int     `json:"minutes"`
	Calories  int     `json:"calories"`
	DistanceM float64 `json:"distance_m"`
}

// ActivityChanged is emitted when an activity is created, updated or deleted.
type ActivityChanged struct {
	ActivityID   string        `json:"activity_id"`
	UserID       string        `json:"user_id"`
	Kind         string        `json:"kind"`
	ActivityType string        `json:"activity_type,omitempty"`
	Before       *Contribution `json:"before,omitempty"`
	After        *Contribution `json:"after,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// TypeFor maps a change kind to its event type.
func TypeFor(kind domain.ChangeKind) (string, error) {
	switch kind {
	case domain.ChangeCreated:
		return TypeActivityCreated, nil
	case domain.ChangeUpdated:
		return TypeActivityUpdated, nil
	case domain.ChangeDeleted:
		return TypeActivityDeleted, nil
	}
	return "", fmt.Errorf("unknown change kind %q", kind)
}

// FromChange builds the payload for event. activityType may be empty for deletes.
func FromChange(event domain.ChangeEvent, activityType domain.ActivityType) ActivityChanged {
	return ActivityChanged{
		ActivityID:   event.ActivityID,
		UserID:       event.UserID,
		Kind:         string(event.Kind),
		ActivityType: string(activityType),
		Before:       wireContribution(event.Before),
		After:        wireContribution(event.After),
		OccurredAt:   event.OccurredAt.UTC(),
	}
}

// ChangeEvent converts the payload back into a domain change event.
func (e ActivityChanged) ChangeEvent() (domain.ChangeEvent, error) {
	if e.UserID == "" {
		return domain.ChangeEvent{}, fmt.Errorf("event for activity %q has no user_id", e.ActivityID)
	}
	before, err := e.Before.domain()
	if err != nil {
		return domain.ChangeEvent{}, err
	}
	after, err := e.After.domain()
	if err != nil {
		return domain.ChangeEvent{}, err
	}
	return domain.ChangeEvent{
		Kind:       domain.ChangeKind(e.Kind),
		UserID:     e.UserID,
		ActivityID: e.ActivityID,
		Before:     before,
		After:      after,
		OccurredAt: e.OccurredAt,
	}, nil
}

func wireContribution(c *domain.Contribution) *Contribution {
	if c == nil {
		return nil
	}
	return &Contribution{
		Date:      domain.DayOf(c.Date).Format(time.DateOnly),
		Workouts:  c.Workouts,
		Minutes:   c.Minutes,
		Calories:  c.Calories,
		DistanceM: c.DistanceM,
	}
}

func (c *Contribution) domain() (*domain.Contribution, error) {
	if c == nil {
		return nil, nil
	}
	date, err := time.Parse(time.DateOnly, c.Date)
	if err != nil {
		return nil, fmt.Errorf("parse contribution date: %w", err)
	}
	return &domain.Contribution{
		Date:      date,
		Workouts:  c.Workouts,
		Minutes:   c.Minutes,
		Calories:  c.Calories,
		DistanceM: c.DistanceM,
	}, nil
}
