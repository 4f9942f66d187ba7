package domain

import (
	"context"
	"sort"
	"time"
)

// ChangeKind describes what happened to an activity.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent is emitted by the activity service after a write commits.
type ChangeEvent struct {
	Kind       ChangeKind
	UserID     string
	ActivityID string
	Before     *Contribution
	After      *Contribution
	OccurredAt time.Time
}

// AffectedDates returns the distinct days whose summaries depend on the change, ascending.
func (e ChangeEvent) AffectedDates() []time.Time {
	var dates []time.Time
	add := func(c *Contribution) {
		if c == nil {
			return
		}
		day := DayOf(c.Date)
		for _, d := range dates {
			if d.Equal(day) {
				return
			}
		}
		dates = append(dates, day)
	}
	add(e.Before)
	add(e.After)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Delta is the stats movement carried by the change.
func (e ChangeEvent) Delta() StatsDelta {
	return StatsDelta{Before: e.Before, After: e.After}
}

// ChangeNotifier consumes activity change events.
type ChangeNotifier interface {
	ActivityChanged(ctx context.Context, event ChangeEvent) error
}
