// Package domain defines the business logic for activities, accounts and derived statistics.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ojsys/goodfitapp-backend/internal/observability"
)

// List limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	RecentWindow = 30 * 24 * time.Hour
	RecentLimit  = 20
)

// Cursor models the pagination token.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// ActivityFilter narrows list queries. From is inclusive, To exclusive.
type ActivityFilter struct {
	Type *ActivityType
	From *time.Time
	To   *time.Time
}

// Matches reports whether a passes the filter.
func (f ActivityFilter) Matches(a Activity) bool {
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	if f.From != nil && a.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.StartTime.Before(*f.To) {
		return false
	}
	return true
}

// ActivityMutation receives the stored activity, locked until the write commits,
// and returns the row to store together with the change it records.
type ActivityMutation func(current Activity) (Activity, ChangeEvent, error)

// ActivityRemoval receives the stored activity, locked until the delete commits,
// and returns the change its removal records.
type ActivityRemoval func(current Activity) (ChangeEvent, error)

// ActivityRepository captures persistence operations. Each write is one transaction
// that stores the activity, folds the change's stats delta into the owner's stats
// row and records the change event. Update and Delete return ErrActivityNotFound
// for a missing row and propagate errors returned by the callback.
type ActivityRepository interface {
	Create(ctx context.Context, activity Activity, event ChangeEvent) error
	Update(ctx context.Context, activityID string, mutate ActivityMutation) error
	Delete(ctx context.Context, activityID string, remove ActivityRemoval) error
	Get(ctx context.Context, activityID string) (*Activity, error)
	List(ctx context.Context, userID string, filter ActivityFilter, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	ListAll(ctx context.Context, userID string, filter ActivityFilter) ([]Activity, error)
}

// ActivityStats summarises a user's activities over a window.
type ActivityStats struct {
	Count            int
	TotalDistanceM   float64
	TotalDurationMin int
	TotalCalories    int
	AverageDuration  float64
	MaxDurationMin   int
	CountByType      map[ActivityType]int
}

// Service orchestrates activity workflows.
type Service struct {
	repo     ActivityRepository
	notifier ChangeNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithNotifier registers the consumer of change events.
func WithNotifier(n ChangeNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger used for post-commit failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateActivity validates the draft, persists it and notifies the aggregation engine.
func (s *Service) CreateActivity(ctx context.Context, userID string, draft ActivityDraft) (*Activity, error) {
	activity := draft.toActivity()
	activity.UserID = userID
	if err := activity.Validate(); err != nil {
		return nil, err
	}
	activity.DeriveMetrics()

	now := s.now()
	activity.ID = uuid.NewString()
	activity.CreatedAt = now
	activity.UpdatedAt = now

	after := activity.Contribution()
	event := ChangeEvent{
		Kind:       ChangeCreated,
		UserID:     userID,
		ActivityID: activity.ID,
		After:      &after,
		OccurredAt: now,
	}
	if err := s.repo.Create(ctx, activity, event); err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	s.notify(ctx, event)
	return &activity, nil
}

// UpdateActivity applies a patch to an activity owned by userID. The change is
// built from the row as locked by the write, so concurrent updates each move the
// stats from the version they replaced.
func (s *Service) UpdateActivity(ctx context.Context, userID, activityID string, patch ActivityPatch) (*Activity, error) {
	var (
		updated Activity
		event   ChangeEvent
	)
	err := s.repo.Update(ctx, activityID, func(current Activity) (Activity, ChangeEvent, error) {
		if current.UserID != userID {
			return Activity{}, ChangeEvent{}, ErrForbidden
		}
		next := patch.apply(current)
		if err := next.Validate(); err != nil {
			return Activity{}, ChangeEvent{}, err
		}
		next.DeriveMetrics()
		now := s.now()
		next.UpdatedAt = now

		before := current.Contribution()
		after := next.Contribution()
		updated = next
		event = ChangeEvent{
			Kind:       ChangeUpdated,
			UserID:     userID,
			ActivityID: activityID,
			Before:     &before,
			After:      &after,
			OccurredAt: now,
		}
		return next, event, nil
	})
	if err != nil {
		return nil, writeErr("update activity", err)
	}
	s.notify(ctx, event)
	return &updated, nil
}

// DeleteActivity removes an activity owned by userID.
func (s *Service) DeleteActivity(ctx context.Context, userID, activityID string) error {
	var event ChangeEvent
	err := s.repo.Delete(ctx, activityID, func(current Activity) (ChangeEvent, error) {
		if current.UserID != userID {
			return ChangeEvent{}, ErrForbidden
		}
		before := current.Contribution()
		event = ChangeEvent{
			Kind:       ChangeDeleted,
			UserID:     userID,
			ActivityID: activityID,
			Before:     &before,
			OccurredAt: s.now(),
		}
		return event, nil
	})
	if err != nil {
		return writeErr("delete activity", err)
	}
	s.notify(ctx, event)
	return nil
}

// GetActivity fetches an activity owned by userID.
func (s *Service) GetActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	return s.owned(ctx, userID, activityID)
}

// ListActivities fetches activities with cursor pagination, newest first.
func (s *Service) ListActivities(ctx context.Context, userID string, filter ActivityFilter, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, nil, fmt.Errorf("%w: type %q is not supported", ErrInvalidInput, *filter.Type)
	}
	return s.repo.List(ctx, userID, filter, cursor, limit)
}

// RecentActivities returns up to RecentLimit activities from the last RecentWindow.
func (s *Service) RecentActivities(ctx context.Context, userID string) ([]Activity, error) {
	from := s.now().Add(-RecentWindow)
	items, _, err := s.repo.List(ctx, userID, ActivityFilter{From: &from}, nil, RecentLimit)
	return items, err
}

// ActivityStats aggregates the user's activities that started at or after since.
func (s *Service) ActivityStats(ctx context.Context, userID string, since *time.Time) (ActivityStats, error) {
	items, err := s.repo.ListAll(ctx, userID, ActivityFilter{From: since})
	if err != nil {
		return ActivityStats{}, err
	}
	stats := ActivityStats{CountByType: make(map[ActivityType]int)}
	for _, a := range items {
		c := a.Contribution()
		stats.Count++
		stats.TotalDistanceM += c.DistanceM
		stats.TotalDurationMin += c.Minutes
		stats.TotalCalories += c.Calories
		if a.DurationMin > stats.MaxDurationMin {
			stats.MaxDurationMin = a.DurationMin
		}
		stats.CountByType[a.Type]++
	}
	if stats.Count > 0 {
		stats.AverageDuration = float64(stats.TotalDurationMin) / float64(stats.Count)
	}
	return stats, nil
}

func (s *Service) owned(ctx context.Context, userID, activityID string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	if activity.UserID != userID {
		return nil, ErrForbidden
	}
	return activity, nil
}

// writeErr wraps infrastructure failures and passes domain errors through unchanged.
func writeErr(op string, err error) error {
	var verr *ValidationError
	if errors.Is(err, ErrActivityNotFound) || errors.Is(err, ErrForbidden) || errors.As(err, &verr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// notify hands the event to the aggregation engine for summary recomputation.
// The write and its stats delta have already committed, so failures are logged
// and left to the outbox replay.
func (s *Service) notify(ctx context.Context, event ChangeEvent) {
	observability.RecordActivityPersisted(event.OccurredAt)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ActivityChanged(ctx, event); err != nil {
		observability.RecordNotificationFailure(string(event.Kind))
		s.logger.ErrorContext(ctx, "aggregation notification failed",
			slog.String("user_id", event.UserID),
			slog.String("activity_id", event.ActivityID),
			slog.String("kind", string(event.Kind)),
			slog.Any("error", err),
		)
	}
}
