// Package memory provides an in-process store used for tests and single-node development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/aggregation"
	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/session"
)

type summaryKey struct {
	userID string
	date   string
}

// Store keeps users, activities and derived rows in memory.
type Store struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	emails     map[string]string
	goals      map[string]domain.Goals
	prefs      map[string]domain.Preferences
	stats      map[string]domain.UserStats
	activities map[string]domain.Activity
	summaries  map[summaryKey]domain.DailySummary
	changes    []domain.ChangeEvent
	live       map[string]domain.LiveActivity
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:      make(map[string]domain.User),
		emails:     make(map[string]string),
		goals:      make(map[string]domain.Goals),
		prefs:      make(map[string]domain.Preferences),
		stats:      make(map[string]domain.UserStats),
		activities: make(map[string]domain.Activity),
		summaries:  make(map[summaryKey]domain.DailySummary),
		live:       make(map[string]domain.LiveActivity),
	}
}

var (
	_ domain.ActivityRepository = (*Store)(nil)
	_ domain.UserRepository     = (*Store)(nil)
	_ aggregation.Store         = (*Store)(nil)
	_ session.Store             = (*Store)(nil)
	_ domain.LiveActivityStore  = (*Store)(nil)
)

// Changes returns the change events recorded alongside activity writes.
func (s *Store) Changes() []domain.ChangeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChangeEvent(nil), s.changes...)
}

// Create implements domain.ActivityRepository.
func (s *Store) Create(_ context.Context, activity domain.Activity, event domain.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[activity.ID] = cloneActivity(activity)
	s.recordLocked(event)
	return nil
}

// Update implements domain.ActivityRepository.
func (s *Store) Update(_ context.Context, activityID string, mutate domain.ActivityMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.activities[activityID]
	if !ok {
		return domain.ErrActivityNotFound
	}
	next, event, err := mutate(cloneActivity(current))
	if err != nil {
		return err
	}
	next.ID = activityID
	s.activities[activityID] = cloneActivity(next)
	s.recordLocked(event)
	return nil
}

// Delete implements domain.ActivityRepository.
func (s *Store) Delete(_ context.Context, activityID string, remove domain.ActivityRemoval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.activities[activityID]
	if !ok {
		return domain.ErrActivityNotFound
	}
	event, err := remove(cloneActivity(current))
	if err != nil {
		return err
	}
	delete(s.activities, activityID)
	s.recordLocked(event)
	return nil
}

// recordLocked folds the change into the owner's stats and keeps the event.
func (s *Store) recordLocked(event domain.ChangeEvent) {
	if delta := event.Delta(); !delta.IsZero() {
		stats, ok := s.stats[event.UserID]
		if !ok {
			stats = domain.UserStats{UserID: event.UserID}
		}
		stats.Apply(delta)
		stats.UpdatedAt = event.OccurredAt
		s.stats[event.UserID] = stats
	}
	s.changes = append(s.changes, event)
}

// Get implements domain.ActivityRepository.
func (s *Store) Get(_ context.Context, activityID string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[activityID]
	if !ok {
		return nil, nil
	}
	out := cloneActivity(a)
	return &out, nil
}

// List implements domain.ActivityRepository.
func (s *Store) List(_ context.Context, userID string, filter domain.ActivityFilter, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	s.mu.RLock()
	items := s.filterLocked(userID, filter)
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].StartTime.After(items[j].StartTime)
		}
		return items[i].ID > items[j].ID
	})

	out := make([]domain.Activity, 0, limit)
	for _, a := range items {
		if cursor != nil && !before(a, cursor) {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(out) == limit && limit > 0 {
		last := out[len(out)-1]
		next = &domain.Cursor{StartedAt: last.StartTime, ID: last.ID}
	}
	return out, next, nil
}

// ListAll implements domain.ActivityRepository.
func (s *Store) ListAll(_ context.Context, userID string, filter domain.ActivityFilter) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(userID, filter), nil
}

func (s *Store) filterLocked(userID string, filter domain.ActivityFilter) []domain.Activity {
	var out []domain.Activity
	for _, a := range s.activities {
		if a.UserID == userID && filter.Matches(a) {
			out = append(out, cloneActivity(a))
		}
	}
	return out
}

// before reports whether a sorts strictly after the cursor position in (start_time, id) DESC order.
func before(a domain.Activity, c *domain.Cursor) bool {
	if a.StartTime.Equal(c.StartedAt) {
		return a.ID < c.ID
	}
	return a.StartTime.Before(c.StartedAt)
}

func cloneActivity(a domain.Activity) domain.Activity {
	a.Route = append([]domain.RoutePoint(nil), a.Route...)
	return a
}

// RecomputeDailySummary implements aggregation.Store.
func (s *Store) RecomputeDailySummary(_ context.Context, userID string, date time.Time, build aggregation.SummaryBuilder) (domain.DailySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := domain.DayOf(date)
	next := day.AddDate(0, 0, 1)
	activities := s.filterLocked(userID, domain.ActivityFilter{From: &day, To: &next})
	goals, ok := s.goals[userID]
	if !ok {
		goals = domain.DefaultGoals(userID)
	}
	summary := build(activities, goals)
	s.summaries[summaryKey{userID: userID, date: day.Format(time.DateOnly)}] = summary
	return summary, nil
}

// ReplaceStats implements aggregation.Store.
func (s *Store) ReplaceStats(_ context.Context, userID string, build aggregation.StatsBuilder, at time.Time) (domain.UserStats, domain.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.stats[userID]
	next := build(s.filterLocked(userID, domain.ActivityFilter{}))
	next.UserID = userID
	next.UpdatedAt = at
	s.stats[userID] = next
	return prev, next, nil
}

// GetDailySummary implements aggregation.Store.
func (s *Store) GetDailySummary(_ context.Context, userID string, date time.Time) (*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[summaryKey{userID: userID, date: domain.DayOf(date).Format(time.DateOnly)}]
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

// ListDailySummaries implements aggregation.Store.
func (s *Store) ListDailySummaries(_ context.Context, userID string, from, to time.Time) ([]domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DailySummary
	for key, summary := range s.summaries {
		if key.userID != userID {
			continue
		}
		if summary.Date.Before(from) || summary.Date.After(to) {
			continue
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// GetStats implements aggregation.Store.
func (s *Store) GetStats(_ context.Context, userID string) (*domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[userID]
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

// ListUserIDs implements aggregation.Store.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.users))
	for id := range s.users {
		seen[id] = struct{}{}
	}
	for id := range s.stats {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
