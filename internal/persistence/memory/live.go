package memory

import (
	"context"
	"sort"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

// CreateLive implements domain.LiveActivityStore.
func (s *Store) CreateLive(_ context.Context, live domain.LiveActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.live {
		if existing.UserID == live.UserID && existing.Status.Open() {
			return domain.ErrLiveActivityOpen
		}
	}
	s.live[live.ID] = cloneLive(live)
	return nil
}

// GetLive returns nil, nil for unknown sessions.
func (s *Store) GetLive(_ context.Context, id string) (*domain.LiveActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live, ok := s.live[id]
	if !ok {
		return nil, nil
	}
	out := cloneLive(live)
	return &out, nil
}

// OpenLive returns the user's active or paused session, or nil.
func (s *Store) OpenLive(_ context.Context, userID string) (*domain.LiveActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, live := range s.live {
		if live.UserID == userID && live.Status.Open() {
			out := cloneLive(live)
			return &out, nil
		}
	}
	return nil, nil
}

// ListLive returns the user's sessions by start time, newest first.
func (s *Store) ListLive(_ context.Context, userID string) ([]domain.LiveActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LiveActivity
	for _, live := range s.live {
		if live.UserID == userID {
			out = append(out, cloneLive(live))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UpdateLive implements domain.LiveActivityStore.
func (s *Store) UpdateLive(_ context.Context, id string, mutate domain.LiveMutation) (domain.LiveActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.live[id]
	if !ok {
		return domain.LiveActivity{}, domain.ErrLiveActivityNotFound
	}
	next := cloneLive(current)
	if err := mutate(&next); err != nil {
		return domain.LiveActivity{}, err
	}
	next.ID = id
	s.live[id] = cloneLive(next)
	return next, nil
}

// DeleteLive implements domain.LiveActivityStore.
func (s *Store) DeleteLive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[id]; !ok {
		return domain.ErrLiveActivityNotFound
	}
	delete(s.live, id)
	return nil
}

func cloneLive(l domain.LiveActivity) domain.LiveActivity {
	l.Route = append([]domain.RoutePoint(nil), l.Route...)
	return l
}
