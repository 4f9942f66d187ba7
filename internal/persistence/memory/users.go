package memory

import (
	"context"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/session"
)

// CreateUser implements domain.UserRepository.
func (s *Store) CreateUser(_ context.Context, user domain.User, goals domain.Goals, stats domain.UserStats, prefs domain.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := domain.NormalizeEmail(user.Email)
	if _, taken := s.emails[email]; taken {
		return domain.ErrEmailTaken
	}
	s.users[user.ID] = user
	s.emails[email] = user.ID
	s.goals[user.ID] = goals
	s.stats[user.ID] = stats
	s.prefs[user.ID] = prefs
	return nil
}

// GetUserByID implements domain.UserRepository.
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// GetUserByEmail implements domain.UserRepository.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	u := s.users[id]
	return &u, nil
}

// UpdateProfile implements domain.UserRepository.
func (s *Store) UpdateProfile(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	current.DisplayName = user.DisplayName
	current.FirstName = user.FirstName
	current.LastName = user.LastName
	current.AvatarURL = user.AvatarURL
	current.Bio = user.Bio
	current.UpdatedAt = user.UpdatedAt
	s.users[user.ID] = current
	return nil
}

// UpdatePassword implements domain.UserRepository.
func (s *Store) UpdatePassword(_ context.Context, userID, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	s.users[userID] = u
	return nil
}

// GetGoals implements domain.UserRepository.
func (s *Store) GetGoals(_ context.Context, userID string) (*domain.Goals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[userID]
	if !ok {
		return nil, nil
	}
	g.SelectedGoals = append([]string(nil), g.SelectedGoals...)
	return &g, nil
}

// UpdateGoals implements domain.UserRepository.
func (s *Store) UpdateGoals(_ context.Context, goals domain.Goals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[goals.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	goals.SelectedGoals = append([]string(nil), goals.SelectedGoals...)
	s.goals[goals.UserID] = goals
	return nil
}

// GetPreferences implements domain.UserRepository.
func (s *Store) GetPreferences(_ context.Context, userID string) (*domain.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// UpdatePreferences implements domain.UserRepository.
func (s *Store) UpdatePreferences(_ context.Context, prefs domain.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[prefs.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	s.prefs[prefs.UserID] = prefs
	return nil
}

// SetStatus implements session.Store.
func (s *Store) SetStatus(_ context.Context, userID string, change session.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.OnlineStatus = change.Status
	if change.LastLoginAt != nil {
		at := *change.LastLoginAt
		u.LastLoginAt = &at
	}
	seen := change.LastSeenAt
	u.LastSeenAt = &seen
	s.users[userID] = u
	return nil
}

// GetState implements session.Store.
func (s *Store) GetState(_ context.Context, userID string) (*session.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &session.State{
		UserID:      u.ID,
		Status:      u.OnlineStatus,
		LastLoginAt: u.LastLoginAt,
		LastSeenAt:  u.LastSeenAt,
	}, nil
}
