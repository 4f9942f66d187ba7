// Package session tracks per-user presence state.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

// ErrInvalidStatus is returned for a status outside online, offline and away.
var ErrInvalidStatus = errors.New("invalid online status")

// State is the presence record kept for a user.
type State struct {
	UserID      string
	Status      domain.OnlineStatus
	LastLoginAt *time.Time
	LastSeenAt  *time.Time
}

// StatusChange is a single presence write. LastLoginAt is only set on login.
type StatusChange struct {
	Status      domain.OnlineStatus
	LastLoginAt *time.Time
	LastSeenAt  time.Time
}

// Store persists presence state.
type Store interface {
	SetStatus(ctx context.Context, userID string, change StatusChange) error
	GetState(ctx context.Context, userID string) (*State, error)
}

// Tracker applies presence transitions.
type Tracker struct {
	store Store
	now   func() time.Time
}

// NewTracker constructs a Tracker.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// OnLogin marks the user online and records the login time.
func (t *Tracker) OnLogin(ctx context.Context, userID string) error {
	now := t.now()
	return t.store.SetStatus(ctx, userID, StatusChange{Status: domain.StatusOnline, LastLoginAt: &now, LastSeenAt: now})
}

// OnLogout marks the user offline.
func (t *Tracker) OnLogout(ctx context.Context, userID string) error {
	return t.store.SetStatus(ctx, userID, StatusChange{Status: domain.StatusOffline, LastSeenAt: t.now()})
}

// SetStatus records an explicit presence change.
func (t *Tracker) SetStatus(ctx context.Context, userID string, status domain.OnlineStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return t.store.SetStatus(ctx, userID, StatusChange{Status: status, LastSeenAt: t.now()})
}

// Status returns the user's presence state.
func (t *Tracker) Status(ctx context.Context, userID string) (*State, error) {
	state, err := t.store.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.ErrUserNotFound
	}
	return state, nil
}
