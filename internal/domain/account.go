package domain

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// DefaultBcryptCost is the hashing cost used for new passwords.
const DefaultBcryptCost = 12

// UserRepository persists accounts and their per-user records.
type UserRepository interface {
	// CreateUser stores the user with its goals, stats and preferences atomically.
	CreateUser(ctx context.Context, user User, goals Goals, stats UserStats, prefs Preferences) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, user User) error
	UpdatePassword(ctx context.Context, userID, hash string, at time.Time) error
	GetGoals(ctx context.Context, userID string) (*Goals, error)
	UpdateGoals(ctx context.Context, goals Goals) error
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	UpdatePreferences(ctx context.Context, prefs Preferences) error
}

// TokenIssuer is the slice of the token service the account flows need.
type TokenIssuer interface {
	Issue(ctx context.Context, user User) (TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (TokenPair, error)
	// Revoke rejects a refresh token whose subject is not userID.
	Revoke(ctx context.Context, userID, refreshToken string, wholeFamily bool) error
}

// SessionTracker records presence changes around login and logout.
type SessionTracker interface {
	OnLogin(ctx context.Context, userID string) error
	OnLogout(ctx context.Context, userID string) error
}

// RegisterInput is the payload for a new account.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	FirstName   string
	LastName    string
}

// AccountService coordinates registration, login and profile management.
type AccountService struct {
	users    UserRepository
	tokens   TokenIssuer
	sessions SessionTracker
	cost     int
	now      func() time.Time
}

// NewAccountService constructs an AccountService. A cost of 0 selects DefaultBcryptCost.
func NewAccountService(users UserRepository, tokens TokenIssuer, sessions SessionTracker, cost int) *AccountService {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	return &AccountService{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		cost:     cost,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates the user with default goals, stats and preferences, then issues tokens.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*User, TokenPair, error) {
	email := NormalizeEmail(in.Email)
	displayName := strings.TrimSpace(in.DisplayName)

	var problems []string
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		problems = append(problems, "email is invalid")
	}
	if len(in.Password) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if displayName == "" {
		problems = append(problems, "display_name is required")
	}
	if err := newValidationError(ErrInvalidInput, problems); err != nil {
		return nil, TokenPair{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		OnlineStatus: StatusOffline,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	goals := DefaultGoals(user.ID)
	goals.UpdatedAt = now
	prefs := DefaultPreferences(user.ID)
	prefs.UpdatedAt = now
	stats := UserStats{UserID: user.ID, UpdatedAt: now}

	if err := s.users.CreateUser(ctx, user, goals, stats, prefs); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, TokenPair{}, err
		}
		return nil, TokenPair{}, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return &user, pair, nil
}

// Login checks credentials, issues tokens and marks the user online.
func (s *AccountService) Login(ctx context.Context, email, password string) (*User, TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, TokenPair{}, ErrAccountDisabled
	}

	pair, err := s.tokens.Issue(ctx, *user)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.sessions.OnLogin(ctx, user.ID); err != nil {
		return nil, TokenPair{}, fmt.Errorf("record login: %w", err)
	}
	user.OnlineStatus = StatusOnline
	return user, pair, nil
}

// Logout marks the user offline and revokes the refresh token's family when one is given.
// A refresh token issued to another user is rejected and nothing changes.
func (s *AccountService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken != "" {
		if err := s.tokens.Revoke(ctx, userID, refreshToken, true); err != nil {
			return err
		}
	}
	if err := s.sessions.OnLogout(ctx, userID); err != nil {
		return fmt.Errorf("record logout: %w", err)
	}
	return nil
}

// Refresh rotates a refresh token.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return s.tokens.Rotate(ctx, refreshToken)
}

// Profile returns the user record.
func (s *AccountService) Profile(ctx context.Context, userID string) (*User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile applies profile changes.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated, err := patch.apply(*user)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now()
	if err := s.users.UpdateProfile(ctx, updated); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &updated, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if len(next) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, userID, string(hash), s.now())
}

// Goals returns the user's goals.
func (s *AccountService) Goals(ctx context.Context, userID string) (*Goals, error) {
	goals, err := s.users.GetGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	if goals == nil {
		return nil, ErrUserNotFound
	}
	return goals, nil
}

// UpdateGoals replaces the user's goals.
func (s *AccountService) UpdateGoals(ctx context.Context, goals Goals) (*Goals, error) {
	if err := goals.Validate(); err != nil {
		return nil, err
	}
	if goals.SelectedGoals == nil {
		goals.SelectedGoals = []string{}
	}
	goals.UpdatedAt = s.now()
	if err := s.users.UpdateGoals(ctx, goals); err != nil {
		return nil, fmt.Errorf("update goals: %w", err)
	}
	return &goals, nil
}

// Preferences returns the user's preferences.
func (s *AccountService) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	prefs, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return nil, ErrUserNotFound
	}
	return prefs, nil
}

// UpdatePreferences replaces the user's preferences.
func (s *AccountService) UpdatePreferences(ctx context.Context, prefs Preferences) (*Preferences, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	prefs.UpdatedAt = s.now()
	if err := s.users.UpdatePreferences(ctx, prefs); err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return &prefs, nil
}
