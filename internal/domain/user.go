package domain

import (
	"fmt"
	"strings"
	"time"
)

// OnlineStatus is the presence state recorded per user.
type OnlineStatus string

const (
	StatusOnline  OnlineStatus = "online"
	StatusOffline OnlineStatus = "offline"
	StatusAway    OnlineStatus = "away"
)

// Valid reports whether s is a known status.
func (s OnlineStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway:
		return true
	}
	return false
}

// User is an account holder.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	FirstName    string
	LastName     string
	AvatarURL    string
	Bio          string
	OnlineStatus OnlineStatus
	LastLoginAt  *time.Time
	LastSeenAt   *time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfilePatch carries optional profile updates.
type ProfilePatch struct {
	DisplayName *string
	FirstName   *string
	LastName    *string
	AvatarURL   *string
	Bio         *string
}

func (p ProfilePatch) apply(u User) (User, error) {
	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		if name == "" {
			return u, fmt.Errorf("%w: display_name must not be empty", ErrInvalidInput)
		}
		u.DisplayName = name
	}
	if p.FirstName != nil {
		u.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.AvatarURL != nil {
		u.AvatarURL = strings.TrimSpace(*p.AvatarURL)
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	return u, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Preference enums.
const (
	VisibilityPublic  = "public"
	VisibilityFriends = "friends"
	VisibilityPrivate = "private"

	ThemeLight = "light"
	ThemeDark  = "dark"
	ThemeAuto  = "auto"

	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

// Preferences holds notification, privacy and display settings.
type Preferences struct {
	UserID             string
	EmailNotifications bool
	PushNotifications  bool
	ActivityReminders  bool
	ProfileVisibility  string
	ShowStatsPublicly  bool
	Theme              string
	Units              string
	UpdatedAt          time.Time
}

// DefaultPreferences returns the preferences created alongside a new user.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:             userID,
		EmailNotifications: true,
		PushNotifications:  true,
		ActivityReminders:  true,
		ProfileVisibility:  VisibilityPublic,
		ShowStatsPublicly:  true,
		Theme:              ThemeDark,
		Units:              UnitsMetric,
	}
}

// Validate checks the enum fields.
func (p Preferences) Validate() error {
	var problems []string
	switch p.ProfileVisibility {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
	default:
		problems = append(problems, fmt.Sprintf("profile_visibility %q is not supported", p.ProfileVisibility))
	}
	switch p.Theme {
	case ThemeLight, ThemeDark, ThemeAuto:
	default:
		problems = append(problems, fmt.Sprintf("theme %q is not supported", p.Theme))
	}
	switch p.Units {
	case UnitsMetric, UnitsImperial:
	default:
		problems = append(problems, fmt.Sprintf("units %q is not supported", p.Units))
	}
	return newValidationError(ErrInvalidInput, problems)
}

// TokenPair is the access/refresh pair handed to clients.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}
