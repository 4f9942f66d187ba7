package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockUsers struct{ mock.Mock }

func (m *mockUsers) CreateUser(ctx context.Context, user User, goals Goals, stats UserStats, prefs Preferences) error {
	return m.Called(ctx, user, goals, stats, prefs).Error(0)
}

func (m *mockUsers) GetUserByID(ctx context.Context, id string) (*User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsers) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsers) UpdateProfile(ctx context.Context, user User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUsers) UpdatePassword(ctx context.Context, userID, hash string, at time.Time) error {
	return m.Called(ctx, userID, hash, at).Error(0)
}

func (m *mockUsers) GetGoals(ctx context.Context, userID string) (*Goals, error) {
	args := m.Called(ctx, userID)
	if g := args.Get(0); g != nil {
		return g.(*Goals), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsers) UpdateGoals(ctx context.Context, goals Goals) error {
	return m.Called(ctx, goals).Error(0)
}

func (m *mockUsers) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*Preferences), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsers) UpdatePreferences(ctx context.Context, prefs Preferences) error {
	return m.Called(ctx, prefs).Error(0)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) Issue(ctx context.Context, user User) (TokenPair, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(TokenPair), args.Error(1)
}

func (m *mockTokens) Rotate(ctx context.Context, refresh string) (TokenPair, error) {
	args := m.Called(ctx, refresh)
	return args.Get(0).(TokenPair), args.Error(1)
}

func (m *mockTokens) Revoke(ctx context.Context, userID, refresh string, family bool) error {
	return m.Called(ctx, userID, refresh, family).Error(0)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) OnLogin(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockSessions) OnLogout(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func newAccountFixture() (*AccountService, *mockUsers, *mockTokens, *mockSessions) {
	users := &mockUsers{}
	tokens := &mockTokens{}
	sessions := &mockSessions{}
	return NewAccountService(users, tokens, sessions, bcrypt.MinCost), users, tokens, sessions
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestRegisterCreatesDefaultsAndIssuesTokens(t *testing.T) {
	svc, users, tokens, _ := newAccountFixture()
	ctx := context.Background()
	pair := TokenPair{AccessToken: "a", RefreshToken: "r"}

	users.On("CreateUser", ctx,
		mock.MatchedBy(func(u User) bool { return u.Email == "jane@example.com" && u.IsActive }),
		mock.MatchedBy(func(g Goals) bool { return g.DailyStepGoal == 10000 && g.WeeklyWorkoutGoal == 5 && g.DailyCalorieGoal == 500 }),
		mock.MatchedBy(func(s UserStats) bool { return s.TotalWorkouts == 0 }),
		mock.MatchedBy(func(p Preferences) bool { return p.Theme == ThemeDark && p.Units == UnitsMetric }),
	).Return(nil)
	tokens.On("Issue", ctx, mock.AnythingOfType("domain.User")).Return(pair, nil)

	user, got, err := svc.Register(ctx, RegisterInput{Email: "  Jane@Example.com ", Password: "supersecret", DisplayName: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.NotEqual(t, "supersecret", user.PasswordHash)
	assert.Equal(t, pair, got)
	users.AssertExpectations(t)
	tokens.AssertExpectations(t)
}

func TestRegisterValidation(t *testing.T) {
	svc, users, tokens, _ := newAccountFixture()
	_, _, err := svc.Register(context.Background(), RegisterInput{Email: "nope", Password: "short"})
	require.ErrorIs(t, err, ErrInvalidInput)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 3)
	users.AssertNotCalled(t, "CreateUser")
	tokens.AssertNotCalled(t, "Issue")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, users, tokens, _ := newAccountFixture()
	users.On("CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ErrEmailTaken)

	_, _, err := svc.Register(context.Background(), RegisterInput{Email: "a@b.co", Password: "longenough", DisplayName: "A"})
	require.ErrorIs(t, err, ErrEmailTaken)
	tokens.AssertNotCalled(t, "Issue")
}

func TestLoginSuccessMarksOnline(t *testing.T) {
	svc, users, tokens, sessions := newAccountFixture()
	ctx := context.Background()
	user := &User{ID: "user-1", Email: "jane@example.com", PasswordHash: hashed(t, "supersecret"), IsActive: true}
	users.On("GetUserByEmail", ctx, "jane@example.com").Return(user, nil)
	tokens.On("Issue", ctx, *user).Return(TokenPair{AccessToken: "a"}, nil)
	sessions.On("OnLogin", ctx, "user-1").Return(nil)

	got, pair, err := svc.Login(ctx, "JANE@example.com", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, "a", pair.AccessToken)
	assert.Equal(t, StatusOnline, got.OnlineStatus)
	sessions.AssertExpectations(t)
}

func TestLoginFailureNeverTouchesSession(t *testing.T) {
	svc, users, tokens, sessions := newAccountFixture()
	ctx := context.Background()
	user := &User{ID: "user-1", Email: "jane@example.com", PasswordHash: hashed(t, "supersecret"), IsActive: true}
	users.On("GetUserByEmail", ctx, "jane@example.com").Return(user, nil)
	users.On("GetUserByEmail", ctx, "ghost@example.com").Return(nil, nil)

	_, _, err := svc.Login(ctx, "jane@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "ghost@example.com", "whatever1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	tokens.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
	sessions.AssertNotCalled(t, "OnLogin", mock.Anything, mock.Anything)
}

func TestLoginIssueFailureLeavesStatus(t *testing.T) {
	svc, users, tokens, sessions := newAccountFixture()
	ctx := context.Background()
	user := &User{ID: "user-1", Email: "jane@example.com", PasswordHash: hashed(t, "supersecret"), IsActive: true}
	users.On("GetUserByEmail", ctx, "jane@example.com").Return(user, nil)
	tokens.On("Issue", ctx, *user).Return(TokenPair{}, errors.New("signing failed"))

	_, _, err := svc.Login(ctx, "jane@example.com", "supersecret")
	require.Error(t, err)
	sessions.AssertNotCalled(t, "OnLogin", mock.Anything, mock.Anything)
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, users, _, sessions := newAccountFixture()
	user := &User{ID: "user-1", Email: "jane@example.com", PasswordHash: hashed(t, "supersecret")}
	users.On("GetUserByEmail", mock.Anything, "jane@example.com").Return(user, nil)

	_, _, err := svc.Login(context.Background(), "jane@example.com", "supersecret")
	require.ErrorIs(t, err, ErrAccountDisabled)
	sessions.AssertNotCalled(t, "OnLogin", mock.Anything, mock.Anything)
}

func TestLogoutRevokesFamilyThenMarksOffline(t *testing.T) {
	svc, _, tokens, sessions := newAccountFixture()
	ctx := context.Background()
	tokens.On("Revoke", ctx, "user-1", "refresh", true).Return(nil)
	sessions.On("OnLogout", ctx, "user-1").Return(nil)

	require.NoError(t, svc.Logout(ctx, "user-1", "refresh"))
	tokens.AssertExpectations(t)
	sessions.AssertExpectations(t)
}

func TestLogoutWithForeignRefreshTokenChangesNothing(t *testing.T) {
	svc, _, tokens, sessions := newAccountFixture()
	ctx := context.Background()
	foreign := errors.New("invalid token: refresh token belongs to another user")
	tokens.On("Revoke", ctx, "user-1", "someone-elses-refresh", true).Return(foreign)

	err := svc.Logout(ctx, "user-1", "someone-elses-refresh")
	require.ErrorIs(t, err, foreign)
	sessions.AssertNotCalled(t, "OnLogout", mock.Anything, mock.Anything)
}

func TestChangePassword(t *testing.T) {
	svc, users, _, _ := newAccountFixture()
	ctx := context.Background()
	user := &User{ID: "user-1", PasswordHash: hashed(t, "oldpassword")}
	users.On("GetUserByID", ctx, "user-1").Return(user, nil)
	users.On("UpdatePassword", ctx, "user-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	require.ErrorIs(t, svc.ChangePassword(ctx, "user-1", "wrong", "newpassword"), ErrInvalidCredentials)
	require.ErrorIs(t, svc.ChangePassword(ctx, "user-1", "oldpassword", "short"), ErrInvalidInput)
	require.NoError(t, svc.ChangePassword(ctx, "user-1", "oldpassword", "newpassword"))
	users.AssertNumberOfCalls(t, "UpdatePassword", 1)
}

func TestUpdatePreferencesValidatesEnums(t *testing.T) {
	svc, users, _, _ := newAccountFixture()
	prefs := DefaultPreferences("user-1")
	prefs.Theme = "neon"
	_, err := svc.UpdatePreferences(context.Background(), prefs)
	require.ErrorIs(t, err, ErrInvalidInput)
	users.AssertNotCalled(t, "UpdatePreferences", mock.Anything, mock.Anything)
}

func TestUpdateProfileRejectsBlankDisplayName(t *testing.T) {
	svc, users, _, _ := newAccountFixture()
	users.On("GetUserByID", mock.Anything, "user-1").Return(&User{ID: "user-1", DisplayName: "Jane"}, nil)
	blank := "   "
	_, err := svc.UpdateProfile(context.Background(), "user-1", ProfilePatch{DisplayName: &blank})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestProfileNotFound(t *testing.T) {
	svc, users, _, _ := newAccountFixture()
	users.On("GetUserByID", mock.Anything, "nobody").Return(nil, nil)
	_, err := svc.Profile(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrUserNotFound)
}
