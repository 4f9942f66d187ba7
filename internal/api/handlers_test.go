package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ojsys/goodfitapp-backend/internal/aggregation"
	"github.com/ojsys/goodfitapp-backend/internal/auth"
	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/persistence/memory"
	"github.com/ojsys/goodfitapp-backend/internal/session"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	router, _ := newTestEnv(t)
	return router
}

func newTestEnv(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	tokens, err := auth.NewTokenService(auth.Config{Secret: "test-secret", Issuer: "goodfit-test"}, auth.NewMemoryRevocationStore())
	require.NoError(t, err)

	engine := aggregation.NewEngine(store, aggregation.WithLogger(logger))
	tracker := session.NewTracker(store)
	activities := domain.NewService(store, domain.WithNotifier(engine), domain.WithLogger(logger))
	accounts := domain.NewAccountService(store, tokens, tracker, bcrypt.MinCost)
	live := domain.NewLiveService(store, activities, domain.WithLogger(logger))

	return NewRouter(NewHandler(activities, accounts, live, engine, tracker, logger), tokens, "http://localhost:5173"), store
}

func do(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func registerUser(t *testing.T, router http.Handler, email string) AuthResponse {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Email:       email,
		Password:    "correct-horse",
		DisplayName: "Jane",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[AuthResponse](t, rr)
}

func createActivity(t *testing.T, router http.Handler, token string, body map[string]any) ActivityView {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/api/v1/activities", token, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[ActivityView](t, rr)
}

func TestHealthzIsPublicAndEchoesRequestID(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/api/v1/activities", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "missing_token", decode[errorBody](t, rr).Type)

	rr = do(t, router, http.MethodGet, "/api/v1/users/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "token_invalid", decode[errorBody](t, rr).Type)
}

func TestRegisterLoginAndProfile(t *testing.T) {
	router := newTestRouter(t)
	reg := registerUser(t, router, "Jane@Example.com")
	assert.Equal(t, "jane@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.Tokens.AccessToken)

	rr := do(t, router, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Email: "jane@example.com", Password: "another-pass", DisplayName: "Dup",
	})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "jane@example.com", Password: "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid_credentials", decode[errorBody](t, rr).Type)

	rr = do(t, router, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "jane@example.com", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	login := decode[AuthResponse](t, rr)
	assert.Equal(t, "online", login.User.OnlineStatus)

	name := "Jane Runner"
	rr = do(t, router, http.MethodPatch, "/api/v1/users/me", login.Tokens.AccessToken, UpdateProfileRequest{DisplayName: &name})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/api/v1/users/me", login.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Jane Runner", decode[UserView](t, rr).DisplayName)
}

func TestRegisterValidationReportsFields(t *testing.T) {
	router := newTestRouter(t)
	rr := do(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":        "not-an-email",
		"password":     "short",
		"display_name": "Jane",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode[errorBody](t, rr)
	assert.Equal(t, "invalid_request", body.Type)
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "password")
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	router := newTestRouter(t)
	rr := do(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "a@example.com", "password": "x", "remember_me": true,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_request", decode[errorBody](t, rr).Type)
}

func TestRefreshRotationAndReuse(t *testing.T) {
	router := newTestRouter(t)
	reg := registerUser(t, router, "rotate@example.com")

	rr := do(t, router, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rotated := decode[domain.TokenPair](t, rr)
	assert.NotEqual(t, reg.Tokens.RefreshToken, rotated.RefreshToken)

	rr = do(t, router, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "token_reused", decode[errorBody](t, rr).Type)

	rr = do(t, router, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: rotated.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "token_revoked", decode[errorBody](t, rr).Type)
}

func TestLogoutRevokesRefreshFamily(t *testing.T) {
	router, store := newTestEnv(t)
	reg := registerUser(t, router, "logout@example.com")

	rr := do(t, router, http.MethodPost, "/api/v1/auth/logout", reg.Tokens.AccessToken, LogoutRequest{RefreshToken: reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/v1/users/me/status", reg.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "token_revoked", decode[errorBody](t, rr).Type)

	state, err := store.GetState(context.Background(), reg.User.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, domain.StatusOffline, state.Status)
}

func TestLogoutRejectsAnotherUsersRefreshToken(t *testing.T) {
	router := newTestRouter(t)
	victim := registerUser(t, router, "victim@example.com")
	attacker := registerUser(t, router, "attacker@example.com")

	rr := do(t, router, http.MethodPost, "/api/v1/auth/logout", attacker.Tokens.AccessToken, LogoutRequest{RefreshToken: victim.Tokens.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "token_invalid", decode[errorBody](t, rr).Type)

	rr = do(t, router, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: victim.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestActivityLifecycleUpdatesSummaries(t *testing.T) {
	router := newTestRouter(t)
	token := registerUser(t, router, "cyclist@example.com").Tokens.AccessToken

	created := createActivity(t, router, token, map[string]any{
		"activity_type":    "Cycle",
		"title":            "Morning ride",
		"start_time":       "2024-01-02T07:00:00Z",
		"duration_minutes": 40,
		"distance_m":       15000,
	})
	assert.Equal(t, "Cycle", created.ActivityType)
	require.NotEmpty(t, created.ActivityID)

	rr := do(t, router, http.MethodGet, "/api/v1/summaries/2024-01-02", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	summary := decode[DailySummaryView](t, rr)
	assert.Equal(t, 15000.0, summary.TotalDistanceM)
	assert.Equal(t, 1, summary.TotalWorkouts)
	assert.Equal(t, 40, summary.TotalActiveMinutes)

	rr = do(t, router, http.MethodGet, "/api/v1/users/me/stats", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[UserStatsView](t, rr).TotalWorkouts)

	rr = do(t, router, http.MethodDelete, "/api/v1/activities/"+created.ActivityID, token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/api/v1/summaries/2024-01-02", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, decode[DailySummaryView](t, rr).TotalDistanceM)

	rr = do(t, router, http.MethodGet, "/api/v1/users/me/stats", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, decode[UserStatsView](t, rr).TotalWorkouts)

	rr = do(t, router, http.MethodGet, "/api/v1/activities/"+created.ActivityID, token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateMovesActivityBetweenDays(t *testing.T) {
	router := newTestRouter(t)
	token := registerUser(t, router, "mover@example.com").Tokens.AccessToken

	created := createActivity(t, router, token, map[string]any{
		"activity_type":    "Run",
		"title":            "Tempo",
		"start_time":       "2024-02-01T18:00:00Z",
		"duration_minutes": 30,
		"distance_m":       6000,
	})

	rr := do(t, router, http.MethodPatch, "/api/v1/activities/"+created.ActivityID, token, map[string]any{
		"start_time": "2024-02-02T06:00:00Z",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/api/v1/summaries?from=2024-02-01&to=2024-02-02", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var page struct {
		Items []DailySummaryView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	byDate := map[string]DailySummaryView{}
	for _, s := range page.Items {
		byDate[s.Date] = s
	}
	assert.Zero(t, byDate["2024-02-01"].TotalDistanceM)
	assert.Equal(t, 6000.0, byDate["2024-02-02"].TotalDistanceM)
}

func TestCreateActivityValidation(t *testing.T) {
	router := newTestRouter(t)
	token := registerUser(t, router, "invalid@example.com").Tokens.AccessToken

	rr := do(t, router, http.MethodPost, "/api/v1/activities", token, map[string]any{
		"activity_type":    "Skydive",
		"title":            "Jump",
		"start_time":       "2024-01-02T07:00:00Z",
		"duration_minutes": 5,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode[errorBody](t, rr)
	assert.Equal(t, "invalid_request", body.Type)
	assert.Contains(t, body.Fields, "activity_type")

	rr = do(t, router, http.MethodPost, "/api/v1/activities", token, map[string]any{
		"activity_type":    "Run",
		"title":            "Backwards",
		"start_time":       "2024-01-02T07:00:00Z",
		"end_time":         "2024-01-02T06:00:00Z",
		"duration_minutes": 5,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_failed", decode[errorBody](t, rr).Type)
}

func TestActivitiesAreOwnerScoped(t *testing.T) {
	router := newTestRouter(t)
	owner := registerUser(t, router, "owner@example.com").Tokens.AccessToken
	other := registerUser(t, router, "other@example.com").Tokens.AccessToken

	created := createActivity(t, router, owner, map[string]any{
		"activity_type":    "Walk",
		"title":            "Lunch walk",
		"start_time":       "2024-03-01T12:00:00Z",
		"duration_minutes": 20,
	})

	rr := do(t, router, http.MethodPatch, "/api/v1/activities/"+created.ActivityID, other, map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodDelete, "/api/v1/activities/"+created.ActivityID, other, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/v1/activities", other, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[ListActivitiesResponse](t, rr).Items)
}

func TestListActivitiesPaginatesAndFilters(t *testing.T) {
	router := newTestRouter(t)
	token := registerUser(t, router, "lister@example.com").Tokens.AccessToken

	for _, start := range []string{"2024-04-01T07:00:00Z", "2024-04-02T07:00:00Z", "2024-04-03T07:00:00Z"} {
		createActivity(t, router, token, map[string]any{
			"activity_type": "Run", "title": "Run", "start_time": start, "duration_minutes": 10,
		})
	}
	createActivity(t, router, token, map[string]any{
		"activity_type": "Yoga", "title": "Flow", "start_time": "2024-04-02T19:00:00Z", "duration_minutes": 45,
	})

	rr := do(t, router, http.MethodGet, "/api/v1/activities?type=Run&limit=2", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	first := decode[ListActivitiesResponse](t, rr)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "2024-04-03T07:00:00Z", first.Items[0].StartTime.Format("2006-01-02T15:04:05Z07:00"))
	require.NotEmpty(t, first.NextCursor)

	rr = do(t, router, http.MethodGet, "/api/v1/activities?type=Run&limit=2&cursor="+first.NextCursor, token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	second := decode[ListActivitiesResponse](t, rr)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	rr = do(t, router, http.MethodGet, "/api/v1/activities?limit=zero", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/v1/activities?cursor=%25%25", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/v1/activities/stats?since=2024-04-02", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stats := decode[ActivityStatsView](t, rr)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 1, stats.CountByType["Yoga"])
	assert.Equal(t, 45, stats.MaxDurationMin)
}

func TestStatusGoalsAndPreferences(t *testing.T) {
	router := newTestRouter(t)
	token := registerUser(t, router, "prefs@example.com").Tokens.AccessToken

	rr := do(t, router, http.MethodPut, "/api/v1/users/me/status", token, StatusRequest{Status: "away"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "away", decode[StatusView](t, rr).Status)

	rr = do(t, router, http.MethodPut, "/api/v1/users/me/status", token, StatusRequest{Status: "busy"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	steps := 12000
	rr = do(t, router, http.MethodPut, "/api/v1/users/me/goals", token, GoalsRequest{DailyStepGoal: &steps})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	goals := decode[GoalsView](t, rr)
	assert.Equal(t, 12000, goals.DailyStepGoal)
	assert.Equal(t, domain.DefaultDailyCalorieGoal, goals.DailyCalorieGoal)

	theme := "light"
	rr = do(t, router, http.MethodPut, "/api/v1/users/me/preferences", token, PreferencesRequest{Theme: &theme})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	prefs := decode[PreferencesView](t, rr)
	assert.Equal(t, "light", prefs.Theme)
	assert.Equal(t, domain.UnitsMetric, prefs.Units)

	bad := "neon"
	rr = do(t, router, http.MethodPut, "/api/v1/users/me/preferences", token, PreferencesRequest{Theme: &bad})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChangePassword(t *testing.T) {
	router := newTestRouter(t)
	token := registerUser(t, router, "pw@example.com").Tokens.AccessToken

	rr := do(t, router, http.MethodPut, "/api/v1/users/me/password", token, ChangePasswordRequest{CurrentPassword: "nope-nope", NewPassword: "brand-new-pass"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, router, http.MethodPut, "/api/v1/users/me/password", token, ChangePasswordRequest{CurrentPassword: "correct-horse", NewPassword: "brand-new-pass"})
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "pw@example.com", Password: "brand-new-pass"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/activities", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/activities", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequireScope(t *testing.T) {
	readOnly := &auth.Claims{Subject: "u1", Scopes: map[string]struct{}{auth.ScopeActivitiesRead: {}}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readOnly))

	rr := httptest.NewRecorder()
	assert.False(t, requireScope(rr, req, auth.ScopeActivitiesWrite))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	assert.True(t, requireScope(rr, req, auth.ScopeActivitiesRead))
}
