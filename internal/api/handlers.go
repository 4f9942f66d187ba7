// Package api exposes HTTP handlers for the GoodFit backend.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ojsys/goodfitapp-backend/internal/auth"
	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/persistence"
	"github.com/ojsys/goodfitapp-backend/internal/session"
)

// defaultSummaryDays is the window served by /summaries when no range is given.
const defaultSummaryDays = 7

// maxSummaryDays caps the /summaries range.
const maxSummaryDays = 366

// Aggregates is the surface of the aggregation engine served over HTTP.
type Aggregates interface {
	DailySummary(ctx context.Context, userID string, date time.Time) (domain.DailySummary, error)
	Recompute(ctx context.Context, userID string, date time.Time) (domain.DailySummary, error)
	DailySummaries(ctx context.Context, userID string, from, to time.Time) ([]domain.DailySummary, error)
	Stats(ctx context.Context, userID string) (domain.UserStats, error)
}

// Presence reads and writes online status.
type Presence interface {
	SetStatus(ctx context.Context, userID string, status domain.OnlineStatus) error
	Status(ctx context.Context, userID string) (*session.State, error)
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	activities *domain.Service
	accounts   *domain.AccountService
	live       *domain.LiveService
	aggregates Aggregates
	presence   Presence
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(activities *domain.Service, accounts *domain.AccountService, live *domain.LiveService, aggregates Aggregates, presence Presence, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		activities: activities,
		accounts:   accounts,
		live:       live,
		aggregates: aggregates,
		presence:   presence,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	user, pair, err := h.accounts.Register(r.Context(), domain.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{User: toUserView(*user), Tokens: pair})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	user, pair, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{User: toUserView(*user), Tokens: pair})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	pair, err := h.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(w, r, &req); err != nil {
			h.writeFailure(w, r, err)
			return
		}
	}
	if err := h.accounts.Logout(r.Context(), auth.UserID(r.Context()), req.RefreshToken); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Profile(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	user, err := h.accounts.UpdateProfile(r.Context(), auth.UserID(r.Context()), req.patch())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), auth.UserID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.presence.Status(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusView(*state))
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	userID := auth.UserID(r.Context())
	if err := h.presence.SetStatus(r.Context(), userID, domain.OnlineStatus(req.Status)); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	state, err := h.presence.Status(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusView(*state))
}

func (h *Handler) getGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.accounts.Goals(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalsView(*goals))
}

func (h *Handler) updateGoals(w http.ResponseWriter, r *http.Request) {
	var req GoalsRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	current, err := h.accounts.Goals(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	goals, err := h.accounts.UpdateGoals(r.Context(), req.merge(*current))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalsView(*goals))
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.accounts.Preferences(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesView(*prefs))
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	current, err := h.accounts.Preferences(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	prefs, err := h.accounts.UpdatePreferences(r.Context(), req.merge(*current))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesView(*prefs))
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.aggregates.Stats(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsView(stats))
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	var req CreateActivityRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	activity, err := h.activities.CreateActivity(r.Context(), auth.UserID(r.Context()), req.draft())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/activities/"+activity.ID)
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}
	activity, err := h.activities.GetActivity(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "activityID"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	var req UpdateActivityRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	activity, err := h.activities.UpdateActivity(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "activityID"), req.patch())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	if err := h.activities.DeleteActivity(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "activityID")); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}
	q := r.URL.Query()

	var filter domain.ActivityFilter
	if raw := q.Get("type"); raw != "" {
		t := domain.ActivityType(raw)
		filter.Type = &t
	}
	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "from: "+err.Error())
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "to: "+err.Error())
		return
	}
	filter.From, filter.To = from, to

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cursor, err := persistence.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid cursor")
		return
	}

	items, next, err := h.activities.ListActivities(r.Context(), auth.UserID(r.Context()), filter, cursor, limit)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      toActivityViews(items),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) recentActivities(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}
	items, err := h.activities.RecentActivities(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toActivityViews(items)})
}

func (h *Handler) activityStats(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}
	since, err := parseTimeParam(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "since: "+err.Error())
		return
	}
	stats, err := h.activities.ActivityStats(r.Context(), auth.UserID(r.Context()), since)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityStatsView(stats, since))
}

func (h *Handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(time.DateOnly, chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	summary, err := h.aggregates.DailySummary(r.Context(), auth.UserID(r.Context()), date)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryView(summary))
}

func (h *Handler) recomputeSummary(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	date, err := time.Parse(time.DateOnly, chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	summary, err := h.aggregates.Recompute(r.Context(), auth.UserID(r.Context()), date)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryView(summary))
}

func (h *Handler) dailySummaries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := domain.DayOf(h.now())
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "to must be YYYY-MM-DD")
			return
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -(defaultSummaryDays - 1))
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if to.Sub(from) > maxSummaryDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, "invalid_request", "range must not exceed "+strconv.Itoa(maxSummaryDays)+" days")
		return
	}

	summaries, err := h.aggregates.DailySummaries(r.Context(), auth.UserID(r.Context()), from, to)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	views := make([]DailySummaryView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, toSummaryView(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

// requireScope writes 403 and returns false unless the caller holds scope.
// Write scope implies read.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token")
		return false
	}
	if claims.HasScope(scope) {
		return true
	}
	if scope == auth.ScopeActivitiesRead && claims.HasScope(auth.ScopeActivitiesWrite) {
		return true
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
	return false
}

// parseTimeParam accepts RFC 3339 timestamps or bare dates (midnight UTC).
func parseTimeParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		u := t.UTC()
		return &u, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
