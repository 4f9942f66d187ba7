package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ojsys/goodfitapp-backend/internal/auth"
	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

func (h *Handler) startLive(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	var req StartLiveRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	live, err := h.live.Start(r.Context(), auth.UserID(r.Context()), domain.ActivityType(req.ActivityType), req.Title)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLiveView(*live, h.now()))
}

func (h *Handler) listLive(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}
	items, err := h.live.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	now := h.now()
	views := make([]LiveActivityView, 0, len(items))
	for _, l := range items {
		views = append(views, toLiveView(l, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

func (h *Handler) activeLive(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}
	live, err := h.live.Active(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if live == nil {
		writeJSON(w, http.StatusOK, ActiveLiveResponse{})
		return
	}
	view := toLiveView(*live, h.now())
	writeJSON(w, http.StatusOK, ActiveLiveResponse{Active: true, LiveActivity: &view})
}

func (h *Handler) getLive(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}
	live, err := h.live.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "liveID"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiveView(*live, h.now()))
}

func (h *Handler) addLivePoint(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	var req GPSPointRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	live, err := h.live.AddPoint(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "liveID"), req.fix())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiveView(*live, h.now()))
}

func (h *Handler) pauseLive(w http.ResponseWriter, r *http.Request) {
	h.transitionLive(w, r, h.live.Pause)
}

func (h *Handler) resumeLive(w http.ResponseWriter, r *http.Request) {
	h.transitionLive(w, r, h.live.Resume)
}

func (h *Handler) transitionLive(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, userID, id string) (*domain.LiveActivity, error)) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	live, err := apply(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "liveID"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiveView(*live, h.now()))
}

func (h *Handler) updateLiveMetrics(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	var req LiveMetricsRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	live, err := h.live.UpdateMetrics(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "liveID"), domain.LiveMetrics{
		Calories:     req.Calories,
		PaceMinPerKm: req.PaceMinPerKm,
		SpeedKmh:     req.SpeedKmh,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLiveView(*live, h.now()))
}

func (h *Handler) stopLive(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	activity, live, err := h.live.Stop(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "liveID"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StopLiveResponse{
		LiveActivity: toLiveView(*live, h.now()),
		Activity:     toActivityView(*activity),
		Message:      "activity saved",
	})
}

func (h *Handler) discardLive(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeActivitiesWrite) {
		return
	}
	if err := h.live.Discard(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "liveID")); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
