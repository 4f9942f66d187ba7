package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ojsys/goodfitapp-backend/internal/auth"
)

// NewRouter wires every endpoint. Auth routes other than logout are public;
// everything else requires a valid access token.
func NewRouter(h *Handler, tokens auth.Validator, allowedOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors(allowedOrigin))
	r.Use(requestLogging(h.logger))
	r.Use(recovery(h.logger))
	r.Use(httpMetrics)

	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)
		r.Post("/auth/refresh", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(auth.NewMiddleware(tokens, nil).Wrap)
			r.Use(withUserLogger(h.logger))

			r.Post("/auth/logout", h.logout)

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", h.getProfile)
				r.Patch("/", h.updateProfile)
				r.Put("/password", h.changePassword)
				r.Get("/status", h.getStatus)
				r.Put("/status", h.setStatus)
				r.Get("/goals", h.getGoals)
				r.Put("/goals", h.updateGoals)
				r.Get("/preferences", h.getPreferences)
				r.Put("/preferences", h.updatePreferences)
				r.Get("/stats", h.userStats)
			})

			r.Route("/activities", func(r chi.Router) {
				r.Get("/", h.listActivities)
				r.Post("/", h.createActivity)
				r.Get("/recent", h.recentActivities)
				r.Get("/stats", h.activityStats)
				r.Get("/{activityID}", h.getActivity)
				r.Patch("/{activityID}", h.updateActivity)
				r.Delete("/{activityID}", h.deleteActivity)
			})

			r.Get("/summaries", h.dailySummaries)
			r.Get("/summaries/{date}", h.dailySummary)
			r.Post("/summaries/{date}/recompute", h.recomputeSummary)

			r.Route("/live-activities", func(r chi.Router) {
				r.Get("/", h.listLive)
				r.Post("/", h.startLive)
				r.Get("/active", h.activeLive)
				r.Get("/{liveID}", h.getLive)
				r.Delete("/{liveID}", h.discardLive)
				r.Post("/{liveID}/points", h.addLivePoint)
				r.Post("/{liveID}/pause", h.pauseLive)
				r.Post("/{liveID}/resume", h.resumeLive)
				r.Post("/{liveID}/metrics", h.updateLiveMetrics)
				r.Post("/{liveID}/stop", h.stopLive)
			})
		})
	})

	return r
}
