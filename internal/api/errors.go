package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ojsys/goodfitapp-backend/internal/auth"
	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/logger"
	"github.com/ojsys/goodfitapp-backend/internal/session"
)

// errorBody is the JSON body of every non-2xx response.
type errorBody struct {
	Type     string            `json:"type"`
	Detail   string            `json:"detail"`
	Problems []string          `json:"problems,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Type: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("encode response", slog.Any("error", err))
	}
}

// writeFailure maps err onto a status code and error body.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Type: "invalid_request", Detail: reqErr.msg, Fields: reqErr.fields})
		return
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Type: "validation_failed", Detail: verr.Error(), Problems: verr.Problems})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidActivity),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, session.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrTokenReused):
		writeError(w, http.StatusUnauthorized, auth.Outcome(err), err.Error())
	case errors.Is(err, domain.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "account_disabled", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "resource belongs to another user")
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrLiveActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "live activity not found")
	case errors.Is(err, domain.ErrLiveActivityOpen):
		writeError(w, http.StatusConflict, "live_activity_open", err.Error())
	case errors.Is(err, domain.ErrLiveActivityState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	default:
		logger.WithContext(r.Context(), h.logger).ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
