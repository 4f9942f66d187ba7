package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Validator checks an access token.
type Validator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// Middleware provides HTTP middleware for bearer-token validation.
type Middleware struct {
	Validator Validator
	Skipper   Skipper
}

// NewMiddleware constructs a middleware with optional skipper.
func NewMiddleware(v Validator, skipper Skipper) Middleware {
	return Middleware{Validator: v, Skipper: skipper}
}

// PathSkipper skips authentication for the exact paths given.
func PathSkipper(paths ...string) Skipper {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// Wrap wraps an http.Handler with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeAuthError answers 401 for token problems and 500 when validation itself
// failed, such as an unreachable revocation store.
func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	code := Outcome(err)
	if code == "error" {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"type":   "server_error",
			"detail": "token validation unavailable",
		})
		return
	}
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"type":   code,
		"detail": err.Error(),
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	token, err := BearerToken(r)
	if err != nil {
		return nil, err
	}
	return m.Validator.Validate(r.Context(), token)
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", ErrTokenInvalid
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
