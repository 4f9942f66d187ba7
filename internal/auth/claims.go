package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Config holds signer and verification parameters.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims represents the payload extracted from a JWT.
type Claims struct {
	Subject   string
	Email     string
	Type      TokenType
	ID        string
	Family    string
	Scopes    map[string]struct{}
	IssuedAt  time.Time
	ExpiresAt time.Time
}

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrTokenInvalid wraps signature, issuer and shape failures.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned once a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the token or its family is in the revocation set.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenReused is returned when a rotated-out refresh token is presented again.
	ErrTokenReused = errors.New("refresh token reused")
)

// Outcome maps a token error to a stable code used in responses and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrTokenReused):
		return "token_reused"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	default:
		return "error"
	}
}

// registeredClaims is the signed wire form.
type registeredClaims struct {
	Email  string `json:"email,omitempty"`
	Type   string `json:"typ"`
	Family string `json:"fam"`
	Scope  string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Parse validates a JWT and returns normalized claims. now may be nil.
func Parse(token string, cfg Config, now func() time.Time) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}

	var rc registeredClaims
	parsed, err := jwt.ParseWithClaims(token, &rc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if rc.Subject == "" || rc.ID == "" || rc.Family == "" {
		return nil, ErrTokenInvalid
	}

	typ := TokenType(rc.Type)
	if typ != TokenTypeAccess && typ != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrTokenInvalid, rc.Type)
	}

	claims := &Claims{
		Subject:   rc.Subject,
		Email:     rc.Email,
		Type:      typ,
		ID:        rc.ID,
		Family:    rc.Family,
		Scopes:    normalizeScopes(rc.Scope),
		ExpiresAt: rc.ExpiresAt.Time,
	}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}
	return claims, nil
}

func normalizeScopes(value string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, str := range strings.Split(value, " ") {
		str = strings.TrimSpace(str)
		if str != "" {
			out[str] = struct{}{}
		}
	}
	return out
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
