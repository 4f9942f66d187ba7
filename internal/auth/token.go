package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
	"github.com/ojsys/goodfitapp-backend/internal/observability"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService issues, validates, rotates and revokes token pairs.
type TokenService struct {
	cfg   Config
	store RevocationStore
	now   func() time.Time
	newID func() string
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source used for issuing and validating.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService constructs a TokenService backed by the revocation store.
func NewTokenService(cfg Config, store RevocationStore, opts ...TokenOption) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret must not be empty")
	}
	if store == nil {
		return nil, errors.New("auth: revocation store is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, fmt.Errorf("auth: access ttl %s must be shorter than refresh ttl %s", cfg.AccessTTL, cfg.RefreshTTL)
	}
	s := &TokenService{
		cfg:   cfg,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue starts a new token family for the user.
func (s *TokenService) Issue(_ context.Context, user domain.User) (domain.TokenPair, error) {
	pair, err := s.issuePair(user.ID, user.Email, s.newID())
	observability.RecordTokenOutcome("issue", Outcome(err))
	return pair, err
}

// Validate checks an access token's signature, expiry and revocation state.
func (s *TokenService) Validate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.validate(ctx, token)
	observability.RecordTokenOutcome("validate", Outcome(err))
	return claims, err
}

func (s *TokenService) validate(ctx context.Context, token string) (*Claims, error) {
	claims, err := Parse(token, s.cfg, s.now)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("%w: expected access token", ErrTokenInvalid)
	}
	revoked, err := s.store.IsRevoked(ctx, claims.ID, claims.Family)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Rotate exchanges a refresh token for a new pair in the same family. A refresh
// token that was already consumed revokes the whole family and yields ErrTokenReused.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	pair, err := s.rotate(ctx, refreshToken)
	observability.RecordTokenOutcome("rotate", Outcome(err))
	return pair, err
}

func (s *TokenService) rotate(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	familyRevoked, err := s.store.IsRevoked(ctx, "", claims.Family)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("check revocation: %w", err)
	}
	if familyRevoked {
		return domain.TokenPair{}, ErrTokenRevoked
	}

	first, err := s.store.Consume(ctx, claims.ID, claims.ExpiresAt)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if !first {
		if err := s.store.RevokeFamily(ctx, claims.Family, s.familyExpiry()); err != nil {
			return domain.TokenPair{}, fmt.Errorf("revoke family: %w", err)
		}
		return domain.TokenPair{}, ErrTokenReused
	}

	return s.issuePair(claims.Subject, claims.Email, claims.Family)
}

// Revoke adds the refresh token, and optionally its family, to the revocation
// set. Revoking an expired or already revoked token is a no-op. A non-empty
// userID must match the token subject.
func (s *TokenService) Revoke(ctx context.Context, userID, refreshToken string, wholeFamily bool) error {
	err := s.revoke(ctx, userID, refreshToken, wholeFamily)
	observability.RecordTokenOutcome("revoke", Outcome(err))
	return err
}

func (s *TokenService) revoke(ctx context.Context, userID, refreshToken string, wholeFamily bool) error {
	claims, err := s.parseRefresh(refreshToken)
	if errors.Is(err, ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return err
	}
	if userID != "" && claims.Subject != userID {
		return fmt.Errorf("%w: refresh token belongs to another user", ErrTokenInvalid)
	}
	if _, err := s.store.Consume(ctx, claims.ID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if wholeFamily {
		if err := s.store.RevokeFamily(ctx, claims.Family, s.familyExpiry()); err != nil {
			return fmt.Errorf("revoke family: %w", err)
		}
	}
	return nil
}

func (s *TokenService) parseRefresh(token string) (*Claims, error) {
	claims, err := Parse(token, s.cfg, s.now)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: expected refresh token", ErrTokenInvalid)
	}
	return claims, nil
}

// familyExpiry bounds how long a family entry must be kept: no token in the
// family can outlive a refresh token issued now.
func (s *TokenService) familyExpiry() time.Time {
	return s.now().Add(s.cfg.RefreshTTL)
}

func (s *TokenService) issuePair(userID, email, family string) (domain.TokenPair, error) {
	now := s.now()
	accessExp := now.Add(s.cfg.AccessTTL)
	refreshExp := now.Add(s.cfg.RefreshTTL)

	access, err := s.sign(userID, email, family, TokenTypeAccess, now, accessExp)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.sign(userID, email, family, TokenTypeRefresh, now, refreshExp)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		TokenType:        "Bearer",
	}, nil
}

func (s *TokenService) sign(userID, email, family string, typ TokenType, issuedAt, expiresAt time.Time) (string, error) {
	claims := registeredClaims{
		Email:  email,
		Type:   string(typ),
		Family: family,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.newID(),
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if typ == TokenTypeAccess {
		claims.Scope = joinScopes(DefaultScopes)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}
