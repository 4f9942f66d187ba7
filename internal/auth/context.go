package auth

import "context"

type contextKey string

const claimsKey contextKey = "goodfit-auth-claims"

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// UserID returns the authenticated subject, or "" when the context is anonymous.
func UserID(ctx context.Context) string {
	if claims, ok := FromContext(ctx); ok && claims != nil {
		return claims.Subject
	}
	return ""
}
