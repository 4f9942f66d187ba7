package auth

import "strings"

// Known OAuth scopes carried by access tokens.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
)

// DefaultScopes are granted to every user token.
var DefaultScopes = []string{ScopeActivitiesRead, ScopeActivitiesWrite}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
