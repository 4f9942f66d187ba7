// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/domain"
)

// ErrInvalidCursor is returned for page tokens that were not produced by EncodeCursor.
var ErrInvalidCursor = errors.New("invalid cursor")

const cursorSeparator = "|"

// EncodeCursor turns the last (start_time, id) of a page into an opaque,
// URL-safe token. A nil cursor encodes to "".
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := c.StartedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token from EncodeCursor. An empty token means the first page.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	startedAt, id, ok := strings.Cut(string(decoded), cursorSeparator)
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &domain.Cursor{StartedAt: ts.UTC(), ID: id}, nil
}
