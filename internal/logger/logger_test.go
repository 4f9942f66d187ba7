package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNewWithWriterTagsService(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("goodfit-api", "info", &buf).Info("hello")

	out := decodeLine(t, &buf)
	assert.Equal(t, "goodfit-api", out["service"])
	assert.Equal(t, "hello", out["msg"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("svc", "warn", &buf)
	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.Equal(t, "kept", decodeLine(t, &buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestWithContextAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("svc", "info", &buf)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithUserID(ctx, "user-9")
	WithContext(ctx, l).Info("scoped")

	out := decodeLine(t, &buf)
	assert.Equal(t, "req-123", out["request_id"])
	assert.Equal(t, "user-9", out["user_id"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	l := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
}
