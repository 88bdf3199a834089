package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatJSON)

	logger.Debug("hidden")
	logger.Info("shown", String("k", "v"), Int("n", 3))
	logger.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, logger.GetLevel())
	logger.Debug("now visible")
	logger.SetLevel(ErrorLevel)
	logger.Warn("hidden again")
	logger.Error("failure", Duration("took", 1500*time.Millisecond), Bool("retry", false))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)

	assert.Equal(t, "shown", entries[0]["message"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "v", entries[0]["k"])
	assert.Equal(t, float64(3), entries[0]["n"])
	assert.NotEmpty(t, entries[0]["time"])

	assert.Equal(t, "debug", entries[1]["level"])
	assert.Equal(t, "error", entries[2]["level"])
	assert.Equal(t, false, entries[2]["retry"])
}

func TestWithFieldsAndContext(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, FormatJSON)
	child := base.WithFields(String("component", "session"))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-9")
	child.WithContext(ctx).Info("dispatch")
	base.Info("plain")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "session", entries[0]["component"])
	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.Equal(t, "sess-9", entries[0]["session_id"])
	assert.NotContains(t, entries[1], "component")

	assert.Same(t, base, base.WithContext(context.Background()))
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatJSON)

	logger.WithError(mcperrors.StdioTransportError("read", errors.New("broken pipe"))).Error("transport failed")
	logger.WithError(errors.New("plain")).Warn("plain failure")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, float64(mcperrors.CodeTransportError), entries[0]["error_code"])
	assert.Equal(t, "transport", entries[0]["error_category"])
	assert.Equal(t, "stdio_transport", entries[0]["component"])
	assert.Equal(t, "read", entries[0]["operation"])
	assert.Contains(t, entries[0]["error"], "broken pipe")

	assert.Equal(t, "plain", entries[1]["error"])
	assert.NotContains(t, entries[1], "error_code")
}

func TestNewFromConfig(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewFromConfig(Config{Level: "warn", Format: FormatConsole, Output: &buf})
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, logger.GetLevel())

	logger.Info("skipped")
	logger.Warn("console line", String("k", "v"))
	assert.Contains(t, buf.String(), "console line")
	assert.NotContains(t, buf.String(), "skipped")

	_, err = NewFromConfig(Config{Level: "loud"})
	assert.Error(t, err)
	_, err = NewFromConfig(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "": InfoLevel, "warning": WarnLevel, "error": ErrorLevel, "fatal": FatalLevel}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Info("nothing")
	logger.WithFields(String("a", "b")).Error("still nothing")
}

func TestRetryableHTTPLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatJSON)
	logger.SetLevel(DebugLevel)

	adapter := NewRetryableHTTPLogger(logger, "push_stream")
	adapter.Debug("performing request", "method", "GET", "url", "http://localhost/mcp")
	adapter.Warn("odd", "dangling")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "push_stream", entries[0]["component"])
	assert.Equal(t, "GET", entries[0]["method"])
	assert.Equal(t, "http://localhost/mcp", entries[0]["url"])
	assert.Equal(t, "dangling", entries[1]["extra"])
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatJSON)

	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestIDFromContext(r.Context()))
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "wrapped writer must stay flushable")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(http.StatusAccepted), entries[0]["status"])
	assert.Equal(t, float64(2), entries[0]["bytes"])
	assert.Equal(t, "fixed-id", entries[0]["request_id"])
}
