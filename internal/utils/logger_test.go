package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)           {}
func (nopLogger) Info(string, ...any)            {}
func (nopLogger) Warn(string, ...any)            {}
func (nopLogger) Error(string, ...any)           {}
func (nopLogger) With(...any) Logger             { return nopLogger{} }
func (nopLogger) WithGroup(string) Logger        { return nopLogger{} }
func (nopLogger) LogError(error, string, ...any) {}

func TestSlogLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	wrapped := FromSlogLogger(base)
	wrapped.Info("session started", "session_id", "sess-1")
	assert.Contains(t, buf.String(), "session started")
	assert.Contains(t, buf.String(), "sess-1")

	require.Same(t, base, ToSlogLogger(wrapped))
}

func TestToSlogLoggerFallback(t *testing.T) {
	// A foreign Logger implementation has no slog to unwrap.
	assert.Same(t, slog.Default(), ToSlogLogger(nopLogger{}))
}

func TestSlogLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := FromSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.With("component", "exam_gateway").Warn("rejected")
	assert.Contains(t, buf.String(), "component=exam_gateway")
	assert.Contains(t, buf.String(), "rejected")
}
