package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Info("session issued")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "session issued", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("session_id", "abc123").Info("validated")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "abc123", entry["session_id"])
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(assert.AnError).Error("callback failed")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}

func TestLogger_WithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	same := logger.WithError(nil)
	assert.Same(t, logger, same)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("should be dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("should be logged")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithComponent("keyset").Debug("refresh scheduled")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "keyset", entry["component"])
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-42")

	FromContext(ctx).Info("hello")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "req-42", entry["request_id"])
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
}
