package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, format string) (*ProductionLogger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("A8N_LOG_LEVEL", "DEBUG")
	t.Setenv("A8N_LOG_FORMAT", format)

	logger := NewProductionLogger("a8n-test")
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return logger, &buf
}

func TestLoggerJSONOutput(t *testing.T) {
	logger, buf := newTestLogger(t, "json")

	logger.Info("Execution enqueued", map[string]interface{}{
		"execution_id": "exec-1",
		"retry_count":  2,
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "a8n-test", entry["service"])
	assert.Equal(t, "Execution enqueued", entry["message"])
	assert.Equal(t, "exec-1", entry["execution_id"])
	assert.Equal(t, float64(2), entry["retry_count"])
}

func TestLoggerComponentTag(t *testing.T) {
	logger, _ := newTestLogger(t, "json")

	child := logger.WithComponent("engine/queue")
	var buf bytes.Buffer
	child.(*ProductionLogger).SetOutput(&buf)

	child.Info("hello", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine/queue", entry["component"])
}

func TestLoggerTextOutput(t *testing.T) {
	logger, buf := newTestLogger(t, "text")

	logger.Warn("Payload expired", map[string]interface{}{"execution_id": "exec-2"})

	line := buf.String()
	assert.Contains(t, line, "[WARN]")
	assert.Contains(t, line, "Payload expired")
	assert.Contains(t, line, "execution_id=exec-2")
}

func TestLoggerLevelFiltering(t *testing.T) {
	t.Setenv("A8N_LOG_LEVEL", "WARN")
	t.Setenv("A8N_LOG_FORMAT", "text")

	logger := NewProductionLogger("a8n-test")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Info("not shown", nil)
	logger.Debug("not shown either", nil)
	logger.Warn("shown", nil)

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "not shown")
}

func TestLoggerErrorRateLimit(t *testing.T) {
	logger, buf := newTestLogger(t, "text")
	logger.errorEvery = time.Hour

	logger.Error("dependency down", nil)
	logger.Error("dependency down", nil)
	logger.Error("dependency down", nil)

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
