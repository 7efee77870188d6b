package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "": slog.LevelInfo,
		"warning": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestJSONLoggerRedactsKeys(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "info", "json")
	require.NoError(t, err)

	l.With("component", "ForensicsClient").Info("calling oracle", "api_key", "sk-123", "verb", "triage")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "[REDACTED]", rec["api_key"])
	assert.Equal(t, "triage", rec["verb"])
	assert.Equal(t, "ForensicsClient", rec["component"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "warn", "text")
	require.NoError(t, err)
	l.Info("quiet")
	assert.Zero(t, buf.Len())
	l.Warn("loud")
	assert.Contains(t, buf.String(), "loud")

	_, err = NewWithWriter(&buf, "info", "xml")
	assert.Error(t, err)
}
