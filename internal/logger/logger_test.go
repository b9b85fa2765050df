package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: "json", Writer: &buf})
	l.Debug("hello", "issue_id", "01ABC")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "01ABC", rec["issue_id"])
}

func TestNew_TextFiltersLevelWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Writer: &buf})

	l.Info("quiet")
	assert.Empty(t, buf.String())

	l.Warn("loud", "error", errors.New("disk full"))
	out := buf.String()
	assert.Contains(t, out, "loud")
	assert.Contains(t, out, "disk full")
	assert.NotContains(t, out, "\x1b[", "no ANSI codes off a terminal")
}
