package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, output *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level    string
		wantMsgs []string
	}{
		{level: "debug", wantMsgs: []string{"phase entered", "attempt started", "media undercount", "attempt failed"}},
		{level: "info", wantMsgs: []string{"attempt started", "media undercount", "attempt failed"}},
		{level: "warn", wantMsgs: []string{"media undercount", "attempt failed"}},
		{level: "error", wantMsgs: []string{"attempt failed"}},
		{level: "bogus", wantMsgs: []string{"attempt started", "media undercount", "attempt failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger, err := New(&Config{Level: tt.level, Format: "json", writer: output})
			require.NoError(t, err)

			logger.Debug("phase entered", slog.String("phase", "Composing"))
			logger.Info("attempt started", slog.Int("attempt", 1))
			logger.Warn("media undercount", slog.Int("expected", 3), slog.Int("observed", 2))
			logger.Error("attempt failed", slog.String("error_kind", "SubmitFailed"))

			var got []string
			for _, entry := range decodeLines(t, output) {
				got = append(got, entry["msg"].(string))
			}
			assert.Equal(t, tt.wantMsgs, got)
		})
	}
}

func TestNew_JSONAttributes(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "json", EnableSource: true, writer: output})
	require.NoError(t, err)

	logger.Info("post published",
		slog.String("job_id", "job-1"),
		slog.Int("attempts", 2),
		slog.Bool("best_effort_ref", true),
	)

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	entry := entries[0]

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "job-1", entry["job_id"])
	assert.Equal(t, float64(2), entry["attempts"])
	assert.Equal(t, true, entry["best_effort_ref"])
	assert.Contains(t, entry, "time")

	source, ok := entry["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_Console(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "console", NoColor: true, writer: output})
	require.NoError(t, err)

	logger.Info("queue idle", slog.Int("backlog", 0))

	// tint abbreviates levels
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "queue idle")
	assert.Contains(t, output.String(), "backlog=0")
}

func TestNew_FileOutputAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "poster.log")

	for i := 0; i < 2; i++ {
		logger, err := New(&Config{Level: "info", Format: "json", Output: path})
		require.NoError(t, err)
		logger.Info("run", slog.Int("n", i))
		require.NoError(t, logger.Close())
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	entries := decodeLines(t, bytes.NewBuffer(raw))
	require.Len(t, entries, 2)
	assert.Equal(t, float64(0), entries[0]["n"])
	assert.Equal(t, float64(1), entries[1]["n"])
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
	assert.NoError(t, logger.Close())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"DEBUG":   slog.LevelInfo, // case-sensitive
		"":        slog.LevelInfo,
	}

	for level, want := range tests {
		t.Run(level, func(t *testing.T) {
			assert.Equal(t, want, parseLevel(level))
		})
	}
}

func TestLogger_Children(t *testing.T) {
	t.Run("component", func(t *testing.T) {
		output := &bytes.Buffer{}
		logger, err := New(&Config{Format: "json", writer: output})
		require.NoError(t, err)

		logger.Component("governor").Info("teardown complete")

		entries := decodeLines(t, output)
		require.Len(t, entries, 1)
		assert.Equal(t, "governor", entries[0]["component"])
	})

	t.Run("group", func(t *testing.T) {
		output := &bytes.Buffer{}
		logger, err := New(&Config{Format: "json", writer: output})
		require.NoError(t, err)

		logger.WithGroup("job").Info("enqueued", slog.String("id", "job-7"))

		entries := decodeLines(t, output)
		require.Len(t, entries, 1)
		group := entries[0]["job"].(map[string]any)
		assert.Equal(t, "job-7", group["id"])
	})

	t.Run("with", func(t *testing.T) {
		output := &bytes.Buffer{}
		logger, err := New(&Config{Format: "json", writer: output})
		require.NoError(t, err)

		logger.With(slog.String("service", "poster")).Info("ready")

		entries := decodeLines(t, output)
		require.Len(t, entries, 1)
		assert.Equal(t, "poster", entries[0]["service"])
	})
}
