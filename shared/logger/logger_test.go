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

func newBufferLogger(t *testing.T, config Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	config.writer = output

	logger, err := New(&config)
	require.NoError(t, err)
	require.NotNil(t, logger)
	return logger, output
}

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
		name      string
		level     string
		wantLevel []string
	}{
		{name: "debug", level: "debug", wantLevel: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{name: "info", level: "info", wantLevel: []string{"INFO", "WARN", "ERROR"}},
		{name: "warn", level: "warn", wantLevel: []string{"WARN", "ERROR"}},
		{name: "error", level: "error", wantLevel: []string{"ERROR"}},
		{name: "unknown level logs from info", level: "verbose", wantLevel: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, output := newBufferLogger(t, Config{Level: tt.level, Format: "json"})

			logger.Debug("script generated")
			logger.Info("audio uploaded")
			logger.Warn("crm field unresolved")
			logger.Error("synthesis failed")

			var levels []string
			for _, entry := range decodeLines(t, output) {
				levels = append(levels, entry["level"].(string))
			}
			assert.Equal(t, tt.wantLevel, levels)
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	logger, output := newBufferLogger(t, Config{Level: "info", Format: "console"})

	logger.Info("audio job completed", slog.String("audio_file_id", "af-1"))

	// tint abbreviates levels
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "audio job completed")
	assert.Contains(t, output.String(), "af-1")
}

func TestNew_SourceLocation(t *testing.T) {
	logger, output := newBufferLogger(t, Config{Level: "info", Format: "json", EnableSource: true})

	logger.Info("claimed")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestLogger_ServiceAndComponent(t *testing.T) {
	logger, output := newBufferLogger(t, Config{Level: "info", Format: "json", Service: "audio-worker"})

	logger.Info("started")
	logger.Component("pipeline").Info("job claimed", slog.String("survey_response_id", "sr-1"))

	entries := decodeLines(t, output)
	require.Len(t, entries, 2)

	assert.Equal(t, "audio-worker", entries[0]["service"])
	assert.NotContains(t, entries[0], "component")

	assert.Equal(t, "audio-worker", entries[1]["service"])
	assert.Equal(t, "pipeline", entries[1]["component"])
	assert.Equal(t, "sr-1", entries[1]["survey_response_id"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written to file", slog.String("stage", "upload"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(data, &logEntry))
	assert.Equal(t, "written to file", logEntry["msg"])
	assert.Equal(t, "upload", logEntry["stage"])
}

func TestNew_FileOutputError(t *testing.T) {
	logger, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
	assert.Nil(t, logger)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "DEBUG", expected: slog.LevelDebug},
		{level: " Info ", expected: slog.LevelInfo},
		{level: "warning", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "", expected: slog.LevelInfo},
		{level: "invalid", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}
