package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "NONE", LevelNone.String())
}

func TestLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	l, err := New(LevelInfo, path, "")
	require.NoError(t, err)
	defer l.Close()

	l.Info("hello %s", "world")
	l.Debug("should be filtered")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "hello world")
	assert.Contains(t, content, "[INFO]")
	assert.NotContains(t, content, "should be filtered")
}

func TestLoggerLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	l, err := New(LevelWarn, path, "")
	require.NoError(t, err)
	defer l.Close()

	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	l.Error("error line")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.NotContains(t, content, "debug line")
	assert.NotContains(t, content, "info line")
	assert.Contains(t, content, "warn line")
	assert.Contains(t, content, "error line")
}

func TestLoggerWithPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	l, err := New(LevelInfo, path, "")
	require.NoError(t, err)
	defer l.Close()

	l.WithPrefix("manager").Info("spawned")
	l.WithPrefix("manager").WithPrefix("worker").Info("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[manager] spawned")
	assert.Contains(t, lines[1], "[manager:worker] started")
}

func TestLoggerNoneDiscards(t *testing.T) {
	l, err := New(LevelNone, "", "")
	require.NoError(t, err)

	// Must not panic or write anywhere.
	l.Info("nothing")
	l.Error("nothing")
	assert.NoError(t, l.Close())
}

func TestGlobalBeforeInit(t *testing.T) {
	// Global() before Init returns a usable discarding logger.
	g := Global()
	require.NotNil(t, g)
	g.Info("discarded")
}
