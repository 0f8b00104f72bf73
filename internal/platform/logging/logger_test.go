package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestInitLogger_JSONToStdout(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	closer := InitLogger(Options{Level: "info", Format: "json", Stdout: &buf})
	t.Cleanup(func() { _ = closer.Close() })

	slog.Debug("hidden")
	WithSource(2, "ws://scale-2").Info("Source connected")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &record))
	assert.Equal(t, "Source connected", record["msg"])
	assert.Equal(t, 2.0, record["slot"])
	assert.Equal(t, "ws://scale-2", record["address"])
}

func TestInitLogger_WritesRotatingFile(t *testing.T) {
	restoreDefault(t)
	dir := t.TempDir()
	var stdout bytes.Buffer

	closer := InitLogger(Options{Level: "debug", Format: "text", Dir: dir, MaxSizeMB: 1, MaxAgeDays: 14, Stdout: &stdout})

	WithSubscriber("abc").Warn("Subscriber dropped")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Subscriber dropped")
	assert.Contains(t, string(data), "subscriber_id=abc")
	assert.Contains(t, stdout.String(), "Subscriber dropped")
}
