package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer := New(Config{Level: "warn", JSON: true, Writer: &buf})
	t.Cleanup(func() { require.NoError(t, closer.Close()) })

	logger.Info("hidden")
	logger.Warn("Compile failed", "pattern", "(a")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "Compile failed", rec["msg"])
	require.Equal(t, "(a", rec["pattern"])
}

func TestNewFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flyweight.log")
	logger, closer := New(Config{Level: "debug", File: path})
	logger.Debug("Evicted compiled pattern", "pattern", "a+")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "pattern=a+")
}
