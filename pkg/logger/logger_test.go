package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewHandler_JSONFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, Config{Level: "warn", Format: FormatJSON}))

	log.Info("dropped")
	log.Warn("recompute retried", UserID("user-1"), HabitID("h1"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "recompute retried", rec["msg"])
	assert.Equal(t, "user-1", rec["user_id"])
	assert.Equal(t, "h1", rec["habit_id"])
}

func TestNewHandler_Text(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, Config{Format: FormatText})).Info("hello", Component("scheduler"))
	assert.Contains(t, buf.String(), "component=scheduler")
}

func TestNew_WritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "habit-hub.log")
	log, closer, err := New(Config{Level: "info", Format: FormatJSON, File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info("started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"started"`)
}

func TestContextPropagation(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	l := slog.New(NewHandler(&bytes.Buffer{}, Config{}))
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}
