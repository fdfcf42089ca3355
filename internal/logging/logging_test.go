package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/go-memory-agent/internal/logging"
	"github.com/petasbytes/go-memory-agent/internal/telemetry"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := logging.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew_JSONWithTurnID(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := logging.New(&buf, "info", "json")
	require.NoError(t, err)

	ctx := telemetry.WithTurnID(context.Background(), "turn-7")
	logger.With("component", "test").InfoContext(ctx, "hello", "path", "/memories")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "turn-7", rec["turn_id"])
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, "/memories", rec["path"])
}

func TestNew_LevelVarToggle(t *testing.T) {
	var buf bytes.Buffer
	logger, lv, err := logging.New(&buf, "info", "text")
	require.NoError(t, err)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	lv.Set(slog.LevelDebug)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "turn_id")
}

func TestNew_BadFormat(t *testing.T) {
	_, _, err := logging.New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
