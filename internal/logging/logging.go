// Package logging builds the process logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/petasbytes/go-memory-agent/internal/telemetry"
)

// ParseLevel maps debug|info|warn|warning|error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// New returns a logger writing to w in the given format ("text" or "json").
// The returned LevelVar can be adjusted at runtime.
func New(w io.Writer, level, format string) (*slog.Logger, *slog.LevelVar, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(lvl)
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", format)
	}
	return slog.New(turnHandler{h}), lv, nil
}

// turnHandler adds the context's turn ID to every record logged with a context.
type turnHandler struct{ slog.Handler }

func (h turnHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := telemetry.TurnIDFromContext(ctx); ok {
		r.AddAttrs(slog.String("turn_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h turnHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return turnHandler{h.Handler.WithAttrs(attrs)}
}

func (h turnHandler) WithGroup(name string) slog.Handler {
	return turnHandler{h.Handler.WithGroup(name)}
}
