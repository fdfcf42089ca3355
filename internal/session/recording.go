package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petasbytes/go-memory-agent/memory"
)

// ToolName is the tool name recorded for memory store operations.
const ToolName = "memory"

const tracerName = "github.com/petasbytes/go-memory-agent/internal/session"

// Sink receives every store operation attempt. *Recorder implements it.
type Sink interface {
	LogToolCall(ctx context.Context, toolName, command string, params map[string]any)
	LogToolResult(ctx context.Context, toolName, command, result string, err error)
}

var _ memory.Store = (*RecordingStore)(nil)

// RecordingStore forwards to an inner memory.Store, reporting each call to a
// Sink and wrapping it in a trace span. A nil Sink disables recording.
type RecordingStore struct {
	inner  memory.Store
	sink   Sink
	tracer trace.Tracer
}

// NewRecordingStore decorates inner. sink may be nil.
func NewRecordingStore(inner memory.Store, sink Sink) *RecordingStore {
	return &RecordingStore{inner: inner, sink: sink, tracer: otel.Tracer(tracerName)}
}

func (s *RecordingStore) View(ctx context.Context, path string, r *memory.LineRange) (string, error) {
	params := map[string]any{"path": path}
	if r != nil {
		params["view_range"] = []int{r.Start, r.End}
	}
	return s.record(ctx, "view", params, func(ctx context.Context) (string, error) {
		return s.inner.View(ctx, path, r)
	})
}

func (s *RecordingStore) Create(ctx context.Context, path, text string) (string, error) {
	params := map[string]any{"path": path, "file_text": text}
	return s.record(ctx, "create", params, func(ctx context.Context) (string, error) {
		return s.inner.Create(ctx, path, text)
	})
}

func (s *RecordingStore) StrReplace(ctx context.Context, path, oldStr, newStr string) (string, error) {
	params := map[string]any{"path": path, "old_str": oldStr, "new_str": newStr}
	return s.record(ctx, "str_replace", params, func(ctx context.Context) (string, error) {
		return s.inner.StrReplace(ctx, path, oldStr, newStr)
	})
}

func (s *RecordingStore) Insert(ctx context.Context, path string, line int, text string) (string, error) {
	params := map[string]any{"path": path, "insert_line": line, "insert_text": text}
	return s.record(ctx, "insert", params, func(ctx context.Context) (string, error) {
		return s.inner.Insert(ctx, path, line, text)
	})
}

func (s *RecordingStore) Delete(ctx context.Context, path string) (string, error) {
	return s.record(ctx, "delete", map[string]any{"path": path}, func(ctx context.Context) (string, error) {
		return s.inner.Delete(ctx, path)
	})
}

func (s *RecordingStore) Rename(ctx context.Context, oldPath, newPath string) (string, error) {
	params := map[string]any{"old_path": oldPath, "new_path": newPath}
	return s.record(ctx, "rename", params, func(ctx context.Context) (string, error) {
		return s.inner.Rename(ctx, oldPath, newPath)
	})
}

func (s *RecordingStore) ClearAll(ctx context.Context) string {
	msg, _ := s.record(ctx, "clear_all", map[string]any{}, func(ctx context.Context) (string, error) {
		return s.inner.ClearAll(ctx), nil
	})
	return msg
}

func (s *RecordingStore) record(ctx context.Context, command string, params map[string]any, fn func(context.Context) (string, error)) (string, error) {
	ctx, span := s.tracer.Start(ctx, "memory."+command, trace.WithAttributes(spanAttrs(params)...))
	defer span.End()

	if s.sink != nil {
		s.sink.LogToolCall(ctx, ToolName, command, params)
	}
	result, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(memory.KindOf(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if s.sink != nil {
		s.sink.LogToolResult(ctx, ToolName, command, result, err)
	}
	return result, err
}

// spanAttrs keeps path-like parameters only; document text stays out of spans.
func spanAttrs(params map[string]any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, k := range []string{"path", "old_path", "new_path"} {
		if v, ok := params[k].(string); ok {
			attrs = append(attrs, attribute.String("memory."+k, v))
		}
	}
	if v, ok := params["insert_line"].(int); ok {
		attrs = append(attrs, attribute.Int("memory.insert_line", v))
	}
	return attrs
}
