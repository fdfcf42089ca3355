package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petasbytes/go-memory-agent/internal/metrics"
	"github.com/petasbytes/go-memory-agent/internal/telemetry"
)

// maxResultRunes caps tool results stored in tool_result events.
const maxResultRunes = 1000

// Event types.
const (
	EventUserInput   = "user_input"
	EventLLMRequest  = "llm_request"
	EventToolCall    = "tool_call"
	EventToolResult  = "tool_result"
	EventLLMResponse = "llm_response"
	EventTokenUsage  = "token_usage"
	EventError       = "error"
)

// TokenUsage is a set of token counts for one request.
type TokenUsage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
}

// CumulativeUsage is the running token total for the session.
type CumulativeUsage struct {
	TotalInputTokens      int64 `json:"total_input_tokens"`
	TotalOutputTokens     int64 `json:"total_output_tokens"`
	TotalCacheReadTokens  int64 `json:"total_cache_read_tokens"`
	TotalCacheWriteTokens int64 `json:"total_cache_write_tokens"`
}

// Event is one entry of the session log. Only the fields relevant to the
// event type are set.
type Event struct {
	Timestamp     time.Time        `json:"timestamp"`
	EventType     string           `json:"event_type"`
	TurnID        string           `json:"turn_id,omitempty"`
	Content       string           `json:"content,omitempty"`
	MessagesCount int              `json:"messages_count,omitempty"`
	Tools         []string         `json:"tools,omitempty"`
	ToolName      string           `json:"tool_name,omitempty"`
	Command       string           `json:"command,omitempty"`
	Parameters    map[string]any   `json:"parameters,omitempty"`
	Result        *string          `json:"result,omitempty"`
	ResultLength  *int             `json:"result_length,omitempty"`
	ResultLines   *int             `json:"result_lines,omitempty"`
	Success       *bool            `json:"success,omitempty"`
	Error         string           `json:"error,omitempty"`
	ErrorType     string           `json:"error_type,omitempty"`
	Message       string           `json:"message,omitempty"`
	LastRequest   *TokenUsage      `json:"last_request,omitempty"`
	Cumulative    *CumulativeUsage `json:"cumulative,omitempty"`
}

// Trace is the persisted session document.
type Trace struct {
	SessionID    string     `json:"session_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Model        string     `json:"model"`
	SystemPrompt string     `json:"system_prompt"`
	Events       []Event    `json:"events"`
}

// Recorder appends events to a session trace file.
type Recorder struct {
	mu     sync.Mutex
	path   string
	trace  Trace
	logger *slog.Logger
}

var timeNow = time.Now

// NewSessionID returns "YYYYMMDD_HHMMSS_<8 hex chars>".
func NewSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return timeNow().Format("20060102_150405") + "_" + suffix
}

// NewRecorder starts a session trace under dir and writes the initial
// document. It fails only when dir cannot be created.
func NewRecorder(dir, model, systemPrompt string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create dir %s: %w", dir, err)
	}
	id := NewSessionID()
	r := &Recorder{
		path:   filepath.Join(dir, "session_"+id+".json"),
		logger: logger.With("session_id", id),
		trace: Trace{
			SessionID:    id,
			StartTime:    timeNow(),
			Model:        model,
			SystemPrompt: systemPrompt,
			Events:       []Event{},
		},
	}
	r.logger.Info("session started", "trace_file", r.path)
	r.mu.Lock()
	r.save()
	r.mu.Unlock()
	return r, nil
}

// SessionID returns the session identifier.
func (r *Recorder) SessionID() string { return r.trace.SessionID }

// Path returns the trace file location.
func (r *Recorder) Path() string { return r.path }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.trace.Events))
	copy(out, r.trace.Events)
	return out
}

func (r *Recorder) LogUserInput(ctx context.Context, content string) {
	r.add(ctx, Event{EventType: EventUserInput, Content: content})
}

func (r *Recorder) LogLLMRequest(ctx context.Context, messagesCount int, tools []string) {
	r.add(ctx, Event{EventType: EventLLMRequest, MessagesCount: messagesCount, Tools: tools})
}

func (r *Recorder) LogToolCall(ctx context.Context, toolName, command string, params map[string]any) {
	r.add(ctx, Event{EventType: EventToolCall, ToolName: toolName, Command: command, Parameters: params})
}

// LogToolResult records the outcome of a tool call. Results longer than
// 1000 runes are truncated; result_length keeps the full length.
func (r *Recorder) LogToolResult(ctx context.Context, toolName, command, result string, err error) {
	f := metrics.CountFeatures(result)
	stored, _ := metrics.Truncate(result, maxResultRunes)
	success := err == nil
	ev := Event{
		EventType:    EventToolResult,
		ToolName:     toolName,
		Command:      command,
		Result:       &stored,
		ResultLength: &f.Runes,
		ResultLines:  &f.Lines,
		Success:      &success,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.add(ctx, ev)
}

func (r *Recorder) LogLLMResponse(ctx context.Context, content string) {
	r.add(ctx, Event{EventType: EventLLMResponse, Content: content})
}

// LogTokenUsage records the counts of the last request next to the session
// totals.
func (r *Recorder) LogTokenUsage(ctx context.Context, last, total TokenUsage) {
	r.add(ctx, Event{
		EventType:   EventTokenUsage,
		LastRequest: &last,
		Cumulative: &CumulativeUsage{
			TotalInputTokens:      total.InputTokens,
			TotalOutputTokens:     total.OutputTokens,
			TotalCacheReadTokens:  total.CacheReadTokens,
			TotalCacheWriteTokens: total.CacheWriteTokens,
		},
	})
}

func (r *Recorder) LogError(ctx context.Context, errorType, message string) {
	r.add(ctx, Event{EventType: EventError, ErrorType: errorType, Message: message})
}

// Finalize stamps the end time, saves and returns the trace file path.
func (r *Recorder) Finalize() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := timeNow()
	r.trace.EndTime = &end
	r.save()
	r.logger.Info("session finalized")
	return r.path
}

func (r *Recorder) add(ctx context.Context, ev Event) {
	ev.Timestamp = timeNow()
	if id, ok := telemetry.TurnIDFromContext(ctx); ok {
		ev.TurnID = id
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.Events = append(r.trace.Events, ev)
	r.save()
	r.logger.Debug("event recorded", "event_type", ev.EventType)
}

// save rewrites the trace file. Callers hold r.mu.
func (r *Recorder) save() {
	b, err := json.MarshalIndent(r.trace, "", "  ")
	if err != nil {
		r.logger.Error("marshal session trace", "err", err)
		return
	}
	if err := os.WriteFile(r.path, b, 0o644); err != nil {
		r.logger.Error("save session trace", "path", r.path, "err", err)
	}
}
