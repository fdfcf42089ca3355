package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/petasbytes/go-memory-agent/internal/provider"
	"github.com/petasbytes/go-memory-agent/internal/session"
	"github.com/petasbytes/go-memory-agent/internal/telemetry"
	"github.com/petasbytes/go-memory-agent/internal/windowing"
	"github.com/petasbytes/go-memory-agent/tools"
)

// DefaultMaxSteps bounds the requests issued for one user turn.
const DefaultMaxSteps = 25

// ErrTooManySteps is returned by RunTurn when the model keeps requesting
// tools past MaxSteps.
var ErrTooManySteps = errors.New("runner: too many tool steps in one turn")

// EventSink receives model-level session events. *session.Recorder implements it.
type EventSink interface {
	LogLLMRequest(ctx context.Context, messagesCount int, tools []string)
	LogLLMResponse(ctx context.Context, content string)
	LogTokenUsage(ctx context.Context, last, total session.TokenUsage)
	LogError(ctx context.Context, errorType, message string)
}

// Usage accumulates token counts reported by the API.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

func (u *Usage) add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheReadTokens += o.CacheReadTokens
	u.CacheWriteTokens += o.CacheWriteTokens
}

func (u Usage) tokens() session.TokenUsage {
	return session.TokenUsage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens,
	}
}

type Runner struct {
	Client    *anthropic.Client
	Tools     []tools.ToolDefinition
	Model     anthropic.Model
	MaxTokens int64
	MaxSteps  int
	System    string
	Logger    *slog.Logger
	Events    EventSink // optional

	// ContextBudget caps the estimated size of the conversation sent per
	// request; older groups are dropped first. Zero sends everything.
	ContextBudget int

	mu    sync.Mutex
	usage Usage
}

func New(client *anthropic.Client, toolDefs []tools.ToolDefinition) *Runner {
	return &Runner{
		Client:    client,
		Tools:     toolDefs,
		Model:     provider.DefaultModel,
		MaxTokens: 2048,
		MaxSteps:  DefaultMaxSteps,
		Logger:    slog.Default(),
	}
}

func (r *Runner) anthropicTools() []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(r.Tools))
	for _, t := range r.Tools {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: t.InputSchema,
		}})
	}
	return out
}

func (r *Runner) toolNames() []string {
	names := make([]string, len(r.Tools))
	for i, t := range r.Tools {
		names[i] = t.Name
	}
	return names
}

// Usage returns the cumulative token usage since creation or the last reset.
func (r *Runner) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// ResetUsage zeroes the cumulative token usage.
func (r *Runner) ResetUsage() {
	r.mu.Lock()
	r.usage = Usage{}
	r.mu.Unlock()
}

// RunOneStep sends the conversation and returns the assistant message plus
// any tool results to be appended as the next user message.
func (r *Runner) RunOneStep(ctx context.Context, conv []anthropic.MessageParam) (*anthropic.Message, []anthropic.ContentBlockParamUnion, error) {
	ctx, turnID := telemetry.EnsureTurnID(ctx)

	window := conv
	if r.ContextBudget > 0 {
		var stats windowing.Stats
		window, stats = windowing.Trim(conv, r.ContextBudget, windowing.RuneCounter{})
		if stats.SkippedGroups > 0 || stats.OverBudget {
			r.Logger.InfoContext(ctx, "conversation trimmed",
				"budget", stats.Budget, "estimated", stats.Total,
				"groups_in", stats.IncludedGroups, "groups_skipped", stats.SkippedGroups,
				"over_budget", stats.OverBudget)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     r.Model,
		MaxTokens: r.MaxTokens,
		Messages:  window,
		Tools:     r.anthropicTools(),
	}
	if r.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.System}}
	}

	if r.Events != nil {
		r.Events.LogLLMRequest(ctx, len(window), r.toolNames())
	}
	r.Logger.DebugContext(ctx, "sending request", "model", string(r.Model), "messages", len(window))

	msg, err := r.Client.Messages.New(ctx, params)
	if err != nil {
		if r.Events != nil {
			r.Events.LogError(ctx, "api_error", err.Error())
		}
		return nil, nil, fmt.Errorf("runner: messages.new (turn %s): %w", turnID, err)
	}
	r.recordUsage(ctx, msg.Usage)

	toolResults := []anthropic.ContentBlockParamUnion{}
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			// Pass raw JSON input through to the tool implementation
			input := json.RawMessage(v.JSON.Input.Raw())
			toolResults = append(toolResults, r.execTool(ctx, v.ID, v.Name, input))
		}
	}
	if text := MessageText(msg); text != "" && r.Events != nil {
		r.Events.LogLLMResponse(ctx, text)
	}
	return msg, toolResults, nil
}

// RunTurn appends userText to conv and runs steps until the model answers
// without tool calls. It returns the extended conversation and the
// assistant's final text. On error the returned conversation is conv with the
// user message appended plus whatever steps completed.
func (r *Runner) RunTurn(ctx context.Context, conv []anthropic.MessageParam, userText string) ([]anthropic.MessageParam, string, error) {
	ctx, _ = telemetry.EnsureTurnID(ctx)
	conv = append(conv, anthropic.NewUserMessage(anthropic.NewTextBlock(userText)))

	maxSteps := r.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	var texts []string
	for step := 0; step < maxSteps; step++ {
		msg, toolResults, err := r.RunOneStep(ctx, conv)
		if err != nil {
			return conv, strings.Join(texts, "\n"), err
		}
		conv = append(conv, msg.ToParam())
		if t := MessageText(msg); t != "" {
			texts = append(texts, t)
		}
		if len(toolResults) == 0 {
			return conv, strings.Join(texts, "\n"), nil
		}
		// Provide tool results as a user message back to the model
		conv = append(conv, anthropic.NewUserMessage(toolResults...))
	}
	if r.Events != nil {
		r.Events.LogError(ctx, "max_steps", ErrTooManySteps.Error())
	}
	return conv, strings.Join(texts, "\n"), ErrTooManySteps
}

// MessageText joins the non-empty text blocks of msg.
func MessageText(msg *anthropic.Message) string {
	var parts []string
	for _, b := range msg.Content {
		if tb, ok := b.AsAny().(anthropic.TextBlock); ok && tb.Text != "" {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (r *Runner) recordUsage(ctx context.Context, u anthropic.Usage) {
	last := Usage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
	}
	r.mu.Lock()
	r.usage.add(last)
	total := r.usage
	r.mu.Unlock()

	r.Logger.InfoContext(ctx, "last request tokens",
		"input", last.InputTokens, "output", last.OutputTokens,
		"cache_read", last.CacheReadTokens, "cache_write", last.CacheWriteTokens)
	r.Logger.InfoContext(ctx, "total tokens",
		"input", total.InputTokens, "output", total.OutputTokens,
		"cache_read", total.CacheReadTokens, "cache_write", total.CacheWriteTokens)
	if r.Events != nil {
		r.Events.LogTokenUsage(ctx, last.tokens(), total.tokens())
	}
}

func (r *Runner) execTool(ctx context.Context, id, name string, input json.RawMessage) anthropic.ContentBlockParamUnion {
	var def *tools.ToolDefinition
	for i := range r.Tools {
		if r.Tools[i].Name == name {
			def = &r.Tools[i]
			break
		}
	}

	start := time.Now()
	log := r.Logger.With("tool_name", name, "tool_use_id", id, "input_size", len(input))

	if def == nil {
		log.WarnContext(ctx, "tool not found")
		if r.Events != nil {
			r.Events.LogError(ctx, "tool_not_found", name)
		}
		return anthropic.NewToolResultBlock(id, "tool not found", true)
	}

	resp, err := def.Function(ctx, input)
	if err != nil {
		// Log a generic marker; the detailed message goes back to the model.
		log.InfoContext(ctx, "tool error", "duration_ms", time.Since(start).Milliseconds())
		return anthropic.NewToolResultBlock(id, err.Error(), true)
	}
	log.InfoContext(ctx, "tool executed", "duration_ms", time.Since(start).Milliseconds(), "output_size", len(resp))
	return anthropic.NewToolResultBlock(id, resp, false)
}
