package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/go-memory-agent/internal/provider"
	"github.com/petasbytes/go-memory-agent/internal/runner"
	"github.com/petasbytes/go-memory-agent/internal/session"
	"github.com/petasbytes/go-memory-agent/internal/telemetry"
	"github.com/petasbytes/go-memory-agent/memory"
	"github.com/petasbytes/go-memory-agent/tools"
)

// fakeTransport replays canned responses in order, repeating the last one,
// and captures every request body.
type fakeTransport struct {
	mu         sync.Mutex
	respStatus int
	respBodies []string
	bodies     [][]byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()

	f.mu.Lock()
	idx := min(len(f.bodies), len(f.respBodies)-1)
	f.bodies = append(f.bodies, b)
	body := f.respBodies[idx]
	f.mu.Unlock()

	status := f.respStatus
	if status == 0 {
		status = http.StatusOK
	}
	resp := &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newClientWithTransport(rt http.RoundTripper) *anthropic.Client {
	return provider.NewAnthropicClient(
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
		// Base URL is irrelevant since transport intercepts
	)
}

type reqBody struct {
	Model    string `json:"model"`
	System   []struct {
		Text string `json:"text"`
	} `json:"system"`
	Tools []struct {
		Name string `json:"name"`
	} `json:"tools"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type      string `json:"type"`
			Text      string `json:"text,omitempty"`
			ToolUseID string `json:"tool_use_id,omitempty"`
			IsError   bool   `json:"is_error,omitempty"`
			Content   any    `json:"content,omitempty"`
		} `json:"content"`
	} `json:"messages"`
}

func decode(t *testing.T, b []byte) reqBody {
	t.Helper()
	var rb reqBody
	require.NoError(t, json.Unmarshal(b, &rb), "body=%s", string(b))
	return rb
}

type recordedEvent struct {
	kind   string
	turnID string
	detail string
}

type fakeEvents struct{ events []recordedEvent }

func (f *fakeEvents) add(ctx context.Context, kind, detail string) {
	id, _ := telemetry.TurnIDFromContext(ctx)
	f.events = append(f.events, recordedEvent{kind: kind, turnID: id, detail: detail})
}

func (f *fakeEvents) LogLLMRequest(ctx context.Context, n int, _ []string) {
	f.add(ctx, "llm_request", fmt.Sprint(n))
}
func (f *fakeEvents) LogLLMResponse(ctx context.Context, content string) {
	f.add(ctx, "llm_response", content)
}
func (f *fakeEvents) LogTokenUsage(ctx context.Context, last, total session.TokenUsage) {
	f.add(ctx, "token_usage", fmt.Sprintf("%d/%d of %d/%d", last.InputTokens, last.OutputTokens, total.InputTokens, total.OutputTokens))
}
func (f *fakeEvents) LogError(ctx context.Context, errorType, _ string) {
	f.add(ctx, "error", errorType)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T) *memory.FileStore {
	t.Helper()
	s, err := memory.NewFileStore(t.TempDir(), memory.WithLogger(quiet()))
	require.NoError(t, err)
	return s
}

func newRunner(t *testing.T, fake *fakeTransport, defs []tools.ToolDefinition) *runner.Runner {
	t.Helper()
	r := runner.New(newClientWithTransport(fake), defs)
	r.Logger = quiet()
	return r
}

const textResp = `{"id":"m2","type":"message","role":"assistant","model":"m","content":[{"type":"text","text":"All set."}],"stop_reason":"end_turn","usage":{"input_tokens":7,"output_tokens":3}}`

func TestRunner_ToolUse_ExecutesMemoryTool(t *testing.T) {
	store := newStore(t)
	resp := `{
	"role": "assistant",
	"content": [{"type": "tool_use", "id": "t1", "name": "memory", "input": {"command": "create", "path": "/memories/name.txt", "file_text": "Ada"}}]
	}`
	fake := &fakeTransport{respBodies: []string{resp}}
	r := newRunner(t, fake, tools.Registry(store))

	conv := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("my name is Ada"))}
	msg, toolResults, err := r.RunOneStep(context.Background(), conv)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Len(t, toolResults, 1)
	require.NotNil(t, toolResults[0].OfToolResult)
	assert.Equal(t, "t1", toolResults[0].OfToolResult.ToolUseID)

	b, err := os.ReadFile(filepath.Join(store.Root(), "name.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Ada", string(b))

	rb := decode(t, fake.bodies[0])
	require.Len(t, rb.Tools, 1)
	assert.Equal(t, "memory", rb.Tools[0].Name)
	assert.Equal(t, string(provider.DefaultModel), rb.Model)
}

func TestRunner_RunTurn_LoopsUntilText(t *testing.T) {
	store := newStore(t)
	toolResp := `{"id":"m1","type":"message","role":"assistant","model":"m","content":[{"type":"text","text":"Saving."},{"type":"tool_use","id":"t1","name":"memory","input":{"command":"view","path":"/memories"}}],"stop_reason":"tool_use","usage":{"input_tokens":10,"output_tokens":5,"cache_read_input_tokens":2}}`
	fake := &fakeTransport{respBodies: []string{toolResp, textResp}}
	events := &fakeEvents{}
	r := newRunner(t, fake, tools.Registry(store))
	r.System = "You have memory."
	r.Events = events

	conv, text, err := r.RunTurn(context.Background(), nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Saving.\nAll set.", text)
	// user, assistant(tool_use), user(tool_result), assistant(text)
	require.Len(t, conv, 4)
	require.Len(t, fake.bodies, 2)

	second := decode(t, fake.bodies[1])
	require.Len(t, second.Messages, 3)
	assert.Equal(t, "tool_result", second.Messages[2].Content[0].Type)
	assert.Equal(t, "t1", second.Messages[2].Content[0].ToolUseID)
	require.Len(t, second.System, 1)
	assert.Equal(t, "You have memory.", second.System[0].Text)

	u := r.Usage()
	assert.EqualValues(t, 17, u.InputTokens)
	assert.EqualValues(t, 8, u.OutputTokens)
	assert.EqualValues(t, 2, u.CacheReadTokens)
	r.ResetUsage()
	assert.Equal(t, runner.Usage{}, r.Usage())

	// Every event in one turn carries the same turn ID.
	require.NotEmpty(t, events.events)
	turnID := events.events[0].turnID
	assert.NotEmpty(t, turnID)
	kinds := []string{}
	for _, ev := range events.events {
		assert.Equal(t, turnID, ev.turnID)
		kinds = append(kinds, ev.kind)
	}
	assert.Equal(t, []string{
		"llm_request", "token_usage", "llm_response",
		"llm_request", "token_usage", "llm_response",
	}, kinds)
	assert.Equal(t, "10/5 of 10/5", events.events[1].detail)
	assert.Equal(t, "7/3 of 17/8", events.events[4].detail)
}

func TestRunner_KeepsCallerTurnID(t *testing.T) {
	fake := &fakeTransport{respBodies: []string{textResp}}
	events := &fakeEvents{}
	r := newRunner(t, fake, nil)
	r.Events = events

	ctx := telemetry.WithTurnID(context.Background(), "turn-fixed")
	_, _, err := r.RunTurn(ctx, nil, "hi")
	require.NoError(t, err)
	for _, ev := range events.events {
		assert.Equal(t, "turn-fixed", ev.turnID)
	}
}

func TestRunner_ToolNotFound(t *testing.T) {
	resp := `{"role":"assistant","content":[{"type":"tool_use","id":"nf1","name":"does_not_exist","input":{"a":1}}]}`
	fake := &fakeTransport{respBodies: []string{resp}}
	events := &fakeEvents{}
	r := newRunner(t, fake, []tools.ToolDefinition{})
	r.Events = events

	_, results, err := r.RunOneStep(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	tr := results[0].OfToolResult
	require.NotNil(t, tr)
	assert.True(t, tr.IsError.Value)
	assert.Equal(t, "error", events.events[len(events.events)-1].kind)
}

func TestRunner_HandlerErrorBecomesErrorResult(t *testing.T) {
	errTool := tools.ToolDefinition{
		Name:        "err_tool",
		Description: "always errors",
		InputSchema: tools.GenerateSchema[struct{}](),
		Function: func(context.Context, json.RawMessage) (string, error) {
			return "", errors.New("boom")
		},
	}
	resp := `{"role":"assistant","content":[{"type":"tool_use","id":"e1","name":"err_tool","input":{"x":1}}]}`
	fake := &fakeTransport{respBodies: []string{resp, textResp}}
	r := newRunner(t, fake, []tools.ToolDefinition{errTool})

	_, _, err := r.RunTurn(context.Background(), nil, "call err tool")
	require.NoError(t, err)

	second := decode(t, fake.bodies[1])
	res := second.Messages[2].Content[0]
	assert.Equal(t, "tool_result", res.Type)
	assert.True(t, res.IsError)
	assert.Contains(t, fmt.Sprint(res.Content), "boom")
}

func TestRunner_APIErrorIsReturnedAndRecorded(t *testing.T) {
	fake := &fakeTransport{
		respStatus: http.StatusBadRequest,
		respBodies: []string{`{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`},
	}
	events := &fakeEvents{}
	r := newRunner(t, fake, nil)
	r.Events = events

	conv, _, err := r.RunTurn(context.Background(), nil, "hi")
	require.Error(t, err)
	var apiErr *anthropic.Error
	assert.ErrorAs(t, err, &apiErr)
	assert.Len(t, conv, 1)
	require.Len(t, events.events, 2)
	assert.Equal(t, "api_error", events.events[1].detail)
}

func TestRunner_MaxSteps(t *testing.T) {
	store := newStore(t)
	loop := `{"role":"assistant","content":[{"type":"tool_use","id":"t","name":"memory","input":{"command":"view","path":"/memories"}}]}`
	fake := &fakeTransport{respBodies: []string{loop}}
	r := newRunner(t, fake, tools.Registry(store))
	r.MaxSteps = 3

	_, _, err := r.RunTurn(context.Background(), nil, "loop forever")
	assert.ErrorIs(t, err, runner.ErrTooManySteps)
	assert.Len(t, fake.bodies, 3)
}

func TestMessageText(t *testing.T) {
	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"tool_use","id":"x","name":"memory","input":{}},{"type":"text","text":"b"}]}`), &msg))
	assert.Equal(t, "a\nb", runner.MessageText(&msg))
}

func TestRunner_ContextBudgetTrimsOldMessages(t *testing.T) {
	fake := &fakeTransport{respBodies: []string{textResp}}
	events := &fakeEvents{}
	r := newRunner(t, fake, nil)
	r.Events = events
	r.ContextBudget = 20

	conv := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock("an old question that is long")),
		anthropic.NewAssistantMessage(anthropic.NewTextBlock("an old answer that is long")),
	}
	_, _, err := r.RunTurn(context.Background(), conv, "newest")
	require.NoError(t, err)

	rb := decode(t, fake.bodies[0])
	require.Len(t, rb.Messages, 1)
	assert.Equal(t, "newest", rb.Messages[0].Content[0].Text)
	assert.Equal(t, "1", events.events[0].detail)
}
