package cli

import (
	"bytes"
	"encoding/json"
	"io"
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
	"github.com/petasbytes/go-memory-agent/internal/session"
)

// scriptedTransport replays canned Messages API responses in order.
type scriptedTransport struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	_, _ = io.Copy(io.Discard, req.Body)
	_ = req.Body.Close()

	s.mu.Lock()
	body := s.responses[min(s.calls, len(s.responses)-1)]
	s.calls++
	s.mu.Unlock()

	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func useTransport(t *testing.T, rt http.RoundTripper) {
	t.Helper()
	prev := newClient
	newClient = func(opts ...option.RequestOption) *anthropic.Client {
		return provider.NewAnthropicClient(append(opts,
			option.WithHTTPClient(&http.Client{Transport: rt}),
			option.WithAPIKey("test-key"),
			option.WithMaxRetries(0),
		)...)
	}
	t.Cleanup(func() { newClient = prev })
}

type chatEnv struct {
	base, sessions, conversation string
}

func setupChat(t *testing.T, responses ...string) chatEnv {
	t.Helper()
	isolateEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	dir := t.TempDir()
	env := chatEnv{
		base:         filepath.Join(dir, "data"),
		sessions:     filepath.Join(dir, "sessions"),
		conversation: filepath.Join(dir, "conversation.json"),
	}
	t.Setenv("AGT_SESSIONS_DIR", env.sessions)
	t.Setenv("AGT_CONVERSATION_PATH", env.conversation)
	useTransport(t, &scriptedTransport{responses: responses})
	return env
}

func onlyTrace(t *testing.T, dir string) session.Trace {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "session_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	b, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var tr session.Trace
	require.NoError(t, json.Unmarshal(b, &tr))
	return tr
}

const (
	createResp = `{"id":"m1","type":"message","role":"assistant","model":"m","content":[{"type":"tool_use","id":"t1","name":"memory","input":{"command":"create","path":"/memories/user.txt","file_text":"Name: Ada"}}],"stop_reason":"tool_use","usage":{"input_tokens":5,"output_tokens":5}}`
	greetResp  = `{"id":"m2","type":"message","role":"assistant","model":"m","content":[{"type":"text","text":"Nice to meet you, Ada."}],"stop_reason":"end_turn","usage":{"input_tokens":9,"output_tokens":6}}`
)

func TestChat_TurnWithMemoryAndTrace(t *testing.T) {
	env := setupChat(t, createResp, greetResp)

	out, err := execute(t, "I'm Ada\n/memory_view\n/debug\n/debug\n/quit\n", "--memory-dir", env.base, "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "Claude: Nice to meet you, Ada.")
	assert.Contains(t, out, "--- Memory Contents ---\nuser.txt\n--- End Memory ---")
	assert.Contains(t, out, "Debug logging enabled")
	assert.Contains(t, out, "Debug logging disabled")
	assert.Contains(t, out, "Goodbye!")
	assert.Contains(t, out, "Session trace saved to ")

	b, err := os.ReadFile(filepath.Join(env.base, "memories", "user.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Name: Ada", string(b))

	msgs, err := session.LoadTranscript(env.conversation)
	require.NoError(t, err)
	assert.Equal(t, []session.Message{
		{Role: "user", Text: "I'm Ada"},
		{Role: "assistant", Text: "Nice to meet you, Ada."},
	}, msgs)

	tr := onlyTrace(t, env.sessions)
	assert.Equal(t, SystemPrompt, tr.SystemPrompt)
	require.NotNil(t, tr.EndTime)
	var types []string
	for _, ev := range tr.Events {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{
		session.EventUserInput,
		session.EventLLMRequest, session.EventTokenUsage, session.EventToolCall, session.EventToolResult,
		session.EventLLMRequest, session.EventTokenUsage, session.EventLLMResponse,
	}, types)
	turnID := tr.Events[0].TurnID
	require.NotEmpty(t, turnID)
	for _, ev := range tr.Events {
		assert.Equal(t, turnID, ev.TurnID)
	}
	assert.Equal(t, "create", tr.Events[3].Command)
	require.NotNil(t, tr.Events[6].Cumulative)
	assert.EqualValues(t, 14, tr.Events[6].Cumulative.TotalInputTokens)
}

func TestChat_ClearResetsEverything(t *testing.T) {
	env := setupChat(t, createResp, greetResp)

	out, err := execute(t, "I'm Ada\n/clear\nno\n/clear\nyes\n/memory_view\n", "--memory-dir", env.base, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "All memories have been cleared")
	assert.Contains(t, out, "--- Memory Contents ---\n--- End Memory ---")

	entries, err := os.ReadDir(filepath.Join(env.base, "memories"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	msgs, err := session.LoadTranscript(env.conversation)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	tr := onlyTrace(t, env.sessions)
	last := tr.Events[len(tr.Events)-1]
	assert.Equal(t, "clear_all", last.Command)
}

func TestChat_ResumesTranscript(t *testing.T) {
	env := setupChat(t, greetResp)
	require.NoError(t, session.SaveTranscript(env.conversation, []session.Message{
		{Role: "user", Text: "earlier"},
		{Role: "assistant", Text: "noted"},
	}))

	_, err := execute(t, "again\n", "--memory-dir", env.base, "chat", "--no-record")
	require.NoError(t, err)

	msgs, err := session.LoadTranscript(env.conversation)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	_, err = os.Stat(env.sessions)
	assert.True(t, os.IsNotExist(err), "no trace expected with --no-record")
}

func TestChat_RequiresAPIKey(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := execute(t, "", "--memory-dir", t.TempDir(), "chat")
	assert.ErrorIs(t, err, provider.ErrMissingAPIKey)
}
