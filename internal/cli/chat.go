package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"github.com/petasbytes/go-memory-agent/internal/provider"
	"github.com/petasbytes/go-memory-agent/internal/runner"
	"github.com/petasbytes/go-memory-agent/internal/session"
	"github.com/petasbytes/go-memory-agent/internal/telemetry"
	"github.com/petasbytes/go-memory-agent/memory"
	"github.com/petasbytes/go-memory-agent/tools"
)

// SystemPrompt steers the model towards managing its memory unprompted.
const SystemPrompt = `You are a helpful assistant with persistent memory capabilities.

Key behaviors:
- Autonomously decide what information is worth remembering (names, preferences, project details, etc.)
- Use your memory tool to save important facts without being explicitly asked
- Keep memories organized and up-to-date - remove outdated info, consolidate related facts
- Recall relevant memories when they help provide better responses

You have complete authority over your memory. Manage it wisely.`

// newClient is replaced in tests to route requests to a fake transport.
var newClient = func(opts ...option.RequestOption) *anthropic.Client {
	return provider.NewAnthropicClient(opts...)
}

// NewChatCommand creates the interactive chat command.
func NewChatCommand(opts *RootOptions) *cobra.Command {
	var (
		model    string
		noRecord bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent; it manages its own memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := provider.CheckAPIKey(); err != nil {
				return err
			}
			cfg := opts.Config
			if model != "" {
				cfg.Model = model
			}
			if noRecord {
				cfg.RecordSessions = false
			}
			opts.Config = cfg
			return runChat(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model name; overrides config")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not write a session trace")
	return cmd
}

// chat is one interactive session.
type chat struct {
	opts      *RootOptions
	logger    *slog.Logger
	out       io.Writer
	lines     <-chan string
	store     memory.Store // recorded
	raw       memory.Store // unrecorded, for /memory_view
	runner    *runner.Runner
	recorder  *session.Recorder
	baseLevel slog.Level

	conv       []anthropic.MessageParam
	transcript []session.Message
}

func runChat(ctx context.Context, opts *RootOptions, in io.Reader, out io.Writer) error {
	fs, err := opts.openStore()
	if err != nil {
		return err
	}
	cfg := opts.Config
	logger := opts.Logger.With("component", "chat")

	c := &chat{
		opts:      opts,
		logger:    logger,
		out:       out,
		raw:       fs,
		baseLevel: opts.LevelVar.Level(),
	}

	var sink session.Sink
	if cfg.RecordSessions {
		rec, err := session.NewRecorder(cfg.SessionsDir, cfg.Model, SystemPrompt, opts.Logger.With("component", "session"))
		if err != nil {
			// The chat still works without a trace.
			logger.Warn("session recording disabled", "err", err)
		} else {
			c.recorder = rec
			sink = rec
		}
	}
	c.store = session.NewRecordingStore(fs, sink)

	r := runner.New(newClient(), tools.Registry(c.store))
	r.Model = anthropic.Model(cfg.Model)
	r.MaxTokens = cfg.MaxTokens
	r.ContextBudget = cfg.ContextBudget
	r.System = SystemPrompt
	r.Logger = opts.Logger.With("component", "runner")
	if c.recorder != nil {
		r.Events = c.recorder
	}
	c.runner = r

	if err := c.loadTranscript(); err != nil {
		logger.Warn("failed to load persisted conversation", "err", err)
	}

	// Stops the stdin reader when the loop ends.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.lines = readLines(ctx, in)
	c.printWelcome()
	logger.Info("starting conversation loop")
	c.loop(ctx)

	if c.recorder != nil {
		path := c.recorder.Finalize()
		fmt.Fprintf(out, "Session trace saved to %s\n", path)
	}
	return nil
}

// readLines feeds lines from in until EOF or ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (c *chat) readLine(ctx context.Context, prompt string) (string, bool) {
	fmt.Fprint(c.out, prompt)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-c.lines:
		return strings.TrimSpace(line), ok
	}
}

func (c *chat) printWelcome() {
	rule := strings.Repeat("=", 70)
	fmt.Fprintf(c.out, "\n%s\nMemory agent: Claude with autonomous memory\n%s\n", rule, rule)
	fmt.Fprintln(c.out, "\nJust chat naturally. Claude decides what is worth remembering.")
	fmt.Fprintln(c.out, "\nCommands:")
	fmt.Fprintln(c.out, "  /quit          - Exit the program")
	fmt.Fprintln(c.out, "  /memory_view   - View all stored memories")
	fmt.Fprintln(c.out, "  /clear         - Clear all memories and start fresh")
	fmt.Fprintln(c.out, "  /debug         - Toggle debug logging")
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out)
}

func (c *chat) loop(ctx context.Context) {
	for {
		input, ok := c.readLine(ctx, "You: ")
		if !ok {
			fmt.Fprintln(c.out)
			return
		}
		switch input {
		case "":
			continue
		case "/quit":
			fmt.Fprint(c.out, "\nGoodbye!\n\n")
			return
		case "/memory_view":
			c.memoryView(ctx)
		case "/clear":
			c.clear(ctx)
		case "/debug":
			c.toggleDebug()
		default:
			c.turn(ctx, input)
		}
	}
}

func (c *chat) memoryView(ctx context.Context) {
	fmt.Fprintln(c.out, "\n--- Memory Contents ---")
	listing, err := c.raw.View(ctx, memory.MountPrefix, nil)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	} else if listing != "" {
		fmt.Fprintln(c.out, listing)
	}
	fmt.Fprint(c.out, "--- End Memory ---\n\n")
}

func (c *chat) clear(ctx context.Context) {
	answer, ok := c.readLine(ctx, "Clear all memories? (yes/no): ")
	if !ok || !strings.EqualFold(answer, "yes") {
		return
	}
	result := c.store.ClearAll(ctx)
	c.conv = nil
	c.transcript = nil
	c.runner.ResetUsage()
	c.saveTranscript()
	fmt.Fprintf(c.out, "\n%s\n\n", result)
}

func (c *chat) toggleDebug() {
	if c.opts.LevelVar.Level() == slog.LevelDebug {
		lvl := c.baseLevel
		if lvl == slog.LevelDebug {
			lvl = slog.LevelInfo
		}
		c.opts.LevelVar.Set(lvl)
		fmt.Fprint(c.out, "\nDebug logging disabled\n\n")
		return
	}
	c.opts.LevelVar.Set(slog.LevelDebug)
	fmt.Fprint(c.out, "\nDebug logging enabled\n\n")
}

func (c *chat) turn(ctx context.Context, input string) {
	ctx = telemetry.WithTurnID(ctx, telemetry.NewTurnID())
	if c.recorder != nil {
		c.recorder.LogUserInput(ctx, input)
	}

	conv, text, err := c.runner.RunTurn(ctx, c.conv, input)
	if err != nil {
		c.logger.ErrorContext(ctx, "error in conversation loop", "err", err)
		fmt.Fprintf(c.out, "\nError: %v\nTry again or type /quit to exit.\n\n", err)
		return
	}
	c.conv = conv
	fmt.Fprintf(c.out, "\nClaude: %s\n\n", text)

	// Tool blocks stay transient; only text is persisted.
	c.transcript = append(c.transcript, session.Message{Role: "user", Text: input})
	if strings.TrimSpace(text) != "" {
		c.transcript = append(c.transcript, session.Message{Role: "assistant", Text: text})
	}
	c.saveTranscript()
}

func (c *chat) loadTranscript() error {
	path := c.opts.Config.ConversationPath
	if path == "" {
		return nil
	}
	msgs, err := session.LoadTranscript(path)
	if err != nil {
		return err
	}
	c.transcript = msgs
	for _, m := range msgs {
		if m.Role == "user" {
			c.conv = append(c.conv, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		} else {
			c.conv = append(c.conv, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	c.logger.Info("loaded conversation", "messages", len(msgs))
	return nil
}

func (c *chat) saveTranscript() {
	path := c.opts.Config.ConversationPath
	if path == "" {
		return
	}
	if err := session.SaveTranscript(path, c.transcript); err != nil {
		c.logger.Warn("failed to save conversation", "err", err)
	}
}
