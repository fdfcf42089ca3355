// Package cli implements the memagent command tree.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/petasbytes/go-memory-agent/internal/config"
	"github.com/petasbytes/go-memory-agent/internal/logging"
	"github.com/petasbytes/go-memory-agent/memory"
)

// RootOptions holds global flags and the state resolved from them before any
// subcommand runs.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	MemoryDir  string

	Config   config.Config
	Logger   *slog.Logger
	LevelVar *slog.LevelVar
}

// NewRootCommand creates the root command for the memagent CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "memagent",
		Short: "Chat agent with a persistent file-backed memory",
		Long: `memagent runs a chat agent that manages its own long-term memory as text
files under <base_dir>/memories, and exposes every memory operation directly
for inspection and scripting.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main reports the error
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); overrides config")
	cmd.PersistentFlags().StringVar(&opts.MemoryDir, "memory-dir", "", "base directory holding memories/; overrides config")

	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewViewCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewStrReplaceCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))

	return cmd
}

// resolve loads config, applies flag overrides and builds the logger.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.MemoryDir != "" {
		cfg.BaseDir = o.MemoryDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, lv, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	o.Config = cfg
	o.Logger = logger
	o.LevelVar = lv
	return nil
}

// openStore opens the file-backed memory store under the configured base dir.
func (o *RootOptions) openStore() (*memory.FileStore, error) {
	s, err := memory.NewFileStore(o.Config.BaseDir, memory.WithLogger(o.Logger.With("component", "memory")))
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	return s, nil
}
