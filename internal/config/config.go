// Package config loads agent settings from defaults, an optional YAML file
// and AGT_* environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	// BaseDir holds the memories/ root.
	BaseDir string `yaml:"base_dir"`

	// SessionsDir receives session trace documents.
	SessionsDir    string `yaml:"sessions_dir"`
	RecordSessions bool   `yaml:"record_sessions"`

	// ConversationPath is where the chat transcript is persisted.
	// Empty disables persistence.
	ConversationPath string `yaml:"conversation_path"`

	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`

	// ContextBudget bounds the estimated size of each request's conversation.
	// Zero disables trimming.
	ContextBudget int `yaml:"context_budget"`

	LogLevel  string `yaml:"log_level"`  // debug|info|warn|error
	LogFormat string `yaml:"log_format"` // text|json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseDir:          ".",
		SessionsDir:      "sessions",
		RecordSessions:   true,
		ConversationPath: "conversation.json",
		Model:            "claude-sonnet-4-5-20250929",
		MaxTokens:        2048,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load resolves configuration. An empty path skips the file layer; a
// non-empty path must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.BaseDir == "" {
		errs = append(errs, errors.New("base_dir must not be empty"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.ContextBudget < 0 {
		errs = append(errs, fmt.Errorf("context_budget must not be negative, got %d", c.ContextBudget))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func applyEnv(c *Config) error {
	if v, ok := os.LookupEnv("AGT_MEMORY_DIR"); ok {
		c.BaseDir = v
	}
	if v, ok := os.LookupEnv("AGT_SESSIONS_DIR"); ok {
		c.SessionsDir = v
	}
	if v, ok := os.LookupEnv("AGT_RECORD_SESSIONS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid AGT_RECORD_SESSIONS %q: %w", v, err)
		}
		c.RecordSessions = b
	}
	if v, ok := os.LookupEnv("AGT_CONVERSATION_PATH"); ok {
		c.ConversationPath = v
	}
	if v, ok := os.LookupEnv("AGT_MODEL"); ok && v != "" {
		c.Model = v
	}
	if v, ok := os.LookupEnv("AGT_MAX_TOKENS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid AGT_MAX_TOKENS %q: %w", v, err)
		}
		c.MaxTokens = n
	}
	if v, ok := os.LookupEnv("AGT_CONTEXT_BUDGET"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid AGT_CONTEXT_BUDGET %q: %w", v, err)
		}
		c.ContextBudget = n
	}
	if v, ok := os.LookupEnv("AGT_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("AGT_LOG_FORMAT"); ok && v != "" {
		c.LogFormat = v
	}
	if strings.EqualFold(os.Getenv("DEBUG"), "true") {
		c.LogLevel = "debug"
	}
	return nil
}
