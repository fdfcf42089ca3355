package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Message is a minimal persisted view of a chat turn.
// Only text is stored; tool blocks are transient.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text,omitempty"`
}

// LoadTranscript reads a saved conversation. A missing file yields nil, nil.
func LoadTranscript(path string) ([]Message, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("session: parse transcript %s: %w", path, err)
	}
	return msgs, nil
}

// SaveTranscript writes msgs to path via a temp file and rename.
func SaveTranscript(path string, msgs []Message) error {
	b, err := json.MarshalIndent(msgs, "", " ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("session: write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("session: rename transcript %s: %w", path, err)
	}
	return nil
}
