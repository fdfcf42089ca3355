// Package provider constructs the Anthropic Messages API client.
package provider

import (
	"errors"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when configuration does not name one.
const DefaultModel = anthropic.Model("claude-sonnet-4-5-20250929")

// ErrMissingAPIKey is returned by CheckAPIKey when ANTHROPIC_API_KEY is unset.
var ErrMissingAPIKey = errors.New("missing ANTHROPIC_API_KEY; export it before running")

// NewAnthropicClient returns a client using the API key from the env plus any
// extra request options (tests inject an HTTP client here).
func NewAnthropicClient(opts ...option.RequestOption) *anthropic.Client {
	c := anthropic.NewClient(opts...)
	return &c
}

// CheckAPIKey reports whether an API key is available to the SDK.
func CheckAPIKey() error {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return ErrMissingAPIKey
	}
	return nil
}
