package windowing

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
)

// TokenCounter estimates the input-token cost of a message.
type TokenCounter interface {
	CountMessage(m anthropic.MessageParam) int
}

// RuneCounter is a deterministic estimator: text and tool payloads cost their
// rune count, plus a fixed overhead per block.
type RuneCounter struct{}

// blockOverhead is added for every content block.
const blockOverhead = 4

func (RuneCounter) CountMessage(m anthropic.MessageParam) int {
	total := 0
	for _, b := range m.Content {
		total += countBlock(b) + blockOverhead
	}
	return total
}

func countBlock(b anthropic.ContentBlockParamUnion) int {
	switch {
	case b.OfText != nil:
		return utf8.RuneCountInString(b.OfText.Text)
	case b.OfToolUse != nil:
		// Inputs carry document text for create/str_replace.
		raw, err := json.Marshal(b.OfToolUse.Input)
		if err != nil {
			return 0
		}
		return utf8.RuneCount(raw)
	case b.OfToolResult != nil:
		n := 0
		for _, c := range b.OfToolResult.Content {
			if c.OfText != nil {
				n += utf8.RuneCountInString(c.OfText.Text)
			}
		}
		return n
	}
	return 0
}

func countGroup(c TokenCounter, g Group, msgs []anthropic.MessageParam) int {
	n := 0
	for _, m := range msgs[g.Start:g.End] {
		n += c.CountMessage(m)
	}
	return n
}
