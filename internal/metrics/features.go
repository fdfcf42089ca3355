// Package metrics derives size features from tool results and user input.
package metrics

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Features holds basic text size counts.
type Features struct {
	Bytes int
	Runes int
	Words int
	Lines int
}

// CountFeatures computes byte, rune, word and line counts for s.
func CountFeatures(s string) Features {
	return Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: len(strings.Fields(s)),
		Lines: countLines(s),
	}
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}

// Truncate shortens s to at most max runes and appends a marker carrying the
// full rune count. It reports whether s was cut.
func Truncate(s string, max int) (string, bool) {
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s, false
	}
	return string([]rune(s)[:max]) + fmt.Sprintf("... (truncated, total length: %d chars)", n), true
}
