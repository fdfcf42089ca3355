package memory

import "strings"

// splitKeepEnds splits s after every "\n". A trailing newline does not start
// a new line, so "" has 0 lines and "a\n" has 1.
func splitKeepEnds(s string) []string {
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// splitLines is splitKeepEnds with line terminators ("\n" or "\r\n") removed.
func splitLines(s string) []string {
	lines := splitKeepEnds(s)
	for i, l := range lines {
		l = strings.TrimSuffix(l, "\n")
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// selectRange applies r to lines. Start is floored at 1, End is clamped to
// the line count, and an empty slice is returned when Start is past End.
func selectRange(lines []string, r LineRange) ([]string, bool) {
	end := r.End
	switch {
	case end == -1:
		end = len(lines)
	case end < -1:
		return nil, false
	case end > len(lines):
		end = len(lines)
	}
	start := max(r.Start, 1) - 1
	if start >= end {
		return []string{}, true
	}
	return lines[start:end], true
}

// insertLine inserts text as line n (1-indexed) of content. n must already be
// within [1, len(lines)+1].
func insertLine(lines []string, n int, text string) string {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	idx := n - 1
	// Appending after an unterminated last line: terminate it first so text
	// lands on its own line.
	if idx == len(lines) && idx > 0 && !strings.HasSuffix(lines[idx-1], "\n") {
		lines[idx-1] += "\n"
	}
	var b strings.Builder
	for i, l := range lines {
		if i == idx {
			b.WriteString(text)
		}
		b.WriteString(l)
	}
	if idx == len(lines) {
		b.WriteString(text)
	}
	return b.String()
}
