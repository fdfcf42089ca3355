package windowing

import "github.com/anthropics/anthropic-sdk-go"

// GroupKind denotes the atomic unit type.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
)

// Group describes a contiguous span of messages [Start, End).
type Group struct {
	Kind  GroupKind
	Start int
	End   int
}

// GroupMessages splits msgs into atomic groups, oldest first.
func GroupMessages(msgs []anthropic.MessageParam) []Group {
	groups := make([]Group, 0, len(msgs))
	for i := 0; i < len(msgs); {
		if i+1 < len(msgs) && answers(msgs[i], msgs[i+1]) {
			groups = append(groups, Group{Kind: GroupPair, Start: i, End: i + 2})
			i += 2
			continue
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

// answers reports whether res is a user message whose leading tool_result
// blocks match the tool_use ids of the assistant message use exactly.
func answers(use, res anthropic.MessageParam) bool {
	if use.Role != anthropic.MessageParamRoleAssistant || res.Role != anthropic.MessageParamRoleUser {
		return false
	}
	want := map[string]bool{}
	for _, b := range use.Content {
		if tu := b.OfToolUse; tu != nil && tu.ID != "" {
			want[tu.ID] = true
		}
	}
	if len(want) == 0 {
		return false
	}
	got := map[string]bool{}
	for _, b := range res.Content {
		tr := b.OfToolResult
		if tr == nil {
			break // text may follow the results, never precede them
		}
		if !want[tr.ToolUseID] {
			return false
		}
		got[tr.ToolUseID] = true
	}
	return len(got) == len(want)
}
