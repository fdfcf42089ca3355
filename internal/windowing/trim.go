package windowing

import "github.com/anthropics/anthropic-sdk-go"

// Stats summarizes a Trim call.
type Stats struct {
	Total          int // estimated cost of the returned window
	Budget         int
	IncludedGroups int
	SkippedGroups  int
	// OverBudget is set when the window had to exceed Budget, either because
	// the newest group alone is larger or to start on a user message.
	OverBudget bool
}

// Trim returns the newest suffix of msgs, made of whole groups, whose
// estimated cost fits budget. The newest group is always kept, and the window
// is extended backwards until it starts with a user message, since the API
// rejects conversations opening with the assistant. A budget <= 0 disables
// trimming.
func Trim(msgs []anthropic.MessageParam, budget int, c TokenCounter) ([]anthropic.MessageParam, Stats) {
	groups := GroupMessages(msgs)
	if budget <= 0 || len(groups) == 0 {
		total := 0
		for _, g := range groups {
			total += countGroup(c, g, msgs)
		}
		return msgs, Stats{Total: total, Budget: budget, IncludedGroups: len(groups)}
	}

	total := 0
	start := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		cost := countGroup(c, groups[gi], msgs)
		if start < len(groups) && total+cost > budget {
			break
		}
		total += cost
		start = gi
	}
	for start > 0 && msgs[groups[start].Start].Role != anthropic.MessageParamRoleUser {
		start--
		total += countGroup(c, groups[start], msgs)
	}

	return msgs[groups[start].Start:], Stats{
		Total:          total,
		Budget:         budget,
		IncludedGroups: len(groups) - start,
		SkippedGroups:  start,
		OverBudget:     total > budget,
	}
}
