// Package windowing trims a conversation to an estimated token budget before
// it is sent, without separating a tool_use from its tool_result.
//
// Messages are grouped into atomic units: an assistant message carrying
// tool_use blocks together with the following user message whose leading
// tool_result blocks answer every one of them forms a pair; every other
// message is a singleton. Trim keeps the newest groups that fit.
package windowing
