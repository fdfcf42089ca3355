package tools

import "github.com/petasbytes/go-memory-agent/memory"

// Registry returns all tool definitions wired for the agent
func Registry(store memory.Store) []ToolDefinition {
	return []ToolDefinition{NewMemoryDefinition(store)}
}
