// Package tools defines tool contracts and implementations.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - The memory tool: one command-dispatched tool over a memory.Store.
//   - Invariants: tool_use and its corresponding tool_result remain adjacent within a turn
package tools
