package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/petasbytes/go-memory-agent/internal/safety"
	"github.com/petasbytes/go-memory-agent/memory"
)

// MemoryToolName is the tool name advertised to the model.
const MemoryToolName = "memory"

// CodeInvalidInput marks malformed tool input (bad JSON, unknown command,
// missing fields).
const CodeInvalidInput = "ERR_INVALID_INPUT"

// MemoryInput is the union of all memory command arguments. Which fields are
// required depends on Command.
type MemoryInput struct {
	Command    string `json:"command" jsonschema:"enum=view,enum=create,enum=str_replace,enum=insert,enum=delete,enum=rename" jsonschema_description:"Operation to perform."`
	Path       string `json:"path,omitempty" jsonschema_description:"Virtual path under /memories (view, create, str_replace, insert, delete)."`
	ViewRange  []int  `json:"view_range,omitempty" jsonschema_description:"Optional [start, end] 1-based inclusive line range for view; end -1 means to the last line."`
	FileText   string `json:"file_text,omitempty" jsonschema_description:"Content for create."`
	OldStr     string `json:"old_str,omitempty" jsonschema_description:"Exact text to replace; must occur exactly once (str_replace)."`
	NewStr     string `json:"new_str,omitempty" jsonschema_description:"Replacement text (str_replace)."`
	InsertLine *int   `json:"insert_line,omitempty" jsonschema_description:"1-based line number the inserted text will occupy; line count + 1 appends (insert)."`
	InsertText string `json:"insert_text,omitempty" jsonschema_description:"Text to insert as a single line (insert)."`
	OldPath    string `json:"old_path,omitempty" jsonschema_description:"Source path for rename."`
	NewPath    string `json:"new_path,omitempty" jsonschema_description:"Destination path for rename."`
}

const memoryDescription = `Persistent memory stored as text files under the /memories directory.
Check /memories with view before starting a task and record progress, decisions and facts worth keeping as you go.
Commands: view (list a directory or read a file, optionally a line range), create (new file only), str_replace (unique exact match), insert (one line at a 1-based position), delete (file or directory), rename (file or directory).
All paths must start with /memories.`

var memoryInputSchema = GenerateSchema[MemoryInput]()

// NewMemoryDefinition returns the memory tool backed by store.
func NewMemoryDefinition(store memory.Store) ToolDefinition {
	return ToolDefinition{
		Name:        MemoryToolName,
		Description: memoryDescription,
		InputSchema: memoryInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			return runMemory(ctx, store, input)
		},
	}
}

func runMemory(ctx context.Context, store memory.Store, input json.RawMessage) (string, error) {
	var in MemoryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", invalid("invalid input: %v", err)
	}
	out, err := dispatch(ctx, store, in)
	if err != nil {
		return "", toToolError(err)
	}
	return out, nil
}

func dispatch(ctx context.Context, store memory.Store, in MemoryInput) (string, error) {
	switch in.Command {
	case "view":
		if in.Path == "" {
			return "", invalid("view requires path")
		}
		var r *memory.LineRange
		if in.ViewRange != nil {
			if len(in.ViewRange) != 2 {
				return "", invalid("view_range must have exactly two elements, got %d", len(in.ViewRange))
			}
			r = &memory.LineRange{Start: in.ViewRange[0], End: in.ViewRange[1]}
		}
		return store.View(ctx, in.Path, r)
	case "create":
		if in.Path == "" {
			return "", invalid("create requires path")
		}
		return store.Create(ctx, in.Path, in.FileText)
	case "str_replace":
		if in.Path == "" {
			return "", invalid("str_replace requires path")
		}
		return store.StrReplace(ctx, in.Path, in.OldStr, in.NewStr)
	case "insert":
		if in.Path == "" || in.InsertLine == nil {
			return "", invalid("insert requires path and insert_line")
		}
		return store.Insert(ctx, in.Path, *in.InsertLine, in.InsertText)
	case "delete":
		if in.Path == "" {
			return "", invalid("delete requires path")
		}
		return store.Delete(ctx, in.Path)
	case "rename":
		if in.OldPath == "" || in.NewPath == "" {
			return "", invalid("rename requires old_path and new_path")
		}
		return store.Rename(ctx, in.OldPath, in.NewPath)
	case "":
		return "", invalid("missing command")
	}
	return "", invalid("unknown command %q", in.Command)
}

// toToolError renders store failures as the compact JSON body the model sees.
// Only the message goes out; it names virtual paths, while the wrapped cause
// may name physical ones and stays in the store's log. Context errors pass
// through unchanged.
func toToolError(err error) error {
	var me *memory.Error
	if errors.As(err, &me) {
		return safety.ToolError{Code: string(me.Kind), Message: me.Message}
	}
	return err
}

func invalid(format string, args ...any) error {
	return safety.ToolError{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}
