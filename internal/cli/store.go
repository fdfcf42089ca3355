package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petasbytes/go-memory-agent/memory"
)

// storeCommand wires a memory operation into a cobra command that prints the
// operation's result message.
func storeCommand(opts *RootOptions, use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, s memory.Store, args []string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			out, err := run(cmd, s, args)
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
}

// NewViewCommand creates the view command.
func NewViewCommand(opts *RootOptions) *cobra.Command {
	var rangeFlag string
	cmd := storeCommand(opts, "view [path]", "List a directory or print a file", cobra.MaximumNArgs(1),
		func(cmd *cobra.Command, s memory.Store, args []string) (string, error) {
			path := memory.MountPrefix
			if len(args) == 1 {
				path = args[0]
			}
			r, err := parseRange(rangeFlag)
			if err != nil {
				return "", err
			}
			return s.View(cmd.Context(), path, r)
		})
	cmd.Flags().StringVar(&rangeFlag, "range", "", "line range start,end (1-based, inclusive; end -1 for last line)")
	return cmd
}

// NewCreateCommand creates the create command. Without a text argument the
// content is read from stdin.
func NewCreateCommand(opts *RootOptions) *cobra.Command {
	return storeCommand(opts, "create <path> [text]", "Create a new memory file", cobra.RangeArgs(1, 2),
		func(cmd *cobra.Command, s memory.Store, args []string) (string, error) {
			var text string
			if len(args) == 2 {
				text = args[1]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return "", fmt.Errorf("read stdin: %w", err)
				}
				text = string(b)
			}
			return s.Create(cmd.Context(), args[0], text)
		})
}

// NewStrReplaceCommand creates the str-replace command.
func NewStrReplaceCommand(opts *RootOptions) *cobra.Command {
	return storeCommand(opts, "str-replace <path> <old> <new>", "Replace a unique occurrence of text in a file", cobra.ExactArgs(3),
		func(cmd *cobra.Command, s memory.Store, args []string) (string, error) {
			return s.StrReplace(cmd.Context(), args[0], args[1], args[2])
		})
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(opts *RootOptions) *cobra.Command {
	return storeCommand(opts, "insert <path> <line> <text>", "Insert a line at a 1-based position", cobra.ExactArgs(3),
		func(cmd *cobra.Command, s memory.Store, args []string) (string, error) {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return "", fmt.Errorf("invalid line number %q: %w", args[1], err)
			}
			return s.Insert(cmd.Context(), args[0], n, args[2])
		})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return storeCommand(opts, "delete <path>", "Delete a file or directory", cobra.ExactArgs(1),
		func(cmd *cobra.Command, s memory.Store, args []string) (string, error) {
			return s.Delete(cmd.Context(), args[0])
		})
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(opts *RootOptions) *cobra.Command {
	return storeCommand(opts, "rename <old-path> <new-path>", "Move a file or directory", cobra.ExactArgs(2),
		func(cmd *cobra.Command, s memory.Store, args []string) (string, error) {
			return s.Rename(cmd.Context(), args[0], args[1])
		})
}

// NewClearCommand creates the clear command.
func NewClearCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := storeCommand(opts, "clear", "Delete all memories", cobra.NoArgs,
		func(cmd *cobra.Command, s memory.Store, _ []string) (string, error) {
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Clear all memories? (yes/no): ") {
				return "Aborted.", nil
			}
			return s.ClearAll(cmd.Context()), nil
		})
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// parseRange parses "start,end". An empty string means no range.
func parseRange(s string) (*memory.LineRange, error) {
	if s == "" {
		return nil, nil
	}
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("invalid range %q: want start,end", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", a, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return nil, fmt.Errorf("invalid range end %q: %w", b, err)
	}
	return &memory.LineRange{Start: start, End: end}, nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(sc.Text()), "yes")
}
