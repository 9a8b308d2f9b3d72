package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/hybridseq/internal/item"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sequence> <id>",
		Short: "Delete an item from the local store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runEdit(cmd, rootOpts, args[0], args[1], "Deleted", func(s *session) error {
				return s.seq.Delete(cmd.Context(), args[1])
			}))
		},
	}
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <sequence> <id> <index>",
		Short: "Move an item to a new position",
		Long: `Move an item to a position in the rendered sequence, counted after
the item is taken out.

Examples:
  seqctl move quest 0192f3a4-7c1e-7d2a-9b10-5e6f7a8b9c0d 0`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[2])
			if err != nil || index < 0 {
				return rootOpts.report(cmd, NewExitError(ExitCommandError, fmt.Sprintf("invalid index %q", args[2])).
					WithKind(CodeBadInput))
			}
			return rootOpts.report(cmd, runEdit(cmd, rootOpts, args[0], args[1], "Moved", func(s *session) error {
				return s.seq.Move(cmd.Context(), args[1], index)
			}))
		},
	}
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <sequence> <id> <name>",
		Short: "Change an item's display name",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runEdit(cmd, rootOpts, args[0], args[1], "Renamed", func(s *session) error {
				return s.seq.Rename(cmd.Context(), args[1], args[2])
			}))
		},
	}
}

// runEdit applies one durable mutation and reports the result.
func runEdit(cmd *cobra.Command, opts *RootOptions, sequenceKey, id, verb string, apply func(*session) error) error {
	f := opts.formatter(cmd)
	s, err := openSession(cmd.Context(), opts, sequenceKey)
	if err != nil {
		return err
	}
	defer s.Close()
	f.VerboseLog("%s", s.summary())

	if err := apply(s); err != nil {
		details := map[string]any{"id": id, "sequence": sequenceKey}
		if errors.Is(err, item.ErrNotFound) {
			return WrapExitError(ExitFailure, fmt.Sprintf("item %s not found in local store", id), err).
				WithKind(CodeNotFound).
				WithDetails(details)
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", cmd.Name()), err).
			WithKind(CodeWriteFailed).
			WithDetails(details)
	}
	if opts.Format == "json" {
		return f.Success(map[string]any{
			"id":    id,
			"items": viewsOf(s.seq.Items()),
		})
	}
	return f.Success(fmt.Sprintf("%s %s", verb, id))
}
