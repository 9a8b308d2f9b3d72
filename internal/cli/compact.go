package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/hybridseq/internal/store"
)

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compact <sequence>",
		Short: "Respace order keys evenly",
		Long: `Rewrite a sequence's order keys in the local store to stride,
2*stride, ... in one transaction. Order is unchanged.

Examples:
  seqctl compact quest
  seqctl compact quest --stride 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runCompact(cmd, rootOpts, args[0]))
		},
	}
}

func runCompact(cmd *cobra.Command, opts *RootOptions, sequenceKey string) error {
	f := opts.formatter(cmd)
	f.VerboseLog("Compacting %s in %s with stride %d", sequenceKey, opts.Config.DBPath, opts.Config.Stride)
	st, err := store.Open(opts.Config.DBPath, store.WithStride(opts.Config.Stride))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err).WithKind(CodeStoreUnavailable)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.Logger.Error("error closing database", "error", closeErr)
		}
	}()

	changed, err := st.Compact(cmd.Context(), sequenceKey)
	if err != nil {
		return WrapExitError(ExitFailure, "compact failed", err).WithKind(CodeWriteFailed)
	}
	opts.Logger.Info("sequence compacted", "sequence", sequenceKey, "changed", changed, "stride", opts.Config.Stride)

	if opts.Format == "json" {
		return f.Success(map[string]any{"sequence": sequenceKey, "changed": changed})
	}
	return f.Success(fmt.Sprintf("Compacted %s: %d keys changed", sequenceKey, changed))
}
