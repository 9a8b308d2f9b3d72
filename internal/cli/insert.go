package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/hybridseq/internal/item"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	Index    int
	Name     string
	Text     string
	AudioRef string
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <sequence>",
		Short: "Insert a segment into a sequence",
		Long: `Insert a text or audio segment at a position in the rendered sequence.

The index counts items from both the local store and the cloud mirror.
Without --index the segment is appended.

Examples:
  seqctl insert quest --name "intro" --text "Once upon a time"
  seqctl insert quest --index 2 --name "take 3" --audio audio/take3.m4a`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.report(cmd, runInsert(cmd, opts, args[0]))
		},
	}

	cmd.Flags().IntVarP(&opts.Index, "index", "i", -1, "position in the rendered sequence (default: append)")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "display name")
	cmd.Flags().StringVar(&opts.Text, "text", "", "text content")
	cmd.Flags().StringVar(&opts.AudioRef, "audio", "", "audio reference; makes the segment an audio segment")
	cmd.MarkFlagsMutuallyExclusive("text", "audio")

	return cmd
}

func runInsert(cmd *cobra.Command, opts *InsertOptions, sequenceKey string) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)
	s, err := openSession(ctx, opts.RootOptions, sequenceKey)
	if err != nil {
		return err
	}
	defer s.Close()
	f.VerboseLog("%s", s.summary())

	payload := item.Payload{Name: opts.Name, Kind: item.KindText, Text: opts.Text}
	if opts.AudioRef != "" {
		payload = item.Payload{Name: opts.Name, Kind: item.KindAudio, AudioRef: opts.AudioRef}
	}

	index := opts.Index
	if index < 0 {
		index = len(s.seq.Items())
	}

	tk, err := s.seq.InsertAt(ctx, index, payload)
	if err != nil {
		return WrapExitError(ExitFailure, "insert failed", err).WithKind(CodeWriteFailed)
	}
	f.VerboseLog("Queued %s at index %d", tk.ID, index)
	committed, err := tk.Wait(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("write of %s failed", tk.ID), err).
			WithKind(CodeWriteFailed).
			WithDetails(map[string]any{"id": tk.ID, "index": index})
	}

	if opts.Format == "json" {
		return f.Success(viewOf(committed))
	}
	return f.Success(fmt.Sprintf("Inserted %s at order key %d", committed.ID, committed.OrderKey))
}
