package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <sequence>",
		Short: "Print the rendered sequence",
		Long: `Print every item of a sequence in rendered order, merged from the
local store and the cloud mirror.

Examples:
  seqctl list quest
  seqctl list quest --remote cloud.db --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runList(cmd, rootOpts, args[0]))
		},
	}
}

func runList(cmd *cobra.Command, opts *RootOptions, sequenceKey string) error {
	s, err := openSession(cmd.Context(), opts, sequenceKey)
	if err != nil {
		return err
	}
	defer s.Close()
	f := opts.formatter(cmd)
	f.VerboseLog("%s", s.summary())

	state := s.seq.State()
	if state.RemoteErr != nil {
		opts.Logger.Warn("cloud mirror unavailable", "error", state.RemoteErr)
	}

	if opts.Format == "json" {
		return f.Success(viewsOf(state.Items))
	}

	w := cmd.OutOrStdout()
	if len(state.Items) == 0 {
		fmt.Fprintf(w, "Sequence %s is empty.\n", sequenceKey)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tORDER KEY\tSOURCE\tNAME")
	for i, it := range state.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", i, it.ID, it.OrderKey, it.Source, it.Payload.Name)
	}
	return tw.Flush()
}
