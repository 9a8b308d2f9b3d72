package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/hybridseq/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	DBPath      string
	RemotePath  string
	MetricsFile string

	// Config is the resolved configuration: defaults, then the config
	// file, then explicitly set flags.
	Config config.Config

	// Logger is installed by the root command before any subcommand runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the seqctl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "seqctl",
		Short: "seqctl - ordered sequences over a local store and a cloud mirror",
		Long: `Inspect and edit ordered sequences that merge a local SQLite store
with a cloud mirror.

Edits are rendered optimistically, written through a single writer
loop and reconciled with both sources before the command returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := opts.resolveConfig(cmd); err != nil {
				return err
			}
			opts.setupLogger(cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "local SQLite database (overrides db_path)")
	cmd.PersistentFlags().StringVar(&opts.RemotePath, "remote", "", "SQLite database standing in for the cloud mirror (overrides remote_path)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	cmd.PersistentFlags().Bool("offline", false, "skip the cloud mirror (overrides offline)")
	cmd.PersistentFlags().Int64("stride", 0, "order-key spacing (overrides stride)")

	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// resolveConfig layers the config file and explicitly set flags over the
// defaults.
func (o *RootOptions) resolveConfig(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.RemotePath != "" {
		cfg.RemotePath = o.RemotePath
	}
	if flags.Changed("offline") {
		cfg.Offline, _ = flags.GetBool("offline")
	}
	if flags.Changed("stride") {
		cfg.Stride, _ = flags.GetInt64("stride")
	}
	if flags.Changed("format") {
		cfg.LogFormat = o.Format
	}

	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg
	return nil
}

// setupLogger installs the slog handler selected by log_format. Logs go to
// w, which is stderr unless a test redirects it.
func (o *RootOptions) setupLogger(w io.Writer) {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if o.Config.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	o.Logger = slog.New(handler)
	slog.SetDefault(o.Logger)
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// report writes a command's error through the formatter once, so main
// does not print it again.
func (o *RootOptions) report(cmd *cobra.Command, err error) error {
	return o.formatter(cmd).Fail(err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
