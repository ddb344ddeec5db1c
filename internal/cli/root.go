package cli

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DocPath    string
	Metrics    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the minisync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "minisync",
		Short: "minisync - document sync through plain file stores",
		Long: `Synchronize a document between devices and users through stores that can
only put, get and publish files. Each device saves its change history as
part files plus a client index; a master index per document lists every
device and every peer the document was shared with.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return errors.Newf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DocPath, "doc", DefaultDocFile, "path to the working document file")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print sync counters to stderr after save, restore, import and merge")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))
	cmd.AddCommand(NewFilesCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
