package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/minisync/internal/ids"
	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/kvdoc"
)

// DocSummary describes the working document.
type DocSummary struct {
	Document string            `json:"document"`
	Client   string            `json:"client"`
	Version  index.Version     `json:"version"`
	Values   map[string]string `json:"values,omitempty"`
}

func summarize(d *kvdoc.Doc, withValues bool) DocSummary {
	s := DocSummary{Document: d.ID(), Client: d.ClientID(), Version: d.Version()}
	if withValues {
		s.Values = d.Values()
	}
	return s
}

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	DocumentID string
	ClientID   string
	Force      bool

	// IDs generates missing ids. Defaults to UUIDv7.
	IDs ids.Generator
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty working document",
		Long: `Create an empty working document owned by a new client.

Examples:
  minisync init
  minisync init --id groceries --client laptop`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DocumentID, "id", "", "document id (default: generated)")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id (default: generated)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace an existing working document")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	if err := checkOverwrite(opts.DocPath, opts.Force); err != nil {
		return err
	}
	gen := opts.IDs
	if gen == nil {
		gen = ids.UUIDv7Generator{}
	}
	docID, clientID := opts.DocumentID, opts.ClientID
	if docID == "" {
		docID = gen.Generate()
	}
	if clientID == "" {
		clientID = gen.Generate()
	}

	d := kvdoc.New(docID, clientID)
	if err := storeWorkDoc(opts.DocPath, d); err != nil {
		return WrapExitError(ExitCommandError, "failed to write working document", err)
	}
	summary := summarize(d, false)
	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Render(summary, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Initialized document %s (client %s)\n", docID, clientID)
		return err
	})
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <key> <value>",
		Short:         "Set a key in the working document",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return editWorkDoc(opts, cmd, func(d *kvdoc.Doc) { d.Set(args[0], args[1]) })
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <key>",
		Short:         "Delete a key from the working document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return editWorkDoc(opts, cmd, func(d *kvdoc.Doc) { d.Delete(args[0]) })
		},
	}
}

func editWorkDoc(opts *RootOptions, cmd *cobra.Command, edit func(*kvdoc.Doc)) error {
	d, err := loadWorkDoc(opts.DocPath)
	if err != nil {
		return err
	}
	edit(d)
	if err := storeWorkDoc(opts.DocPath, d); err != nil {
		return WrapExitError(ExitCommandError, "failed to write working document", err)
	}
	return newFormatter(opts, cmd.OutOrStdout()).Render(summarize(d, false), func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Version %d\n", d.Version())
		return err
	})
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the working document",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadWorkDoc(opts.DocPath)
			if err != nil {
				return err
			}
			summary := summarize(d, true)
			return newFormatter(opts, cmd.OutOrStdout()).Render(summary, func(w io.Writer) error {
				fmt.Fprintf(w, "Document %s (client %s, version %d)\n", summary.Document, summary.Client, summary.Version)
				for _, k := range slices.Sorted(maps.Keys(summary.Values)) {
					fmt.Fprintf(w, "%s=%s\n", k, summary.Values[k])
				}
				return nil
			})
		},
	}
}
