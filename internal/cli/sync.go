package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/minisync/internal/ids"
	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/kvdoc"
	"github.com/roach88/minisync/internal/remote"
)

// SaveOutput is the JSON form of a save.
type SaveOutput struct {
	Saved   bool          `json:"saved"`
	Version index.Version `json:"version"`
	Part    int           `json:"part,omitempty"`
	URL     string        `json:"url,omitempty"`
}

// NewSaveCommand creates the save command.
func NewSaveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Save the working document's new changes to the store",
		Long: `Append the working document's unsaved changes to its client's part chain
and update the client and master indexes. Prints the master index URL,
which other users can import.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, cmd)
		},
	}
}

func runSave(opts *RootOptions, cmd *cobra.Command) error {
	d, err := loadWorkDoc(opts.DocPath)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportMetrics(opts, cmd)

	res, err := e.syncer(kvFactory("")).SaveRemote(ctx, d)
	if err != nil {
		return WrapExitError(ExitFailure, "save failed", err)
	}

	out := SaveOutput{Saved: res != nil, Version: d.Version()}
	if res != nil {
		last, _ := res.ClientIndex.LastPart()
		out.Part = last.ID
		out.URL = res.URL
	}
	return newFormatter(opts, cmd.OutOrStdout()).Render(out, func(w io.Writer) error {
		if !out.Saved {
			_, err := fmt.Fprintln(w, "No changes")
			return err
		}
		fmt.Fprintf(w, "Saved version %d to part %d\n", out.Version, out.Part)
		if out.URL != "" {
			fmt.Fprintf(w, "Master index: %s\n", out.URL)
		}
		return nil
	})
}

// RestoreOptions holds flags for the restore and import commands.
type RestoreOptions struct {
	*RootOptions
	ClientID string
	Force    bool
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore <document-id>",
		Short: "Rebuild the working document from the store",
		Long: `Rebuild a document from its saved history in the configured store. Without
--client the client that saved most recently is restored, and the working
document continues as that client.

Examples:
  minisync restore groceries
  minisync restore groceries --client laptop --force`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client whose history to restore")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace an existing working document")

	return cmd
}

func runRestore(opts *RestoreOptions, documentID string, cmd *cobra.Command) error {
	if err := checkOverwrite(opts.DocPath, opts.Force); err != nil {
		return err
	}
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportMetrics(opts.RootOptions, cmd)

	doc, err := e.syncer(kvFactory("")).CreateFromRemote(ctx, documentID, opts.ClientID)
	if err != nil {
		return WrapExitError(ExitFailure, "restore failed", err)
	}
	return adoptWorkDoc(opts.RootOptions, cmd, doc, "Restored")
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <master-index-url>",
		Short: "Start a working document from another user's master index",
		Long: `Import a document shared by another user. The working document gets a new
client id and records the source as a peer, so "merge --peers" picks up
the source's later saves.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id of the new replica (default: generated)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace an existing working document")

	return cmd
}

func runImport(opts *RestoreOptions, url string, cmd *cobra.Command) error {
	if err := checkOverwrite(opts.DocPath, opts.Force); err != nil {
		return err
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = ids.New()
	}
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportMetrics(opts.RootOptions, cmd)

	doc, err := e.syncer(kvFactory(clientID)).CreateFromURL(ctx, url)
	if err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}
	return adoptWorkDoc(opts.RootOptions, cmd, doc, "Imported")
}

func adoptWorkDoc(opts *RootOptions, cmd *cobra.Command, doc remote.Document, verb string) error {
	d, err := asKV(doc)
	if err != nil {
		return WrapExitError(ExitFailure, "unexpected document", err)
	}
	if err := storeWorkDoc(opts.DocPath, d); err != nil {
		return WrapExitError(ExitCommandError, "failed to write working document", err)
	}
	summary := summarize(d, false)
	return newFormatter(opts, cmd.OutOrStdout()).Render(summary, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s document %s as client %s (version %d)\n",
			verb, summary.Document, summary.Client, summary.Version)
		return err
	})
}

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Peers bool
}

// SkipOutput is one client or peer a merge dropped.
type SkipOutput struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// MergeOutput is the JSON form of a merge.
type MergeOutput struct {
	Merged  []string      `json:"merged"`
	Skipped []SkipOutput  `json:"skipped"`
	Version index.Version `json:"version"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Apply what other clients or peers have saved",
		Long: `Apply changes saved by the document's other clients in the configured
store, or with --peers, by the other users the document was imported from.
Clients and peers that cannot be read are reported and skipped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Peers, "peers", false, "merge from peers instead of own clients")

	return cmd
}

func runMerge(opts *MergeOptions, cmd *cobra.Command) error {
	d, err := loadWorkDoc(opts.DocPath)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportMetrics(opts.RootOptions, cmd)

	s := e.syncer(kvFactory(""))
	var report *remote.MergeReport
	if opts.Peers {
		report, err = s.MergeFromRemotePeers(ctx, d)
	} else {
		report, err = s.MergeFromRemoteClients(ctx, d)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "merge failed", err)
	}
	// Peers learned during a peer merge live in the document, so the
	// working file is written even when nothing was applied.
	if err := storeWorkDoc(opts.DocPath, d); err != nil {
		return WrapExitError(ExitCommandError, "failed to write working document", err)
	}

	out := mergeOutput(report, d)
	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Render(out, func(w io.Writer) error {
		if len(out.Merged) == 0 {
			fmt.Fprintln(w, "Nothing to merge")
		}
		for _, id := range out.Merged {
			fmt.Fprintf(w, "Merged %s\n", id)
		}
		for _, sk := range out.Skipped {
			fmt.Fprintf(w, "Skipped %s %s: %s\n", sk.Kind, sk.ID, sk.Error)
		}
		_, err := fmt.Fprintf(w, "Version %d\n", out.Version)
		return err
	})
}

func mergeOutput(report *remote.MergeReport, d *kvdoc.Doc) MergeOutput {
	out := MergeOutput{
		Merged:  append([]string{}, report.Merged...),
		Skipped: make([]SkipOutput, 0, len(report.Skipped)),
		Version: d.Version(),
	}
	for _, sk := range report.Skipped {
		out.Skipped = append(out.Skipped, SkipOutput{Kind: string(sk.Kind), ID: sk.ID, Error: sk.Err.Error()})
	}
	return out
}
