package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/layout"
)

// NewIndexCommand creates the index command.
func NewIndexCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index <document-id>",
		Short: "Print a document's master index",
		Long: `Print the clients and peers listed in a document's master index.

Examples:
  minisync index groceries
  minisync index groceries --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(opts, args[0], cmd)
		},
	}
}

func runIndex(opts *RootOptions, documentID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	master, err := readMaster(ctx, e.store, documentID)
	if err != nil {
		return err
	}
	return newFormatter(opts, cmd.OutOrStdout()).Render(master, func(w io.Writer) error {
		if master.Label != "" {
			fmt.Fprintf(w, "Label:  %s\n", master.Label)
		}
		if master.URL != "" {
			fmt.Fprintf(w, "URL:    %s\n", master.URL)
		}
		fmt.Fprintf(w, "Latest: %s at version %d\n", master.LatestUpdate.ClientID, master.LatestUpdate.Version)
		writeTable(w, []string{"Kind", "ID", "Label", "Last Received", "URL"}, masterRows(master))
		return nil
	})
}

func readMaster(ctx context.Context, store blob.Store, documentID string) (*index.MasterIndex, error) {
	path := layout.DocumentPath(documentID)
	fd, err := store.GetFile(ctx, blob.FileHandle{Path: path, Name: layout.MasterIndexFile})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to read master index", err)
	}
	if fd == nil {
		return nil, NewExitError(ExitFailure, "document "+documentID+" has no master index")
	}
	master, err := index.DecodeMaster(fd.Contents, layout.Join(path, layout.MasterIndexFile))
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to decode master index", err)
	}
	return master, nil
}

func masterRows(m *index.MasterIndex) [][]string {
	var rows [][]string
	add := func(kind string, refs map[string]index.Ref) {
		for _, id := range slices.Sorted(maps.Keys(refs)) {
			ref := refs[id]
			rows = append(rows, []string{kind, id, ref.Label, strconv.FormatUint(uint64(ref.LastReceived), 10), ref.URL})
		}
	}
	add("client", m.Clients)
	add("peer", m.Peers)
	return rows
}

// FileOutput is one stored file of a document.
type FileOutput struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// NewFilesCommand creates the files command.
func NewFilesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "files <document-id>",
		Short:         "List the files a document occupies in the store",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFiles(opts, args[0], cmd)
		},
	}
}

func runFiles(opts *RootOptions, documentID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	master, err := readMaster(ctx, e.store, documentID)
	if err != nil {
		return err
	}
	paths := [][]string{layout.DocumentPath(documentID)}
	for _, id := range slices.Sorted(maps.Keys(master.Clients)) {
		paths = append(paths, layout.ClientPath(documentID, id))
	}

	var files []FileOutput
	for _, p := range paths {
		handles, err := e.store.ListFiles(ctx, p)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list files", err)
		}
		for _, h := range handles {
			files = append(files, FileOutput{Key: h.Key(), URL: h.URL})
		}
	}

	return newFormatter(opts, cmd.OutOrStdout()).Render(files, func(w io.Writer) error {
		rows := make([][]string, len(files))
		for i, f := range files {
			rows[i] = []string{f.Key, f.URL}
		}
		writeTable(w, []string{"Key", "URL"}, rows)
		return nil
	})
}
