package remote

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/kvdoc"
	"github.com/roach88/minisync/internal/layout"
	"github.com/roach88/minisync/internal/testutil"
)

const testDocID = "d1"

// kvFactory builds kvdoc documents; an empty clientID resumes as the
// client that wrote the first part.
func kvFactory(clientID string) Factory {
	return func(changes []byte) (Document, error) {
		d, err := kvdoc.Load(changes, clientID)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func newTestSyncer(t *testing.T, store blob.Store, mutate ...func(*Config)) *Syncer {
	t.Helper()
	cfg := Config{
		Factory: kvFactory(""),
		Now:     testutil.NewDeterministicClock().Now,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(store, cfg)
}

func withPartSizeLimit(n int64) func(*Config) {
	return func(c *Config) { c.PartSizeLimit = n }
}

func withStores(stores ...blob.Downloader) func(*Config) {
	return func(c *Config) { c.Stores = stores }
}

func withFactory(f Factory) func(*Config) {
	return func(c *Config) { c.Factory = f }
}

// editAndSave applies edits as key=value pairs (an empty value deletes)
// and saves.
func editAndSave(t *testing.T, s *Syncer, doc *kvdoc.Doc, kv ...string) *SaveResult {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			doc.Delete(kv[i])
		} else {
			doc.Set(kv[i], kv[i+1])
		}
	}
	res, err := s.SaveRemote(context.Background(), doc)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func readMasterFrom(t *testing.T, store blob.Store, docID string) *index.MasterIndex {
	t.Helper()
	fd, err := store.GetFile(context.Background(),
		blob.FileHandle{Path: layout.DocumentPath(docID), Name: layout.MasterIndexFile})
	require.NoError(t, err)
	require.NotNil(t, fd, "master index missing")
	m, err := index.DecodeMaster(fd.Contents, "test")
	require.NoError(t, err)
	return m
}

func readClientFrom(t *testing.T, store blob.Store, docID, clientID string) *index.ClientIndex {
	t.Helper()
	fd, err := store.GetFile(context.Background(),
		blob.FileHandle{Path: layout.ClientPath(docID, clientID), Name: layout.ClientIndexFile})
	require.NoError(t, err)
	require.NotNil(t, fd, "client index missing")
	ci, err := index.DecodeClient(fd.Contents, "test")
	require.NoError(t, err)
	return ci
}

func putRaw(t *testing.T, store blob.Store, path []string, name, contents string) {
	t.Helper()
	_, err := store.PutFile(context.Background(), path, name, []byte(contents))
	require.NoError(t, err)
}

func asKV(t *testing.T, doc Document) *kvdoc.Doc {
	t.Helper()
	d, ok := doc.(*kvdoc.Doc)
	require.True(t, ok, "unexpected document type %T", doc)
	return d
}

func skippedIDs(r *MergeReport) []string {
	var ids []string
	for _, s := range r.Skipped {
		ids = append(ids, s.ID)
	}
	return ids
}
