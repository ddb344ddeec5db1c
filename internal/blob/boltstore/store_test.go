package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/blob/blobtest"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blob.RemoteStore { return createTestStore(t) })
}

func TestOpen_StoreIDPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.bolt")

	s1, err := Open(path)
	require.NoError(t, err)
	h, err := s1.PutFile(ctx, []string{"a"}, "b.json", []byte(`{}`))
	require.NoError(t, err)
	id := s1.ID()
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, id, s2.ID())
	data, err := s2.DownloadURL(ctx, h.URL)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestStore_EmptyContents(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	h, err := s.PutFile(ctx, []string{"a"}, "empty", nil)
	require.NoError(t, err)

	fd, err := s.GetFile(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, fd)
	assert.Empty(t, fd.Contents)
}

func TestStore_ListSkipsSiblingPrefixes(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.PutFile(ctx, []string{"doc"}, "a", []byte("1"))
	require.NoError(t, err)
	_, err = s.PutFile(ctx, []string{"doc2"}, "b", []byte("2"))
	require.NoError(t, err)

	hs, err := s.ListFiles(ctx, []string{"doc"})
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "a", hs[0].Name)
}
