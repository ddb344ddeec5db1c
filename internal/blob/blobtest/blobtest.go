// Package blobtest holds behavior checks shared by every RemoteStore
// implementation.
package blobtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/layout"
)

// Opener returns a fresh, empty store. Two calls must yield stores whose
// URLs do not resolve against each other.
type Opener func(t *testing.T) blob.RemoteStore

// Run exercises the store contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		fd, err := s.GetFile(context.Background(), blob.FileHandle{Path: []string{"a"}, Name: "missing"})
		require.NoError(t, err)
		assert.Nil(t, fd)
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		path := layout.ClientPath("d1", "c1")

		h, err := s.PutFile(ctx, path, "f.json", []byte(`{"v":1}`))
		require.NoError(t, err)
		assert.Equal(t, path, h.Path)
		assert.Equal(t, "f.json", h.Name)

		_, err = s.PutFile(ctx, path, "f.json", []byte(`{"v":2}`))
		require.NoError(t, err)

		fd, err := s.GetFile(ctx, blob.FileHandle{Path: path, Name: "f.json"})
		require.NoError(t, err)
		require.NotNil(t, fd)
		assert.Equal(t, `{"v":2}`, string(fd.Contents))
	})

	t.Run("ListDirectChildren", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		doc := layout.DocumentPath("d1")
		client := layout.ClientPath("d1", "c1")

		_, err := s.PutFile(ctx, doc, layout.MasterIndexFile, []byte(`{}`))
		require.NoError(t, err)
		_, err = s.PutFile(ctx, client, layout.PartFile(1), []byte(`{}`))
		require.NoError(t, err)
		_, err = s.PutFile(ctx, client, layout.PartFile(0), []byte(`{}`))
		require.NoError(t, err)

		hs, err := s.ListFiles(ctx, client)
		require.NoError(t, err)
		require.Len(t, hs, 2)
		assert.Equal(t, layout.PartFile(0), hs[0].Name)
		assert.Equal(t, layout.PartFile(1), hs[1].Name)

		hs, err = s.ListFiles(ctx, doc)
		require.NoError(t, err)
		require.Len(t, hs, 1)
		assert.Equal(t, layout.MasterIndexFile, hs[0].Name)
	})

	t.Run("PublishDownload", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		h, err := s.PutFile(ctx, []string{"x"}, "y", []byte("payload"))
		require.NoError(t, err)

		url, err := s.PublishFile(ctx, h)
		require.NoError(t, err)
		require.NotEmpty(t, url)

		ok, err := s.CanDownloadURL(ctx, url)
		require.NoError(t, err)
		assert.True(t, ok)

		data, err := s.DownloadURL(ctx, url)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})

	t.Run("PublishMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.PublishFile(context.Background(), blob.FileHandle{Path: []string{"x"}, Name: "nope"})
		require.Error(t, err)
		assert.True(t, blob.IsNotFound(err))
	})

	t.Run("ForeignURL", func(t *testing.T) {
		ctx := context.Background()
		a, b := open(t), open(t)
		h, err := a.PutFile(ctx, []string{"x"}, "y", []byte("payload"))
		require.NoError(t, err)
		url, err := a.PublishFile(ctx, h)
		require.NoError(t, err)

		ok, err := b.CanDownloadURL(ctx, url)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = b.CanDownloadURL(ctx, "ftp://elsewhere/file")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DownloadDeleted", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		h, err := s.PutFile(ctx, []string{"x"}, "y", []byte("payload"))
		require.NoError(t, err)
		url, err := s.PublishFile(ctx, h)
		require.NoError(t, err)

		missing := url[:len(url)-1] + "z"
		ok, err := s.CanDownloadURL(ctx, missing)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = s.DownloadURL(ctx, missing)
		require.Error(t, err)
		assert.True(t, blob.IsNotFound(err))
	})
}
