package blob_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/blob/blobtest"
	"github.com/roach88/minisync/internal/ids"
)

func TestInMem_Contract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blob.RemoteStore { return blob.NewInMem() })
}

func TestInMem_DeferredPublishContract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blob.RemoteStore {
		return blob.NewInMem(blob.WithDeferredPublish())
	})
}

func TestInMem_PublicURLContract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blob.RemoteStore {
		return blob.NewInMem(blob.WithPublicURL("http://files.example/" + ids.New()))
	})
}

func TestInMem_PutFileURL(t *testing.T) {
	ctx := context.Background()
	s := blob.NewInMem(blob.WithStoreID("s1"))
	h, err := s.PutFile(ctx, []string{"a", "b"}, "c.json", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "mem://s1/a/b/c.json", h.URL)

	url, err := s.PublishFile(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, h.URL, url)
}

func TestInMem_DeferredPublish(t *testing.T) {
	ctx := context.Background()
	s := blob.NewInMem(blob.WithStoreID("s1"), blob.WithDeferredPublish())
	h, err := s.PutFile(ctx, []string{"a"}, "c.json", []byte("{}"))
	require.NoError(t, err)
	assert.Empty(t, h.URL)

	url, err := s.PublishFile(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "mem://s1/a/c.json", url)
}

func TestInMem_PublicURL(t *testing.T) {
	ctx := context.Background()
	s := blob.NewInMem(blob.WithStoreID("s1"), blob.WithPublicURL("http://host:8080/files/"))
	h, err := s.PutFile(ctx, []string{"a"}, "c.json", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "mem://s1/a/c.json", h.URL)

	url, err := s.PublishFile(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "http://host:8080/files/a/c.json", url)

	for _, u := range []string{h.URL, url} {
		data, err := s.DownloadURL(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(data))
	}
}

func TestInMem_ContentsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := blob.NewInMem()
	buf := []byte("abc")
	h, err := s.PutFile(ctx, nil, "f", buf)
	require.NoError(t, err)
	buf[0] = 'X'

	fd, err := s.GetFile(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(fd.Contents))

	fd.Contents[1] = 'Y'
	fd, err = s.GetFile(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(fd.Contents))
}

func TestInMem_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := blob.NewInMem()
	_, err := s.PutFile(ctx, nil, "f", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocator_Key(t *testing.T) {
	loc := blob.Locator{Scheme: "mem", StoreID: "s1", PublicBase: "http://h/files"}

	key, ok := loc.Key("mem://s1/a/b")
	require.True(t, ok)
	assert.Equal(t, "a/b", key)

	key, ok = loc.Key("http://h/files/a/b")
	require.True(t, ok)
	assert.Equal(t, "a/b", key)

	_, ok = loc.Key("mem://s2/a/b")
	assert.False(t, ok)
	_, ok = loc.Key("mem://s1/")
	assert.False(t, ok)
}

func TestWithLogging_PreservesCapabilities(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	wrapped := blob.WithLogging(blob.NewInMem(), logger)
	_, ok := wrapped.(blob.RemoteStore)
	assert.True(t, ok)

	plain := blob.WithLogging(storeOnly{blob.NewInMem()}, logger)
	_, ok = plain.(blob.Publisher)
	assert.False(t, ok)

	_, err := wrapped.PutFile(context.Background(), []string{"a"}, "b", []byte("xyz"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "put file")
	assert.Contains(t, buf.String(), "key=a/b")
}

func TestWithRemoteLogging_Contract(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	blobtest.Run(t, func(t *testing.T) blob.RemoteStore {
		return blob.WithRemoteLogging(blob.NewInMem(), logger)
	})
}

// storeOnly hides the remote capabilities of a store.
type storeOnly struct{ blob.Store }
