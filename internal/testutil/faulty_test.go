package testutil

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minisync/internal/blob"
)

func TestFaultyStore_PassThrough(t *testing.T) {
	ctx := context.Background()
	f := NewFaultyStore(blob.NewInMem())

	h, err := f.PutFile(ctx, []string{"a"}, "b", []byte("hello"))
	require.NoError(t, err)
	data, err := f.DownloadURL(ctx, h.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, []string{h.URL}, f.Downloads())
	assert.Equal(t, 5, f.BytesDownloaded())

	f.ResetCounters()
	assert.Empty(t, f.Downloads())
	assert.Zero(t, f.BytesDownloaded())
}

func TestFaultyStore_Faults(t *testing.T) {
	ctx := context.Background()
	f := NewFaultyStore(blob.NewInMem())
	h, err := f.PutFile(ctx, []string{"client-C2"}, "part", []byte("{}"))
	require.NoError(t, err)

	f.FailReads("client-C2/", nil)
	_, err = f.GetFile(ctx, h)
	assert.True(t, errors.Is(err, ErrInjected))

	custom := errors.New("timeout")
	f.FailDownloads("client-C2/", custom)
	_, err = f.DownloadURL(ctx, h.URL)
	assert.True(t, errors.Is(err, custom))
	assert.Zero(t, f.BytesDownloaded())
}

func TestFaultyStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	f := NewFaultyStore(blob.NewInMem())
	h, err := f.PutFile(ctx, []string{"x"}, "part", []byte(`{"ok":true}`))
	require.NoError(t, err)

	f.CorruptDownloads("/part", []byte("garbage"))
	data, err := f.DownloadURL(ctx, h.URL)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data))
}

func TestFaultyStore_FailCanDownload(t *testing.T) {
	f := NewFaultyStore(blob.NewInMem())
	f.FailCanDownload(nil)
	ok, err := f.CanDownloadURL(context.Background(), "mem://x/y")
	assert.False(t, ok)
	assert.Error(t, err)
}
