// Package blob defines the file-oriented storage contract consumed by the
// remote synchronization layer, plus an in-memory implementation.
//
// Stores know nothing about documents or merging. They store and return
// named byte blobs under paths, and remote-capable stores can additionally
// publish a file as a URL and resolve URLs back to contents.
package blob

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/layout"
)

// ErrNotFound is returned by DownloadURL when the URL resolves to nothing.
// GetFile reports absence as a nil result instead.
var ErrNotFound = errors.New("blob: not found")

// FileHandle names a file in a store.
type FileHandle struct {
	Path []string
	Name string

	// URL is set once the store knows a durable URL for the file. Some
	// stores only reveal it through PublishFile.
	URL string
}

// Key returns the '/'-joined location of the file.
func (h FileHandle) Key() string {
	return layout.Join(h.Path, h.Name)
}

// FileData is a file handle together with its contents.
type FileData struct {
	FileHandle
	Contents []byte
}

// Store is the minimal path/blob contract.
//
// PutFile overwrites. GetFile returns (nil, nil) when the file does not
// exist; errors are reserved for I/O failures.
type Store interface {
	PutFile(ctx context.Context, path []string, name string, contents []byte) (FileHandle, error)
	GetFile(ctx context.Context, h FileHandle) (*FileData, error)
	ListFiles(ctx context.Context, path []string) ([]FileHandle, error)
}

// Publisher produces a shareable URL for a stored file.
type Publisher interface {
	PublishFile(ctx context.Context, h FileHandle) (string, error)
}

// Downloader resolves URLs produced by some Publisher.
//
// CanDownloadURL reports whether this downloader is able to resolve the
// URL at all, not whether the file exists. DownloadURL returns an error
// matching ErrNotFound when it does not.
type Downloader interface {
	CanDownloadURL(ctx context.Context, url string) (bool, error)
	DownloadURL(ctx context.Context, url string) ([]byte, error)
}

// RemoteStore is a store that can publish and resolve URLs.
type RemoteStore interface {
	Store
	Publisher
	Downloader
}

// NotFound wraps ErrNotFound with the missing location.
func NotFound(location string) error {
	return errors.Wrapf(ErrNotFound, "%s", location)
}

// IsNotFound returns true if err matches ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
