package blob

import (
	"context"
	"log/slog"
)

// WithLogging wraps the given store and emits debug logs for its
// operations. The result implements Publisher and Downloader exactly when
// the wrapped store does.
func WithLogging(wrapped Store, logger *slog.Logger) Store {
	if logger == nil {
		return wrapped
	}
	base := &loggingStore{logger: logger, wrapped: wrapped}
	if rs, ok := wrapped.(RemoteStore); ok {
		return &loggingRemoteStore{loggingStore: base, remote: rs}
	}
	return base
}

// WithRemoteLogging is WithLogging for stores already known to be remote.
func WithRemoteLogging(wrapped RemoteStore, logger *slog.Logger) RemoteStore {
	if logger == nil {
		return wrapped
	}
	return &loggingRemoteStore{
		loggingStore: &loggingStore{logger: logger, wrapped: wrapped},
		remote:       wrapped,
	}
}

type loggingStore struct {
	logger  *slog.Logger
	wrapped Store
}

var _ Store = (*loggingStore)(nil)

func (l *loggingStore) PutFile(
	ctx context.Context, path []string, name string, contents []byte,
) (FileHandle, error) {
	h, err := l.wrapped.PutFile(ctx, path, name, contents)
	l.logger.DebugContext(ctx, "put file",
		"key", FileHandle{Path: path, Name: name}.Key(),
		"bytes", len(contents),
		"error", err)
	return h, err
}

func (l *loggingStore) GetFile(ctx context.Context, h FileHandle) (*FileData, error) {
	fd, err := l.wrapped.GetFile(ctx, h)
	size := -1
	if fd != nil {
		size = len(fd.Contents)
	}
	l.logger.DebugContext(ctx, "get file", "key", h.Key(), "bytes", size, "error", err)
	return fd, err
}

func (l *loggingStore) ListFiles(ctx context.Context, path []string) ([]FileHandle, error) {
	hs, err := l.wrapped.ListFiles(ctx, path)
	l.logger.DebugContext(ctx, "list files",
		"path", FileHandle{Path: path}.Key(),
		"count", len(hs),
		"error", err)
	return hs, err
}

type loggingRemoteStore struct {
	*loggingStore
	remote RemoteStore
}

var _ RemoteStore = (*loggingRemoteStore)(nil)

func (l *loggingRemoteStore) PublishFile(ctx context.Context, h FileHandle) (string, error) {
	url, err := l.remote.PublishFile(ctx, h)
	l.logger.DebugContext(ctx, "publish file", "key", h.Key(), "url", url, "error", err)
	return url, err
}

func (l *loggingRemoteStore) CanDownloadURL(ctx context.Context, url string) (bool, error) {
	ok, err := l.remote.CanDownloadURL(ctx, url)
	l.logger.DebugContext(ctx, "can download", "url", url, "ok", ok, "error", err)
	return ok, err
}

func (l *loggingRemoteStore) DownloadURL(ctx context.Context, url string) ([]byte, error) {
	data, err := l.remote.DownloadURL(ctx, url)
	l.logger.DebugContext(ctx, "download", "url", url, "bytes", len(data), "error", err)
	return data, err
}
