package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/blob"
)

// ErrInjected is the default error returned by FaultyStore failures.
var ErrInjected = errors.New("injected store failure")

// FaultyStore wraps a RemoteStore, failing or corrupting selected reads
// and counting what is downloaded.
//
// Rules match by substring, so a rule on "client-C2/" affects every file
// of client C2.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FaultyStore struct {
	inner blob.RemoteStore

	mu          sync.Mutex
	failReads   map[string]error
	failURLs    map[string]error
	corruptURLs map[string][]byte
	canErr      error
	downloads   []string
	bytes       int
}

var _ blob.RemoteStore = (*FaultyStore)(nil)

// NewFaultyStore wraps inner with no faults configured.
func NewFaultyStore(inner blob.RemoteStore) *FaultyStore {
	return &FaultyStore{
		inner:       inner,
		failReads:   make(map[string]error),
		failURLs:    make(map[string]error),
		corruptURLs: make(map[string][]byte),
	}
}

// FailReads makes GetFile fail for keys containing substr. A nil err
// means ErrInjected.
func (f *FaultyStore) FailReads(substr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads[substr] = orInjected(err)
}

// FailDownloads makes DownloadURL fail for URLs containing substr.
func (f *FaultyStore) FailDownloads(substr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failURLs[substr] = orInjected(err)
}

// CorruptDownloads makes DownloadURL return data for URLs containing
// substr.
func (f *FaultyStore) CorruptDownloads(substr string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corruptURLs[substr] = data
}

// FailCanDownload makes CanDownloadURL return err for every URL.
func (f *FaultyStore) FailCanDownload(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canErr = orInjected(err)
}

// ClearFaults removes every fault rule.
func (f *FaultyStore) ClearFaults() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.failReads)
	clear(f.failURLs)
	clear(f.corruptURLs)
	f.canErr = nil
}

// Downloads returns the URLs passed to DownloadURL, in call order.
func (f *FaultyStore) Downloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

// BytesDownloaded returns the total size of successful downloads.
func (f *FaultyStore) BytesDownloaded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bytes
}

// ResetCounters clears download counters but keeps fault rules.
func (f *FaultyStore) ResetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = nil
	f.bytes = 0
}

func (f *FaultyStore) PutFile(
	ctx context.Context, path []string, name string, contents []byte,
) (blob.FileHandle, error) {
	return f.inner.PutFile(ctx, path, name, contents)
}

func (f *FaultyStore) GetFile(ctx context.Context, h blob.FileHandle) (*blob.FileData, error) {
	if err := f.match(f.failReads, h.Key()); err != nil {
		return nil, err
	}
	return f.inner.GetFile(ctx, h)
}

func (f *FaultyStore) ListFiles(ctx context.Context, path []string) ([]blob.FileHandle, error) {
	return f.inner.ListFiles(ctx, path)
}

func (f *FaultyStore) PublishFile(ctx context.Context, h blob.FileHandle) (string, error) {
	return f.inner.PublishFile(ctx, h)
}

func (f *FaultyStore) CanDownloadURL(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	err := f.canErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.inner.CanDownloadURL(ctx, url)
}

func (f *FaultyStore) DownloadURL(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, url)
	f.mu.Unlock()

	if err := f.match(f.failURLs, url); err != nil {
		return nil, err
	}
	data, err := f.inner.DownloadURL(ctx, url)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for substr, corrupt := range f.corruptURLs {
		if strings.Contains(url, substr) {
			data = append([]byte(nil), corrupt...)
			break
		}
	}
	f.bytes += len(data)
	return data, nil
}

func (f *FaultyStore) match(rules map[string]error, s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for substr, err := range rules {
		if strings.Contains(s, substr) {
			return err
		}
	}
	return nil
}

func orInjected(err error) error {
	if err == nil {
		return ErrInjected
	}
	return err
}
