package blob

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/minisync/internal/ids"
	"github.com/roach88/minisync/internal/layout"
)

// MemScheme is the URL scheme of in-memory stores.
const MemScheme = "mem"

// InMemOption configures an in-memory store.
type InMemOption func(*inMemStore)

// WithStoreID fixes the store id used in URLs. By default a fresh UUIDv7
// is used, so two in-memory stores never resolve each other's URLs.
func WithStoreID(id string) InMemOption {
	return func(s *inMemStore) { s.loc.StoreID = id }
}

// WithPublicURL makes PublishFile return <base>/<key> URLs.
func WithPublicURL(base string) InMemOption {
	return func(s *inMemStore) { s.loc.PublicBase = base }
}

// WithDeferredPublish makes PutFile return handles without a URL; the URL
// is only available through PublishFile.
func WithDeferredPublish() InMemOption {
	return func(s *inMemStore) { s.deferred = true }
}

// NewInMem returns an in-memory RemoteStore (for testing and for the
// scenario harness).
func NewInMem(opts ...InMemOption) RemoteStore {
	store := &inMemStore{loc: Locator{Scheme: MemScheme}}
	for _, opt := range opts {
		opt(store)
	}
	if store.loc.StoreID == "" {
		store.loc.StoreID = ids.New()
	}
	store.mu.objects = make(map[string][]byte)
	return store
}

type inMemStore struct {
	loc      Locator
	deferred bool

	mu struct {
		sync.Mutex
		objects map[string][]byte
	}
}

var _ RemoteStore = (*inMemStore)(nil)

func (s *inMemStore) PutFile(
	ctx context.Context, path []string, name string, contents []byte,
) (FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return FileHandle{}, err
	}
	h := FileHandle{Path: slices.Clone(path), Name: name}
	key := h.Key()

	s.mu.Lock()
	s.mu.objects[key] = slices.Clone(contents)
	s.mu.Unlock()

	if !s.deferred {
		h.URL = s.loc.URL(key)
	}
	return h, nil
}

func (s *inMemStore) GetFile(ctx context.Context, h FileHandle) (*FileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := s.get(h.Key())
	if !ok {
		return nil, nil
	}
	if h.URL == "" && !s.deferred {
		h.URL = s.loc.URL(h.Key())
	}
	return &FileData{FileHandle: h, Contents: data}, nil
}

func (s *inMemStore) ListFiles(ctx context.Context, path []string) ([]FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := layout.Join(path, "")
	if prefix != "" {
		prefix += "/"
	}

	s.mu.Lock()
	var names []string
	for key := range s.mu.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	s.mu.Unlock()

	slices.Sort(names)
	res := make([]FileHandle, 0, len(names))
	for _, name := range names {
		h := FileHandle{Path: slices.Clone(path), Name: name}
		if !s.deferred {
			h.URL = s.loc.URL(h.Key())
		}
		res = append(res, h)
	}
	return res, nil
}

func (s *inMemStore) PublishFile(ctx context.Context, h FileHandle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := h.Key()
	if _, ok := s.get(key); !ok {
		return "", NotFound(key)
	}
	return s.loc.PublicURL(key), nil
}

func (s *inMemStore) CanDownloadURL(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := s.loc.Key(url)
	return ok, nil
}

func (s *inMemStore) DownloadURL(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := s.loc.Key(url)
	if !ok {
		return nil, NotFound(url)
	}
	data, ok := s.get(key)
	if !ok {
		return nil, NotFound(url)
	}
	return data, nil
}

func (s *inMemStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.mu.objects[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(data), true
}
