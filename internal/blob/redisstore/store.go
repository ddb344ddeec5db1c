// Package redisstore implements blob.RemoteStore on Redis, so several
// machines can share one store over the network.
//
// Layout under the configured namespace:
//
//	<ns>:meta:store_id   store id used in URLs
//	<ns>:file:<key>      file contents
//	<ns>:dir:<dir>       set of file names directly under dir
package redisstore

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/ids"
	"github.com/roach88/minisync/internal/layout"
)

// Scheme is the URL scheme of Redis stores.
const Scheme = "redis"

// DefaultNamespace prefixes every key when no namespace is configured.
const DefaultNamespace = "minisync"

// Options configures a Store.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string

	// PublicBase makes PublishFile return <PublicBase>/<key> URLs.
	PublicBase string
}

// Store is a blob.RemoteStore backed by Redis.
type Store struct {
	rdb *redis.Client
	ns  string
	loc blob.Locator
}

var _ blob.RemoteStore = (*Store)(nil)

// Open connects to Redis and loads (or creates) the store id.
func Open(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", opts.Addr)
	}

	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	s := &Store{rdb: rdb, ns: ns}

	idKey := s.metaKey("store_id")
	if err := rdb.SetNX(ctx, idKey, ids.New(), 0).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "init store id")
	}
	storeID, err := rdb.Get(ctx, idKey).Result()
	if err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "read store id")
	}
	s.loc = blob.Locator{Scheme: Scheme, StoreID: storeID, PublicBase: opts.PublicBase}
	return s, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// ID returns the persisted store id.
func (s *Store) ID() string {
	return s.loc.StoreID
}

func (s *Store) metaKey(name string) string { return s.ns + ":meta:" + name }
func (s *Store) fileKey(key string) string  { return s.ns + ":file:" + key }
func (s *Store) dirKey(dir string) string   { return s.ns + ":dir:" + dir }

func (s *Store) PutFile(
	ctx context.Context, path []string, name string, contents []byte,
) (blob.FileHandle, error) {
	h := blob.FileHandle{Path: slices.Clone(path), Name: name}
	key := h.Key()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.fileKey(key), contents, 0)
		pipe.SAdd(ctx, s.dirKey(layout.Join(path, "")), name)
		return nil
	})
	if err != nil {
		return blob.FileHandle{}, errors.Wrapf(err, "put %s", key)
	}
	h.URL = s.loc.URL(key)
	return h, nil
}

func (s *Store) GetFile(ctx context.Context, h blob.FileHandle) (*blob.FileData, error) {
	contents, err := s.get(ctx, h.Key())
	if err != nil || contents == nil {
		return nil, err
	}
	if h.URL == "" {
		h.URL = s.loc.URL(h.Key())
	}
	return &blob.FileData{FileHandle: h, Contents: contents}, nil
}

func (s *Store) ListFiles(ctx context.Context, path []string) ([]blob.FileHandle, error) {
	names, err := s.rdb.SMembers(ctx, s.dirKey(layout.Join(path, ""))).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	slices.Sort(names)
	res := make([]blob.FileHandle, 0, len(names))
	for _, name := range names {
		h := blob.FileHandle{Path: slices.Clone(path), Name: name}
		h.URL = s.loc.URL(h.Key())
		res = append(res, h)
	}
	return res, nil
}

func (s *Store) PublishFile(ctx context.Context, h blob.FileHandle) (string, error) {
	n, err := s.rdb.Exists(ctx, s.fileKey(h.Key())).Result()
	if err != nil {
		return "", errors.Wrapf(err, "publish %s", h.Key())
	}
	if n == 0 {
		return "", blob.NotFound(h.Key())
	}
	return s.loc.PublicURL(h.Key()), nil
}

func (s *Store) CanDownloadURL(_ context.Context, url string) (bool, error) {
	_, ok := s.loc.Key(url)
	return ok, nil
}

func (s *Store) DownloadURL(ctx context.Context, url string) ([]byte, error) {
	key, ok := s.loc.Key(url)
	if !ok {
		return nil, blob.NotFound(url)
	}
	contents, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if contents == nil {
		return nil, blob.NotFound(url)
	}
	return contents, nil
}

// get returns nil contents when the key does not exist.
func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	contents, err := s.rdb.Get(ctx, s.fileKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	if contents == nil {
		contents = []byte{}
	}
	return contents, nil
}
