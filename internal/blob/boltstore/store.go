// Package boltstore implements blob.RemoteStore on an embedded bbolt file.
//
// All files live in one bucket keyed by their '/'-joined location. URLs
// have the form bolt://<storeID>/<key>; the store id is persisted in a
// meta bucket on first open.
package boltstore

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/ids"
	"github.com/roach88/minisync/internal/layout"
)

// Scheme is the URL scheme of bbolt stores.
const Scheme = "bolt"

var (
	filesBucket = []byte("files")
	metaBucket  = []byte("meta")
	storeIDKey  = []byte("store_id")
)

// Every stored value starts with this byte, so empty files are
// distinguishable from missing ones.
const valueFormat byte = 1

// Option configures a Store.
type Option func(*Store)

// WithPublicURL makes PublishFile return <base>/<key> URLs.
func WithPublicURL(base string) Option {
	return func(s *Store) { s.loc.PublicBase = base }
}

// Store is a blob.RemoteStore backed by bbolt.
type Store struct {
	db  *bolt.DB
	loc blob.Locator
}

var _ blob.RemoteStore = (*Store)(nil)

// Open creates or opens the bbolt file at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt file %s", path)
	}

	var storeID string
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(filesBucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if v := meta.Get(storeIDKey); v != nil {
			storeID = string(v)
			return nil
		}
		storeID = ids.New()
		return meta.Put(storeIDKey, []byte(storeID))
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize buckets")
	}

	s := &Store{db: db, loc: blob.Locator{Scheme: Scheme, StoreID: storeID}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// ID returns the persisted store id.
func (s *Store) ID() string {
	return s.loc.StoreID
}

func (s *Store) PutFile(
	ctx context.Context, path []string, name string, contents []byte,
) (blob.FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return blob.FileHandle{}, err
	}
	h := blob.FileHandle{Path: slices.Clone(path), Name: name}
	key := h.Key()
	err := s.db.Update(func(tx *bolt.Tx) error {
		v := make([]byte, 0, len(contents)+1)
		v = append(v, valueFormat)
		v = append(v, contents...)
		return tx.Bucket(filesBucket).Put([]byte(key), v)
	})
	if err != nil {
		return blob.FileHandle{}, errors.Wrapf(err, "put %s", key)
	}
	h.URL = s.loc.URL(key)
	return h, nil
}

func (s *Store) GetFile(ctx context.Context, h blob.FileHandle) (*blob.FileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contents, err := s.get(h.Key())
	if err != nil || contents == nil {
		return nil, err
	}
	if h.URL == "" {
		h.URL = s.loc.URL(h.Key())
	}
	return &blob.FileData{FileHandle: h, Contents: contents}, nil
}

func (s *Store) ListFiles(ctx context.Context, path []string) ([]blob.FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(layout.Join(path, ""))
	if len(prefix) > 0 {
		prefix = append(prefix, '/')
	}

	var res []blob.FileHandle
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(filesBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			rest := k[len(prefix):]
			if bytes.IndexByte(rest, '/') >= 0 {
				continue
			}
			h := blob.FileHandle{Path: slices.Clone(path), Name: string(rest)}
			h.URL = s.loc.URL(h.Key())
			res = append(res, h)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	return res, nil
}

func (s *Store) PublishFile(ctx context.Context, h blob.FileHandle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	contents, err := s.get(h.Key())
	if err != nil {
		return "", err
	}
	if contents == nil {
		return "", blob.NotFound(h.Key())
	}
	return s.loc.PublicURL(h.Key()), nil
}

func (s *Store) CanDownloadURL(_ context.Context, url string) (bool, error) {
	_, ok := s.loc.Key(url)
	return ok, nil
}

func (s *Store) DownloadURL(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := s.loc.Key(url)
	if !ok {
		return nil, blob.NotFound(url)
	}
	contents, err := s.get(key)
	if err != nil {
		return nil, err
	}
	if contents == nil {
		return nil, blob.NotFound(url)
	}
	return contents, nil
}

// get copies the value out of the transaction; nil means absent.
func (s *Store) get(key string) ([]byte, error) {
	var contents []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(filesBucket).Get([]byte(key))
		if len(v) == 0 {
			return nil
		}
		if v[0] != valueFormat {
			return errors.Newf("unknown value format %d", v[0])
		}
		contents = append([]byte{}, v[1:]...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return contents, nil
}
