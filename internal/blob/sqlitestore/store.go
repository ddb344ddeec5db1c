// Package sqlitestore implements blob.RemoteStore on a single SQLite file.
//
// URLs have the form sqlite://<storeID>/<key>. The store id is generated
// on first open and persisted, so URLs published by a database stay
// resolvable after it is reopened.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/ids"
	"github.com/roach88/minisync/internal/layout"
)

// Scheme is the URL scheme of SQLite stores.
const Scheme = "sqlite"

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on files.updated_at
const currentSchemaVersion = 1

// Option configures a Store.
type Option func(*Store)

// WithPublicURL makes PublishFile return <base>/<key> URLs.
func WithPublicURL(base string) Option {
	return func(s *Store) { s.loc.PublicBase = base }
}

// Store is a blob.RemoteStore backed by SQLite.
type Store struct {
	db  *sql.DB
	loc blob.Locator
	now func() time.Time
}

var _ blob.RemoteStore = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to database")
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply pragmas")
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	storeID, err := loadStoreID(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		loc: blob.Locator{Scheme: Scheme, StoreID: storeID},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ID returns the persisted store id.
func (s *Store) ID() string {
	return s.loc.StoreID
}

func (s *Store) PutFile(
	ctx context.Context, path []string, name string, contents []byte,
) (blob.FileHandle, error) {
	dir := layout.Join(path, "")
	if contents == nil {
		contents = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (dir, name, contents, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (dir, name) DO UPDATE SET
			contents = excluded.contents,
			updated_at = excluded.updated_at
	`, dir, name, contents, s.now().UnixMilli())
	if err != nil {
		return blob.FileHandle{}, errors.Wrapf(err, "put %s", layout.Join(path, name))
	}
	h := blob.FileHandle{Path: append([]string(nil), path...), Name: name}
	h.URL = s.loc.URL(h.Key())
	return h, nil
}

func (s *Store) GetFile(ctx context.Context, h blob.FileHandle) (*blob.FileData, error) {
	contents, err := s.get(ctx, layout.Join(h.Path, ""), h.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", h.Key())
	}
	if contents == nil {
		return nil, nil
	}
	if h.URL == "" {
		h.URL = s.loc.URL(h.Key())
	}
	return &blob.FileData{FileHandle: h, Contents: contents}, nil
}

func (s *Store) ListFiles(ctx context.Context, path []string) ([]blob.FileHandle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM files WHERE dir = ? ORDER BY name`, layout.Join(path, ""))
	if err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	defer rows.Close()

	var res []blob.FileHandle
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan file name")
		}
		h := blob.FileHandle{Path: append([]string(nil), path...), Name: name}
		h.URL = s.loc.URL(h.Key())
		res = append(res, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	return res, nil
}

func (s *Store) PublishFile(ctx context.Context, h blob.FileHandle) (string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM files WHERE dir = ? AND name = ?`, layout.Join(h.Path, ""), h.Name,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", blob.NotFound(h.Key())
	}
	if err != nil {
		return "", errors.Wrapf(err, "publish %s", h.Key())
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
	path, name := layout.Split(key)
	contents, err := s.get(ctx, layout.Join(path, ""), name)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", url)
	}
	if contents == nil {
		return nil, blob.NotFound(url)
	}
	return contents, nil
}

// get returns nil contents when the file does not exist.
func (s *Store) get(ctx context.Context, dir, name string) ([]byte, error) {
	var contents []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT contents FROM files WHERE dir = ? AND name = ?`, dir, name,
	).Scan(&contents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if contents == nil {
		contents = []byte{}
	}
	return contents, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "execute %q", pragma)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "execute schema")
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "get user_version")
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return errors.Wrap(err, "set user_version")
	}
	return nil
}

// migrateToV1 adds an index used when listing recently written files.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_files_updated_at ON files(updated_at)`)
	return errors.Wrap(err, "migrate to v1")
}

// loadStoreID reads the persisted store id, creating it on first open.
func loadStoreID(db *sql.DB) (string, error) {
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('store_id', ?)`, ids.New(),
	); err != nil {
		return "", errors.Wrap(err, "init store id")
	}
	var id string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'store_id'`).Scan(&id); err != nil {
		return "", errors.Wrap(err, "read store id")
	}
	return id, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return errors.Wrapf(err, "query %s", name)
	}
	if value != expected {
		return errors.Newf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
