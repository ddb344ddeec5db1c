package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/minisync/internal/blob"
)

// DefaultPartSizeLimit is the size at which a part stops growing.
const DefaultPartSizeLimit = 1 << 20

// DefaultMaxConcurrency bounds parallel store requests per fan-out.
const DefaultMaxConcurrency = 8

// Config holds Syncer options. The zero value is usable except for
// operations that build documents, which need Factory.
type Config struct {
	// PartSizeLimit is a soft bound: a part is reused while smaller than
	// this, so a single save may push it past the limit.
	PartSizeLimit int64

	// ClientName and Label are written into the indexes when non-empty.
	ClientName string
	Label      string

	// Stores resolve URLs of other clients and peers. A URL the primary
	// store can resolve never reaches them.
	Stores []blob.Downloader

	Factory Factory

	// Progress, if set, receives a non-decreasing completion value in
	// [0, 1] during each operation. It is called synchronously and must
	// not block.
	Progress func(float64)

	MaxConcurrency int
	Logger         *slog.Logger
	Now            func() time.Time
	Metrics        *Metrics
}

func (c Config) withDefaults() Config {
	if c.PartSizeLimit <= 0 {
		c.PartSizeLimit = DefaultPartSizeLimit
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Syncer runs the sync protocol for documents kept in one primary store.
//
// Thread-safety: Syncer holds no mutable state and is safe for concurrent
// use; concurrent operations on the same document race on its indexes.
type Syncer struct {
	store blob.Store
	cfg   Config
}

// New returns a Syncer writing to store.
func New(store blob.Store, cfg Config) *Syncer {
	return &Syncer{store: store, cfg: cfg.withDefaults()}
}

// primaryDownloader returns the primary store when it can resolve url.
func (s *Syncer) primaryDownloader(ctx context.Context, url string) (blob.Downloader, bool) {
	d, ok := s.store.(blob.Downloader)
	if !ok {
		return nil, false
	}
	can, err := d.CanDownloadURL(ctx, url)
	return d, err == nil && can
}
