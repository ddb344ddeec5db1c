package remote

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/layout"
)

// GetRemoteFile downloads url from the first store, in response order,
// that claims it can resolve it. A store whose check fails counts as
// unable. Returns a SyncError with ErrCodeNoCompatibleStore when no store
// can.
func GetRemoteFile(ctx context.Context, url string, stores []blob.Downloader) ([]byte, error) {
	store, err := pickStore(ctx, url, stores)
	if err != nil {
		return nil, err
	}
	data, err := store.DownloadURL(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", url)
	}
	return data, nil
}

func pickStore(ctx context.Context, url string, stores []blob.Downloader) (blob.Downloader, error) {
	if len(stores) == 0 {
		return nil, newNoCompatibleStoreError(url)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so late answers never block once a winner is chosen.
	answers := make(chan int, len(stores))
	for i, st := range stores {
		go func() {
			ok, err := st.CanDownloadURL(ctx, url)
			if err != nil || !ok {
				answers <- -1
				return
			}
			answers <- i
		}()
	}
	for range stores {
		select {
		case i := <-answers:
			if i >= 0 {
				return stores[i], nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, newNoCompatibleStoreError(url)
}

// outcome is the result of one fan-out branch: a value, or the reason the
// branch was dropped.
type outcome[T any] struct {
	val T
	err error
}

// fanOut runs fn for every item concurrently, at most limit at a time.
// Branch failures are recorded in their outcome and never cancel
// siblings. Outcomes are in item order.
func fanOut[In, Out any](
	ctx context.Context, limit int, items []In, fn func(context.Context, In) (Out, error),
) []outcome[Out] {
	res := make([]outcome[Out], len(items))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			val, err := fn(ctx, item)
			res[i] = outcome[Out]{val: val, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return res
}

// fetchURL downloads url from the primary store when it claims the URL,
// and through the configured stores otherwise.
func (s *Syncer) fetchURL(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	var err error
	if d, ok := s.primaryDownloader(ctx, url); ok {
		data, err = d.DownloadURL(ctx, url)
		err = errors.Wrapf(err, "download %s", url)
	} else {
		data, err = GetRemoteFile(ctx, url, s.cfg.Stores)
	}
	if err != nil {
		return nil, err
	}
	s.cfg.Metrics.bytesFetched(len(data))
	return data, nil
}

// readFile reads a file from the primary store; nil means absent.
func (s *Syncer) readFile(ctx context.Context, path []string, name string) ([]byte, error) {
	fd, err := s.store.GetFile(ctx, blob.FileHandle{Path: path, Name: name})
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", layout.Join(path, name))
	}
	if fd == nil {
		return nil, nil
	}
	return fd.Contents, nil
}

// readMaster returns the document's master index from the primary store,
// or nil if the document was never saved.
func (s *Syncer) readMaster(ctx context.Context, documentID string) (*index.MasterIndex, error) {
	path := layout.DocumentPath(documentID)
	data, err := s.readFile(ctx, path, layout.MasterIndexFile)
	if err != nil {
		return nil, err
	}
	return index.DecodeMaster(data, layout.Join(path, layout.MasterIndexFile))
}

// readClientIndex returns a client index from the primary store, or nil
// if the client never saved.
func (s *Syncer) readClientIndex(ctx context.Context, documentID, clientID string) (*index.ClientIndex, error) {
	path := layout.ClientPath(documentID, clientID)
	data, err := s.readFile(ctx, path, layout.ClientIndexFile)
	if err != nil {
		return nil, err
	}
	return index.DecodeClient(data, layout.Join(path, layout.ClientIndexFile))
}

// fetchPart downloads a part by URL, falling back to the primary store
// layout for parts that were written without one.
func (s *Syncer) fetchPart(ctx context.Context, documentID, clientID string, p index.Part) ([]byte, error) {
	if p.URL != "" {
		return s.fetchURL(ctx, p.URL)
	}
	data, err := s.readFile(ctx, layout.ClientPath(documentID, clientID), layout.PartFile(p.ID))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, blob.NotFound(layout.Join(layout.ClientPath(documentID, clientID), layout.PartFile(p.ID)))
	}
	return data, nil
}
