package remote

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/layout"
)

// fetchedPart is a part descriptor with its downloaded contents.
type fetchedPart struct {
	part index.Part
	data []byte
}

// CreateFromRemote rebuilds a document from the primary store.
//
// With an empty forClientID the client that saved most recently is
// restored. Parts missing from the store are skipped; store errors fail
// the restore.
func (s *Syncer) CreateFromRemote(ctx context.Context, documentID, forClientID string) (Document, error) {
	prog := newProgress(s.cfg.Progress)
	prog.add(2)

	master, err := s.readMaster(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if master == nil {
		return nil, newNoMasterIndexError(documentID)
	}
	prog.step()

	clientID := forClientID
	if clientID == "" {
		clientID = master.LatestUpdate.ClientID
	}
	if clientID == "" {
		return nil, newUnknownClientError(documentID, clientID)
	}
	ci, err := s.readClientIndex(ctx, documentID, clientID)
	if err != nil {
		return nil, err
	}
	if ci == nil {
		return nil, newNoClientIndexError(documentID, clientID)
	}
	prog.step()

	prog.add(len(ci.Parts))
	fetched := make([]*fetchedPart, len(ci.Parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	path := layout.ClientPath(documentID, clientID)
	for i, p := range ci.Parts {
		g.Go(func() error {
			defer prog.step()
			data, err := s.readFile(gctx, path, layout.PartFile(p.ID))
			if err != nil {
				return err
			}
			if data != nil {
				fetched[i] = &fetchedPart{part: p, data: data}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "restore document %s", documentID)
	}

	doc, err := s.replay(documentID, clientID, fetched)
	if err != nil {
		return nil, err
	}
	s.cfg.Logger.Info("restored", "document", documentID, "client", clientID, "version", doc.Version())
	prog.finish()
	return doc, nil
}

// CreateFromURL rebuilds a document from another user's master index.
//
// The master index and the client index it names as latest must be
// readable; unreadable parts are skipped. The source is recorded as a peer
// of the new document.
func (s *Syncer) CreateFromURL(ctx context.Context, url string) (Document, error) {
	prog := newProgress(s.cfg.Progress)
	prog.add(2)

	data, err := s.fetchURL(ctx, url)
	if err != nil {
		return nil, err
	}
	master, err := index.DecodeMaster(data, url)
	if err != nil {
		return nil, err
	}
	prog.step()

	latest := master.LatestUpdate
	ref, ok := master.Clients[latest.ClientID]
	if !ok {
		return nil, &SyncError{
			Code:     ErrCodeUnknownClient,
			Message:  "latest client not listed in master index",
			ClientID: latest.ClientID,
			URL:      url,
		}
	}
	data, err = s.fetchURL(ctx, ref.URL)
	if err != nil {
		return nil, err
	}
	ci, err := index.DecodeClient(data, ref.URL)
	if err != nil {
		return nil, err
	}
	prog.step()

	prog.add(len(ci.Parts))
	outcomes := fanOut(ctx, s.cfg.MaxConcurrency, ci.Parts,
		func(ctx context.Context, p index.Part) (*fetchedPart, error) {
			defer prog.step()
			data, err := s.fetchURL(ctx, p.URL)
			if err != nil {
				return nil, err
			}
			return &fetchedPart{part: p, data: data}, nil
		})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fetched := make([]*fetchedPart, 0, len(outcomes))
	for i, o := range outcomes {
		if o.err != nil {
			s.cfg.Logger.Debug("part unavailable", "url", ci.Parts[i].URL, "error", o.err)
			continue
		}
		fetched = append(fetched, o.val)
	}

	doc, err := s.replay("", ci.ClientID, fetched)
	if err != nil {
		return nil, err
	}
	self := master.URL
	if self == "" {
		self = url
	}
	doc.AddPeer(latest.ClientID, index.Ref{URL: self, LastReceived: latest.Version, Label: master.Label})
	s.cfg.Logger.Info("imported", "document", doc.ID(), "url", url, "version", doc.Version())
	prog.finish()
	return doc, nil
}

// replay bootstraps a document from the first usable part and applies the
// rest in ascending id order. Nil entries are parts that were not found.
func (s *Syncer) replay(documentID, clientID string, fetched []*fetchedPart) (Document, error) {
	if s.cfg.Factory == nil {
		return nil, errors.New("remote: no document factory configured")
	}
	parts := slices.DeleteFunc(slices.Clone(fetched), func(p *fetchedPart) bool { return p == nil })
	if len(parts) == 0 {
		return nil, newNoUsablePartsError(documentID, clientID)
	}
	slices.SortFunc(parts, func(a, b *fetchedPart) int { return a.part.ID - b.part.ID })

	doc, err := s.cfg.Factory(parts[0].data)
	if err != nil {
		return nil, errors.Wrapf(err, "bootstrap from part %d", parts[0].part.ID)
	}
	s.cfg.Metrics.partApplied()
	for _, p := range parts[1:] {
		if err := doc.ApplyChanges(p.data); err != nil {
			return nil, errors.Wrapf(err, "apply part %d", p.part.ID)
		}
		s.cfg.Metrics.partApplied()
	}
	return doc, nil
}
