package remote

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/layout"
)

// saveSteps is the number of progress milestones of a save: reading the
// client index, writing the part, the client index, the master index,
// and republishing the master index with its own URL.
const saveSteps = 5

// SaveResult is the client index written by a save, together with the
// URL of the document's master index.
type SaveResult struct {
	ClientIndex *index.ClientIndex
	URL         string
}

// SaveRemote appends the document's unsaved changes to its client's part
// chain and updates the client and master indexes.
//
// Returns (nil, nil) when the document has not changed since the last
// save. Writes happen in order part, client index, master index; a failure
// part way leaves the earlier writes in place for the next save to build
// on.
func (s *Syncer) SaveRemote(ctx context.Context, doc Document) (*SaveResult, error) {
	docID, clientID := doc.ID(), doc.ClientID()
	logger := s.cfg.Logger.With("document", docID, "client", clientID)
	prog := newProgress(s.cfg.Progress)
	prog.add(saveSteps)

	ci, err := s.readClientIndex(ctx, docID, clientID)
	if err != nil {
		return nil, err
	}
	if ci == nil {
		ci = index.NewClientIndex(clientID)
	}
	prog.step()

	part, known := nextPart(ci, s.cfg.PartSizeLimit)
	version := doc.Version()
	if known && version <= part.ToVersion {
		logger.Debug("save skipped, no new changes", "version", version, "part", part.ID)
		prog.finish()
		return nil, nil
	}

	changes, err := doc.ChangesSince(part.FromVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "serialize changes of document %s", docID)
	}
	clientPath := layout.ClientPath(docID, clientID)
	h, err := s.store.PutFile(ctx, clientPath, layout.PartFile(part.ID), changes)
	if err != nil {
		return nil, errors.Wrapf(err, "write part %d", part.ID)
	}
	if part.URL, err = s.publish(ctx, h); err != nil {
		return nil, err
	}
	part.Size = int64(len(changes))
	part.ToVersion = version
	ci.PutPart(part)
	s.cfg.Metrics.partWritten()
	prog.step()

	ci.Latest = version
	ci.Updated = s.cfg.Now().UnixMilli()
	if s.cfg.ClientName != "" {
		ci.ClientName = s.cfg.ClientName
	}
	ciURL, err := s.putIndex(ctx, clientPath, layout.ClientIndexFile, ci.Encode)
	if err != nil {
		return nil, err
	}
	prog.step()

	master, err := s.readMaster(ctx, docID)
	if err != nil {
		return nil, err
	}
	if master == nil {
		master = index.NewMasterIndex()
	}
	master.Clients[clientID] = index.Ref{URL: ciURL, LastReceived: version, Label: ci.ClientName}
	master.LatestUpdate = index.LatestUpdate{ClientID: clientID, Updated: ci.Updated, Version: version}
	master.Peers = doc.Peers()
	if master.Peers == nil {
		master.Peers = make(map[string]index.Ref)
	}
	if s.cfg.Label != "" {
		master.Label = s.cfg.Label
	}

	docPath := layout.DocumentPath(docID)
	url, err := s.putIndex(ctx, docPath, layout.MasterIndexFile, master.Encode)
	if err != nil {
		return nil, err
	}
	prog.step()

	// The master index embeds its own URL, which some stores only reveal
	// after the first write.
	if url != "" && url != master.URL {
		master.URL = url
		if _, err := s.putIndex(ctx, docPath, layout.MasterIndexFile, master.Encode); err != nil {
			return nil, err
		}
	}
	prog.step()

	logger.Info("saved", "version", version, "part", part.ID, "size", part.Size)
	prog.finish()
	return &SaveResult{ClientIndex: ci, URL: master.URL}, nil
}

// nextPart picks the part to write. known is false only for the very
// first part of a client.
func nextPart(ci *index.ClientIndex, limit int64) (part index.Part, known bool) {
	last, ok := ci.LastPart()
	if !ok {
		return index.Part{ID: 0}, false
	}
	if last.Size < limit {
		return last, true
	}
	return index.Part{
		ID:          last.ID + 1,
		FromVersion: index.VersionPtr(last.ToVersion),
		ToVersion:   last.ToVersion,
	}, true
}

// putIndex encodes and writes an index file, returning its URL.
func (s *Syncer) putIndex(
	ctx context.Context, path []string, name string, encode func() ([]byte, error),
) (string, error) {
	data, err := encode()
	if err != nil {
		return "", errors.Wrapf(err, "encode %s", name)
	}
	h, err := s.store.PutFile(ctx, path, name, data)
	if err != nil {
		return "", errors.Wrapf(err, "write %s", layout.Join(path, name))
	}
	return s.publish(ctx, h)
}

// publish returns the shareable URL of a written file: the published URL
// when the store can publish, the handle's URL otherwise.
func (s *Syncer) publish(ctx context.Context, h blob.FileHandle) (string, error) {
	p, ok := s.store.(blob.Publisher)
	if !ok {
		return h.URL, nil
	}
	url, err := p.PublishFile(ctx, h)
	if err != nil {
		return "", errors.Wrapf(err, "publish %s", h.Key())
	}
	return url, nil
}
