package remote

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/index"
)

// SkipKind names what a merge dropped.
type SkipKind string

const (
	SkipClient SkipKind = "client"
	SkipPeer   SkipKind = "peer"
	SkipMaster SkipKind = "master"
)

// Skip records one client, peer or index a merge could not use.
type Skip struct {
	Kind SkipKind
	ID   string
	Err  error
}

// MergeReport lists the clients whose data was applied and everything
// that was dropped along the way.
type MergeReport struct {
	Merged  []string
	Skipped []Skip
}

func (r *MergeReport) skip(kind SkipKind, id string, err error) {
	r.Skipped = append(r.Skipped, Skip{Kind: kind, ID: id, Err: err})
}

func (s *Syncer) recordSkip(r *MergeReport, doc Document, kind SkipKind, id string, err error) {
	r.skip(kind, id, err)
	s.cfg.Metrics.skipped(kind)
	s.cfg.Logger.Warn("merge skipped "+string(kind),
		"document", doc.ID(), string(kind), id, "error", err)
}

// MergeFromRemoteClients applies what the document's other clients have
// saved to the primary store since the document last saw them.
//
// Unreadable clients are reported in the result; the returned error is
// non-nil only when ctx is done.
func (s *Syncer) MergeFromRemoteClients(ctx context.Context, doc Document) (*MergeReport, error) {
	report := &MergeReport{}
	prog := newProgress(s.cfg.Progress)
	prog.add(1)

	master, err := s.readMaster(ctx, doc.ID())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.recordSkip(report, doc, SkipMaster, doc.ID(), err)
		prog.finish()
		return report, nil
	}
	prog.step()
	if master == nil {
		prog.finish()
		return report, nil
	}

	var candidates []string
	for _, id := range slices.Sorted(maps.Keys(master.Clients)) {
		if id == doc.ClientID() {
			continue
		}
		state, ok := doc.ClientState(id)
		if !ok || master.Clients[id].LastReceived > state {
			candidates = append(candidates, id)
		}
	}

	prog.add(len(candidates))
	outcomes := fanOut(ctx, s.cfg.MaxConcurrency, candidates,
		func(ctx context.Context, id string) (*index.ClientIndex, error) {
			defer prog.step()
			ci, err := s.readClientIndex(ctx, doc.ID(), id)
			if err != nil {
				return nil, err
			}
			if ci == nil {
				return nil, newNoClientIndexError(doc.ID(), id)
			}
			return ci, nil
		})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var indexes []*index.ClientIndex
	for i, o := range outcomes {
		if o.err != nil {
			s.recordSkip(report, doc, SkipClient, candidates[i], o.err)
			continue
		}
		indexes = append(indexes, o.val)
	}

	if err := s.mergeClients(ctx, doc, indexes, report, prog); err != nil {
		return nil, err
	}
	prog.finish()
	return report, nil
}

// peerUpdate is a peer whose latest client has data the document lacks.
type peerUpdate struct {
	id     string
	ref    index.Ref
	master *index.MasterIndex
	client *index.ClientIndex
}

// MergeFromRemotePeers applies what other users' replicas, listed as
// peers in the master index or in the document, have saved since the
// document last saw them. Only each peer's most recent client is merged.
//
// Unreadable peers are reported in the result; the returned error is
// non-nil only when ctx is done.
func (s *Syncer) MergeFromRemotePeers(ctx context.Context, doc Document) (*MergeReport, error) {
	report := &MergeReport{}
	prog := newProgress(s.cfg.Progress)
	prog.add(1)

	peers := make(map[string]index.Ref)
	master, err := s.readMaster(ctx, doc.ID())
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.recordSkip(report, doc, SkipMaster, doc.ID(), err)
	case master != nil:
		maps.Copy(peers, master.Peers)
	}
	maps.Copy(peers, doc.Peers())
	prog.step()

	ids := slices.Sorted(maps.Keys(peers))
	prog.add(len(ids))
	outcomes := fanOut(ctx, s.cfg.MaxConcurrency, ids,
		func(ctx context.Context, id string) (*peerUpdate, error) {
			defer prog.step()
			return s.fetchPeer(ctx, doc, id, peers[id])
		})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var updates []*peerUpdate
	for i, o := range outcomes {
		switch {
		case o.err != nil:
			s.recordSkip(report, doc, SkipPeer, ids[i], o.err)
		case o.val != nil:
			updates = append(updates, o.val)
		}
	}

	indexes := make([]*index.ClientIndex, len(updates))
	for i, u := range updates {
		indexes[i] = u.client
	}
	before := len(report.Skipped)
	if err := s.mergeClients(ctx, doc, indexes, report, prog); err != nil {
		return nil, err
	}

	failed := make(map[string]bool)
	for _, sk := range report.Skipped[before:] {
		failed[sk.ID] = true
	}
	for _, u := range updates {
		if failed[u.client.ClientID] {
			continue
		}
		label := u.master.Label
		if label == "" {
			label = u.ref.Label
		}
		doc.AddPeer(u.id, index.Ref{URL: u.ref.URL, LastReceived: u.master.LatestUpdate.Version, Label: label})
	}
	prog.finish()
	return report, nil
}

// fetchPeer reads a peer's master index and, when it is newer than what
// the document knows, the client index of its latest client. A nil result
// with no error means the peer has nothing new.
func (s *Syncer) fetchPeer(ctx context.Context, doc Document, id string, ref index.Ref) (*peerUpdate, error) {
	data, err := s.fetchURL(ctx, ref.URL)
	if err != nil {
		return nil, err
	}
	pm, err := index.DecodeMaster(data, ref.URL)
	if err != nil {
		return nil, err
	}
	if !IsNewer(doc, pm.LatestUpdate) {
		s.cfg.Logger.Debug("peer up to date", "document", doc.ID(), "peer", id,
			"version", pm.LatestUpdate.Version)
		return nil, nil
	}

	latest := pm.LatestUpdate.ClientID
	cref, ok := pm.Clients[latest]
	if !ok {
		return nil, &SyncError{
			Code:     ErrCodeUnknownClient,
			Message:  "peer's latest client not listed in its master index",
			ClientID: latest,
			URL:      ref.URL,
		}
	}
	data, err = s.fetchURL(ctx, cref.URL)
	if err != nil {
		return nil, err
	}
	ci, err := index.DecodeClient(data, cref.URL)
	if err != nil {
		return nil, err
	}
	return &peerUpdate{id: id, ref: ref, master: pm, client: ci}, nil
}

// MergeClients applies the parts of the given client indexes that the
// document has not seen yet.
//
// All parts are fetched before anything is applied. A client with any
// unreadable or malformed part is dropped entirely, since applying a
// prefix of its chain out of context is not meaningful. Clients are
// applied in the given order, each one's parts in ascending id order.
func (s *Syncer) MergeClients(ctx context.Context, doc Document, clients []*index.ClientIndex) (*MergeReport, error) {
	report := &MergeReport{}
	prog := newProgress(s.cfg.Progress)
	if err := s.mergeClients(ctx, doc, clients, report, prog); err != nil {
		return nil, err
	}
	prog.finish()
	return report, nil
}

func (s *Syncer) mergeClients(
	ctx context.Context, doc Document, clients []*index.ClientIndex, report *MergeReport, prog *progress,
) error {
	type pending struct {
		clientID string
		parts    []index.Part
	}
	var work []pending
	for _, ci := range clients {
		parts := ci.Parts
		if state, ok := doc.ClientState(ci.ClientID); ok {
			parts = ci.PartsAfter(state)
		}
		if len(parts) == 0 {
			continue
		}
		parts = slices.Clone(parts)
		slices.SortFunc(parts, func(a, b index.Part) int { return a.ID - b.ID })
		work = append(work, pending{clientID: ci.ClientID, parts: parts})
	}

	for _, w := range work {
		prog.add(len(w.parts))
	}
	outcomes := fanOut(ctx, s.cfg.MaxConcurrency, work,
		func(ctx context.Context, w pending) ([][]byte, error) {
			return s.fetchClientParts(ctx, doc.ID(), w.clientID, w.parts, prog)
		})
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, o := range outcomes {
		clientID := work[i].clientID
		if o.err != nil {
			s.recordSkip(report, doc, SkipClient, clientID, o.err)
			continue
		}
		if err := s.applyParts(doc, work[i].parts, o.val); err != nil {
			s.recordSkip(report, doc, SkipClient, clientID, err)
			continue
		}
		report.Merged = append(report.Merged, clientID)
		s.cfg.Logger.Info("merged client", "document", doc.ID(), "client", clientID,
			"parts", len(work[i].parts), "version", doc.Version())
	}
	return nil
}

// fetchClientParts downloads all parts of one client concurrently. The
// first failure fails the client.
func (s *Syncer) fetchClientParts(
	ctx context.Context, documentID, clientID string, parts []index.Part, prog *progress,
) ([][]byte, error) {
	outcomes := fanOut(ctx, s.cfg.MaxConcurrency, parts,
		func(ctx context.Context, p index.Part) ([]byte, error) {
			defer prog.step()
			data, err := s.fetchPart(ctx, documentID, clientID, p)
			if err != nil {
				return nil, err
			}
			if !json.Valid(data) {
				return nil, errors.Newf("part %d of client %s is not valid JSON", p.ID, clientID)
			}
			return data, nil
		})
	res := make([][]byte, len(parts))
	for i, o := range outcomes {
		if o.err != nil {
			return nil, errors.Wrapf(o.err, "fetch part %d", parts[i].ID)
		}
		res[i] = o.val
	}
	return res, nil
}

// applyParts stops at the first part the document rejects; parts before
// it stay applied.
func (s *Syncer) applyParts(doc Document, parts []index.Part, data [][]byte) error {
	for i, p := range parts {
		if err := doc.ApplyChanges(data[i]); err != nil {
			return errors.Wrapf(err, "apply part %d", p.ID)
		}
		s.cfg.Metrics.partApplied()
	}
	return nil
}
