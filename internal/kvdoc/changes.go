package kvdoc

import (
	"encoding/json"
	"maps"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/index"
)

// Changes is the serialized form of a slice of a replica's history. It is
// what the sync layer stores in part files.
type Changes struct {
	DocumentID   string                   `json:"documentID"`
	ClientID     string                   `json:"clientID"`
	Version      index.Version            `json:"version"`
	FromVersion  *index.Version           `json:"fromVersion"`
	Entries      []Entry                  `json:"entries"`
	ClientStates map[string]index.Version `json:"clientStates"`
	Peers        map[string]index.Ref     `json:"peers"`
}

// ChangesSince serializes every entry recorded after from, or the whole
// replica when from is nil. Client states and peers are always included.
func (d *Doc) ChangesSince(from *index.Version) ([]byte, error) {
	d.mu.Lock()
	c := Changes{
		DocumentID:   d.id,
		ClientID:     d.clientID,
		Version:      d.version,
		FromVersion:  from,
		Entries:      d.sortedEntries(from),
		ClientStates: maps.Clone(d.clientStates),
		Peers:        maps.Clone(d.peers),
	}
	d.mu.Unlock()

	data, err := index.MarshalCanonical(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode changes")
	}
	return data, nil
}

// ApplyChanges merges a payload produced by ChangesSince. Applying the
// same payload twice is a no-op the second time.
func (d *Doc) ApplyChanges(data []byte) error {
	c, err := decodeChanges(data)
	if err != nil {
		return err
	}
	return d.apply(c)
}

func decodeChanges(data []byte) (*Changes, error) {
	var c Changes
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decode changes")
	}
	if c.DocumentID == "" || c.ClientID == "" {
		return nil, errors.New("decode changes: missing document or client id")
	}
	return &c, nil
}

func (d *Doc) apply(c *Changes) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.DocumentID != d.id {
		return errors.Wrapf(ErrWrongDocument, "got %s, want %s", c.DocumentID, d.id)
	}

	for id, ref := range c.Peers {
		d.addPeerLocked(id, ref)
	}

	if c.ClientID == d.clientID {
		d.applyOwnLocked(c)
		return nil
	}

	var accepted []Entry
	for _, e := range c.Entries {
		d.clock.Witness(e.Lamport)
		if cur, ok := d.entries[e.Key]; ok && !e.newerThan(cur) {
			continue
		}
		accepted = append(accepted, e)
	}
	// The version never trails a client version this document has absorbed.
	if len(accepted) > 0 {
		d.version = max(d.version+1, c.Version)
		for _, e := range accepted {
			e.Stamp = d.version
			d.entries[e.Key] = e
		}
	} else if c.Version > d.version {
		d.version = c.Version
	}
	if cur, ok := d.clientStates[c.ClientID]; !ok || c.Version > cur {
		d.clientStates[c.ClientID] = c.Version
	}
	return nil
}

// applyOwnLocked replays this client's own history, as during restore:
// stamps, version and client states are taken as recorded.
func (d *Doc) applyOwnLocked(c *Changes) {
	for _, e := range c.Entries {
		d.clock.Witness(e.Lamport)
		if cur, ok := d.entries[e.Key]; ok && !e.newerThan(cur) {
			continue
		}
		d.entries[e.Key] = e
	}
	if c.Version > d.version {
		d.version = c.Version
	}
	for id, v := range c.ClientStates {
		if cur, ok := d.clientStates[id]; !ok || v > cur {
			d.clientStates[id] = v
		}
	}
}
