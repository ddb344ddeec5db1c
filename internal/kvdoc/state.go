package kvdoc

import (
	"encoding/json"
	"maps"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/index"
)

// state is the persisted form of a full replica.
type state struct {
	DocumentID   string                   `json:"documentID"`
	ClientID     string                   `json:"clientID"`
	Version      index.Version            `json:"version"`
	Lamport      uint64                   `json:"lamport"`
	Entries      []Entry                  `json:"entries"`
	ClientStates map[string]index.Version `json:"clientStates"`
	Peers        map[string]index.Ref     `json:"peers"`
}

// MarshalState encodes the full replica, including the Lamport clock.
func (d *Doc) MarshalState() ([]byte, error) {
	d.mu.Lock()
	s := state{
		DocumentID:   d.id,
		ClientID:     d.clientID,
		Version:      d.version,
		Lamport:      d.clock.Current(),
		Entries:      d.sortedEntries(nil),
		ClientStates: maps.Clone(d.clientStates),
		Peers:        maps.Clone(d.peers),
	}
	d.mu.Unlock()
	return index.MarshalCanonical(s)
}

// UnmarshalState restores a replica written by MarshalState.
func UnmarshalState(data []byte) (*Doc, error) {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode document state")
	}
	if s.DocumentID == "" || s.ClientID == "" {
		return nil, errors.New("decode document state: missing document or client id")
	}

	d := New(s.DocumentID, s.ClientID)
	d.version = s.Version
	d.clock = NewClockAt(s.Lamport)
	for _, e := range s.Entries {
		d.entries[e.Key] = e
	}
	maps.Copy(d.clientStates, s.ClientStates)
	maps.Copy(d.peers, s.Peers)
	return d, nil
}
