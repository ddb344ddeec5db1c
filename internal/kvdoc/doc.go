// Package kvdoc is a last-writer-wins key/value document that satisfies
// the document contract of the remote package.
//
// Each key holds a register ordered by (lamport, origin). The document
// version counts local events: local edits, and batches of remote entries
// this replica accepted. Every entry remembers the version at which it
// entered this replica (its stamp), which is what ChangesSince filters on.
package kvdoc

import (
	"maps"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/index"
)

// Entry is one key's register.
type Entry struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Deleted bool   `json:"deleted"`
	Lamport uint64 `json:"lamport"`
	Origin  string `json:"origin"`

	// Stamp is the document version at which this replica recorded the
	// entry.
	Stamp index.Version `json:"stamp"`
}

// newerThan reports whether e should replace other.
func (e Entry) newerThan(other Entry) bool {
	if e.Lamport != other.Lamport {
		return e.Lamport > other.Lamport
	}
	return e.Origin > other.Origin
}

// Doc is a replica of one document as seen by one client.
//
// Thread-safety: Doc is safe for concurrent use via internal mutex.
type Doc struct {
	mu sync.Mutex

	id       string
	clientID string
	version  index.Version
	clock    *Clock

	entries      map[string]Entry
	clientStates map[string]index.Version
	peers        map[string]index.Ref
}

// New returns an empty document owned by clientID.
func New(documentID, clientID string) *Doc {
	return &Doc{
		id:           documentID,
		clientID:     clientID,
		clock:        NewClock(),
		entries:      make(map[string]Entry),
		clientStates: make(map[string]index.Version),
		peers:        make(map[string]index.Ref),
	}
}

// Load builds a document from its first change payload.
//
// With an empty clientID the document resumes as the client that wrote the
// payload, which is how a client restores its own history. Otherwise the
// payload is treated as foreign data merged into a new replica owned by
// clientID.
func Load(changes []byte, clientID string) (*Doc, error) {
	c, err := decodeChanges(changes)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		clientID = c.ClientID
	}
	d := New(c.DocumentID, clientID)
	if err := d.apply(c); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Doc) ID() string       { return d.id }
func (d *Doc) ClientID() string { return d.clientID }

// Version returns the current document version.
func (d *Doc) Version() index.Version {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Set writes key locally.
func (d *Doc) Set(key, value string) {
	d.write(Entry{Key: key, Value: value})
}

// Delete tombstones key locally. Deleting a missing key still counts as a
// write, so it wins over concurrent remote sets with a lower clock.
func (d *Doc) Delete(key string) {
	d.write(Entry{Key: key, Deleted: true})
}

func (d *Doc) write(e Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version++
	e.Lamport = d.clock.Next()
	e.Origin = d.clientID
	e.Stamp = d.version
	d.entries[e.Key] = e
}

// Get returns the live value of key.
func (d *Doc) Get(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok || e.Deleted {
		return "", false
	}
	return e.Value, true
}

// Values returns a copy of all live keys and values.
func (d *Doc) Values() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := make(map[string]string, len(d.entries))
	for k, e := range d.entries {
		if !e.Deleted {
			res[k] = e.Value
		}
	}
	return res
}

// Entries returns every register, tombstones included, sorted by key.
func (d *Doc) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sortedEntries(nil)
}

func (d *Doc) sortedEntries(since *index.Version) []Entry {
	res := make([]Entry, 0, len(d.entries))
	for _, k := range slices.Sorted(maps.Keys(d.entries)) {
		e := d.entries[k]
		if since != nil && e.Stamp <= *since {
			continue
		}
		res = append(res, e)
	}
	return res
}

// ClientState returns the last version of clientID incorporated here.
func (d *Doc) ClientState(clientID string) (index.Version, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.clientStates[clientID]
	return v, ok
}

// ClientStates returns a copy of the client state table.
func (d *Doc) ClientStates() map[string]index.Version {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.clientStates)
}

// Peers returns a copy of the peer table.
func (d *Doc) Peers() map[string]index.Ref {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.peers)
}

// AddPeer records or refreshes a peer. A stale lastReceived never
// overwrites a newer one.
func (d *Doc) AddPeer(id string, ref index.Ref) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addPeerLocked(id, ref)
}

func (d *Doc) addPeerLocked(id string, ref index.Ref) {
	if cur, ok := d.peers[id]; ok && cur.LastReceived > ref.LastReceived {
		ref.LastReceived = cur.LastReceived
	}
	d.peers[id] = ref
}

// ErrWrongDocument is returned when applying changes of another document.
var ErrWrongDocument = errors.New("changes belong to a different document")
