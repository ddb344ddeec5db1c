package remote

import "github.com/roach88/minisync/internal/index"

// Document is the mergeable data structure being synchronized.
//
// ApplyChanges must be idempotent, and commutative across payloads of
// different clients. Payloads of one client are always applied in the
// order they were written.
type Document interface {
	ID() string
	ClientID() string
	Version() index.Version

	// ChangesSince serializes the history after from, or all of it when
	// from is nil.
	ChangesSince(from *index.Version) ([]byte, error)
	ApplyChanges(data []byte) error

	// ClientState reports the last version of a remote client (or peer
	// client) already incorporated.
	ClientState(clientID string) (index.Version, bool)

	Peers() map[string]index.Ref
	AddPeer(id string, ref index.Ref)
}

// Factory builds a fresh document from the first part of a client's
// history.
type Factory func(changes []byte) (Document, error)

// IsNewer reports whether update carries data the document has not seen.
func IsNewer(doc Document, update index.LatestUpdate) bool {
	state, ok := doc.ClientState(update.ClientID)
	return !ok || update.Version > state
}
