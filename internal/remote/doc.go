// Package remote synchronizes documents through dumb blob stores.
//
// A document's history is saved as a chain of size-bounded part files per
// client, described by a client index, and every client of a document is
// listed in the document's master index:
//
//	documents/document-<id>/master-index.json
//	documents/document-<id>/client-<client>/client-index.json
//	documents/document-<id>/client-<client>/part-00000000.json
//
// Syncer.SaveRemote appends to that chain. CreateFromRemote and
// CreateFromURL rebuild a document from it. MergeFromRemoteClients and
// MergeFromRemotePeers pull in what other clients of the same user, or
// other users' replicas, have written, dropping any client or peer that
// cannot be read without failing the merge.
//
// Index files are rewritten without locking. Two writers updating the same
// index concurrently race and the last write wins; the next sync cycle
// repairs whatever the lost update dropped.
package remote
