// Package index defines the two index documents of the remote layout and
// the codec that guards them.
//
// A Master Index exists once per document and lists every client and peer
// known to its last writer. A Client Index exists once per (document,
// client) and lists that client's parts, the size-bounded slices of its
// serialized change history.
//
// Every index file carries a discriminator block at the top level:
//
//	{"_minisync": {"dataType": "MASTER-INDEX", "version": 1}, ...}
//
// Decoding never trusts a blob without it. Encoding is canonical JSON so
// rewriting an unchanged index produces identical bytes.
//
// This package imports nothing internal.
package index
