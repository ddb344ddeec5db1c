// Package ids generates identifiers for documents, clients and stores.
package ids

import (
	"sync"

	"github.com/google/uuid"
)

// Generator produces identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids created
// later sort later. Client directories listed by a store therefore come
// back roughly in creation order.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// New returns a fresh UUIDv7 string.
func New() string {
	return UUIDv7Generator{}.Generate()
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("doc-1", "client-1")
//	gen.Generate() // "doc-1"
//	gen.Generate() // "client-1"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, to catch tests that create more
// documents or clients than they planned for.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
