package kvdoc

import "sync/atomic"

// Clock is a Lamport clock ordering writes across clients.
//
// Local writes take Next(). Accepted remote writes are fed to Witness so
// that any later local write sorts after everything this replica has seen.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	t atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a specific time.
// Used when loading a persisted replica.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.t.Store(start)
	return c
}

// Next increments the clock and returns the new time.
func (c *Clock) Next() uint64 {
	return c.t.Add(1)
}

// Current returns the current time without incrementing.
func (c *Clock) Current() uint64 {
	return c.t.Load()
}

// Witness advances the clock to at least t.
func (c *Clock) Witness(t uint64) {
	for {
		cur := c.t.Load()
		if t <= cur || c.t.CompareAndSwap(cur, t) {
			return
		}
	}
}
