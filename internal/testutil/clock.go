package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new DeterministicClock.
var Epoch = time.UnixMilli(1700000000000).UTC()

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every reading.
//
// Index files record the time of each save, so a deterministic clock makes
// them byte-identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	step  time.Duration
	now   time.Time
	reads int
}

// NewDeterministicClock creates a clock whose first reading is Epoch and
// which advances by one second per reading.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{step: time.Second, now: Epoch}
}

// Now returns the current reading and advances the clock.
//
// Matches the func() time.Time shape used by configs.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	c.reads++
	return t
}

// Reads returns how many times Now was called.
func (c *DeterministicClock) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Reset rewinds the clock to Epoch.
//
// Used for test reuse. After Reset(), the next call to Now() returns Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
	c.reads = 0
}
