package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, 2, clock.Reads())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, 0, clock.Reads())
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 100

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := clock.Now()
			mu.Lock()
			seen[now] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines, "every reading should be distinct")
}
