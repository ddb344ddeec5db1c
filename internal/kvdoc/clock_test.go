package kvdoc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NewClock(t *testing.T) {
	assert.Equal(t, uint64(0), NewClock().Current())
	assert.Equal(t, uint64(100), NewClockAt(100).Current())
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()
	assert.Equal(t, uint64(1), c.Next())
	assert.Equal(t, uint64(2), c.Next())
	assert.Equal(t, uint64(2), c.Current())
}

func TestClock_Witness(t *testing.T) {
	c := NewClockAt(5)

	c.Witness(3)
	assert.Equal(t, uint64(5), c.Current(), "witnessing the past is a no-op")

	c.Witness(9)
	assert.Equal(t, uint64(9), c.Current())
	assert.Equal(t, uint64(10), c.Next())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Next()
			c.Witness(uint64(i))
		}(i)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, c.Current(), uint64(goroutines-1))
}
