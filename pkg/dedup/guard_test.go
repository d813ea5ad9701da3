package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_SameIDTwice(t *testing.T) {
	g := New(10)
	assert.False(t, g.Seen("3EB0A1"))
	assert.True(t, g.Seen("3EB0A1"))
	assert.Equal(t, 1, g.Len())
}

func TestGuard_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-5).Capacity())
}

func TestGuard_EvictsOldestHalfWhenOverCapacity(t *testing.T) {
	g := New(1000)
	for i := 0; i < 1000; i++ {
		g.Seen(fmt.Sprintf("m%d", i))
	}
	assert.Equal(t, 1000, g.Len())

	// The 1001st insertion pushes size past capacity.
	assert.False(t, g.Seen("m1000"))
	assert.Equal(t, 501, g.Len())

	assert.False(t, g.Contains("m0"))
	assert.False(t, g.Contains("m499"))
	assert.True(t, g.Contains("m500"))
	assert.True(t, g.Contains("m1000"))

	// An evicted id is treated as new again.
	assert.False(t, g.Seen("m0"))
}

func TestGuard_ContainsDoesNotRecord(t *testing.T) {
	g := New(4)
	assert.False(t, g.Contains("x"))
	assert.False(t, g.Seen("x"))
	assert.True(t, g.Contains("x"))
}

func TestGuard_ConcurrentSeenCountsOnce(t *testing.T) {
	g := New(100)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !g.Seen("same") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
}
