// Package dedup keeps a bounded record of message identifiers already handled.
//
// When the number of recorded identifiers exceeds the capacity, the oldest
// half (by insertion order) is evicted at once. An evicted identifier that
// shows up again is treated as new.
package dedup

import "sync"

const DefaultCapacity = 1000

type Guard struct {
	capacity int
	seen     map[string]struct{}
	order    []string
	mu       sync.Mutex
}

func New(capacity int) *Guard {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Guard{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity+1),
		order:    make([]string, 0, capacity+1),
	}
}

// Seen reports whether id was already recorded. If it was not, it is
// recorded before returning false.
func (g *Guard) Seen(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[id]; ok {
		return true
	}
	g.seen[id] = struct{}{}
	g.order = append(g.order, id)

	if len(g.order) > g.capacity {
		g.evictOldestHalf()
	}
	return false
}

// Contains reports whether id is currently recorded without recording it.
func (g *Guard) Contains(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[id]
	return ok
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

func (g *Guard) Capacity() int {
	return g.capacity
}

func (g *Guard) evictOldestHalf() {
	n := len(g.order) / 2
	for _, id := range g.order[:n] {
		delete(g.seen, id)
	}
	kept := make([]string, len(g.order)-n, g.capacity+1)
	copy(kept, g.order[n:])
	g.order = kept
}
