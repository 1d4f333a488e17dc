// Package cache provides the bounded LRU cache shared by every stage of a
// qualification run.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/vietddude/cascade/internal/core/domain"
)

// Stats is a point-in-time snapshot of cache usage.
type Stats struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a fixed-capacity least-recently-used store with hit/miss counters.
// All operations are serialized by a single mutex, so recency order and the
// counters stay consistent under concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	items    map[K]*list.Element
	hits     uint64
	misses   uint64
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int) (*Cache[K, V], error) {
	if capacity < 1 {
		return nil, domain.NewConfigError("cache.capacity", "must be >= 1, got %d", capacity)
	}
	return &Cache[K, V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
	}, nil
}

// Get returns the value for key. A hit moves the key to the most recently
// used position.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Peek returns the value for key without touching recency or counters.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Set inserts or replaces the value for key. When the cache is full the
// least recently used entry is evicted first.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	c.checkInvariant()
}

// Clear drops every entry and resets the counters.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[K]*list.Element, c.capacity)
	c.hits = 0
	c.misses = 0
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// Stats returns current usage statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.order.Len()
	stats := Stats{
		Size:        size,
		Capacity:    c.capacity,
		Hits:        c.hits,
		Misses:      c.misses,
		Utilization: float64(size) / float64(c.capacity),
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// evictOldest removes the tail of the recency list. Caller holds mu.
func (c *Cache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		panic(fmt.Sprintf("cache: eviction requested on empty list (capacity %d)", c.capacity))
	}
	e := c.order.Remove(oldest).(*entry[K, V])
	if _, ok := c.items[e.key]; !ok {
		panic(fmt.Sprintf("cache: evicted key %v missing from index", e.key))
	}
	delete(c.items, e.key)
}

// checkInvariant panics when the index and recency list disagree or the
// capacity is exceeded. Either means the cache is corrupt.
func (c *Cache[K, V]) checkInvariant() {
	if n := c.order.Len(); n > c.capacity || n != len(c.items) {
		panic(fmt.Sprintf("cache: corrupt state: list=%d index=%d capacity=%d",
			n, len(c.items), c.capacity))
	}
}
