package geo

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	timestamp time.Time
}

// LRUCache implements a thread-safe LRU cache with TTL.
// A zero or negative ttl disables expiry.
type LRUCache[K comparable, V any] struct {
	capacity  int
	ttl       time.Duration
	items     map[K]*list.Element
	evictList *list.List
	mu        sync.Mutex

	// Metrics
	hits   uint64
	misses uint64
}

// NewLRUCache creates a new LRU cache
func NewLRUCache[K comparable, V any](capacity int, ttl time.Duration) *LRUCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache[K, V]{
		capacity:  capacity,
		ttl:       ttl,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
	}
}

// Get retrieves a value from the cache
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	entry := elem.Value.(*cacheEntry[K, V])
	if c.expired(entry, time.Now()) {
		c.removeElement(elem)
		c.misses++
		return zero, false
	}

	// Move to front (most recently used)
	c.evictList.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Set adds or updates a value in the cache
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.evictList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry[K, V])
		entry.value = value
		entry.timestamp = time.Now()
		return
	}

	entry := &cacheEntry[K, V]{key: key, value: value, timestamp: time.Now()}
	c.items[key] = c.evictList.PushFront(entry)

	for c.evictList.Len() > c.capacity {
		c.removeOldest()
	}
}

// Size returns the number of items in the cache
func (c *LRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *LRUCache[K, V]) Stats() (hits, misses uint64, hitRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits = c.hits
	misses = c.misses
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

// Clean removes expired entries
func (c *LRUCache[K, V]) Clean() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()

	// Iterate from oldest to newest
	for elem := c.evictList.Back(); elem != nil; {
		entry := elem.Value.(*cacheEntry[K, V])
		if !c.expired(entry, now) {
			// All newer entries are also valid
			break
		}
		prev := elem.Prev()
		c.removeElement(elem)
		removed++
		elem = prev
	}

	return removed
}

func (c *LRUCache[K, V]) expired(entry *cacheEntry[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.timestamp) > c.ttl
}

func (c *LRUCache[K, V]) removeOldest() {
	if elem := c.evictList.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry[K, V])
	delete(c.items, entry.key)
	c.evictList.Remove(elem)
}
