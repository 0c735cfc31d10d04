package caselist

import (
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a cached page stays servable.
	DefaultTTL = 5 * time.Minute

	// DefaultCapacity bounds the number of cached pages.
	DefaultCapacity = 100
)

// cacheEntry holds one memoized page and its insertion time.
type cacheEntry struct {
	page       *ResultPage
	insertedAt time.Time
}

// pageCache memoizes result pages by query key with a TTL and a FIFO
// capacity bound. Eviction is strictly insertion-ordered: a hit does not
// refresh an entry's position. Expiry is lazy, on the read that observes a
// stale entry; there is no background sweeper.
type pageCache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	order    []string // insertion order, oldest first
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

func newPageCache(ttl time.Duration, capacity int) *pageCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &pageCache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// get returns a copy of the cached page for key, or ok=false on a miss.
// A stale entry is removed as a side effect of the read that finds it.
func (c *pageCache) get(key string) (*ResultPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) > c.ttl {
		c.remove(key)
		return nil, false
	}
	return entry.page.Clone(), true
}

// set inserts or overwrites the entry for key, evicting the oldest-inserted
// entry if the insert pushes the store over capacity.
func (c *pageCache) set(key string, page *ResultPage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		// Overwrite keeps the original insertion position.
		c.entries[key] = cacheEntry{page: page.Clone(), insertedAt: c.now()}
		return
	}

	c.entries[key] = cacheEntry{page: page.Clone(), insertedAt: c.now()}
	c.order = append(c.order, key)
	for len(c.entries) > c.capacity {
		c.remove(c.order[0])
	}
}

// clear removes all entries unconditionally.
func (c *pageCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.order = c.order[:0]
}

// len reports the number of live entries, stale ones included.
func (c *pageCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove deletes key from both the map and the order slice.
// Callers must hold c.mu.
func (c *pageCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
