// File path: internal/embedding/cache.go
package embedding

import (
	"container/list"
	"sync"
)

// Cache is the in-memory vector tier: a fixed-capacity LRU keyed by
// (projectID, textHash). Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[cacheKey]*list.Element
}

type cacheKey struct {
	projectID string
	textHash  string
}

type cacheEntry struct {
	key    cacheKey
	vector []float32
}

const defaultCacheCapacity = 4096

// NewCache builds an LRU with the given capacity; values below one fall back
// to the default.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[cacheKey]*list.Element),
	}
}

// Get returns the cached vector and marks the entry most recently used.
func (c *Cache) Get(projectID, textHash string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[cacheKey{projectID, textHash}]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).vector, true
}

// Put stores a vector, evicting the least recently used entry when full.
func (c *Cache) Put(projectID, textHash string, vector []float32) {
	if c == nil || len(vector) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{projectID, textHash}
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).vector = vector
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, vector: vector})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the number of cached vectors.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
