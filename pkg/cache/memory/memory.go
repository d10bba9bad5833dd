// Package memory implements the in-memory image cache tier.
//
// Entries hold decoded images, so a hit costs nothing beyond a map lookup.
// The cache is size-bounded by estimated pixel bytes and evicts least
// recently used entries when full.
package memory

import (
	"container/list"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/pellucid/imageflow/pkg/cache"
)

// entry is one cached image plus its LRU bookkeeping.
type entry struct {
	key  string
	img  image.Image
	cost int64
	elem *list.Element
}

// Cache is a size-bounded LRU of decoded images.
//
// It implements cache.Store and the cache.FastMemoryCache capability, so the
// prefetch path takes the synchronous lookup and never crosses a goroutine.
//
// Thread safety: all methods are safe for concurrent use. Lookups promote
// the entry, so even LookupMemory takes the write lock; this keeps the
// implementation simple and the critical section is a few pointer moves.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recent
	size    int64
	maxSize int64
	closed  bool
	metrics cache.CacheMetrics
}

// New creates a memory cache holding at most maxSize estimated bytes of
// pixel data. maxSize <= 0 means unlimited. metrics may be nil.
func New(maxSize int64, metrics cache.CacheMetrics) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		lru:     list.New(),
		maxSize: maxSize,
		metrics: metrics,
	}
}

// Cost estimates the resident size of a decoded image in bytes.
func Cost(img image.Image) int64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

// LookupMemory returns the cached image for key, or nil on a miss.
// Implements cache.FastMemoryCache.
func (c *Cache) LookupMemory(key string) image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	e, ok := c.entries[key]
	if !ok {
		if c.metrics != nil {
			c.metrics.ObserveMiss(cache.TierMemory)
		}
		return nil
	}
	c.lru.MoveToFront(e.elem)
	if c.metrics != nil {
		c.metrics.ObserveHit(cache.TierMemory)
	}
	return e.img
}

// StoreImage caches img under key, evicting LRU entries as needed. The raw
// data argument is ignored: this tier never persists encoded bytes.
func (c *Cache) StoreImage(key string, img image.Image, _ []byte) error {
	if img == nil {
		return nil
	}

	start := time.Now()
	cost := Cost(img)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("memory cache is closed")
	}

	if old, ok := c.entries[key]; ok {
		c.size -= old.cost
		c.lru.Remove(old.elem)
		delete(c.entries, key)
	}

	e := &entry{key: key, img: img, cost: cost}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.size += cost

	evicted := 0
	for c.maxSize > 0 && c.size > c.maxSize && c.lru.Len() > 1 {
		oldest := c.lru.Back()
		victim := oldest.Value.(*entry)
		c.lru.Remove(oldest)
		delete(c.entries, victim.key)
		c.size -= victim.cost
		evicted++
	}
	size := c.size
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveStore(cache.TierMemory, cost, time.Since(start))
		for i := 0; i < evicted; i++ {
			c.metrics.ObserveEviction(cache.TierMemory)
		}
		c.metrics.SetSize(cache.TierMemory, size)
	}
	return nil
}

// RemoveImage drops the entry for key. Idempotent.
func (c *Cache) RemoveImage(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	c.lru.Remove(e.elem)
	delete(c.entries, key)
	c.size -= e.cost
	if c.metrics != nil {
		c.metrics.SetSize(cache.TierMemory, c.size)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the current estimated byte size.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Close releases all entries. Further lookups miss and stores fail.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.entries = nil
	c.lru.Init()
	c.size = 0
	return nil
}
