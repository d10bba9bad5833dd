// Package disk implements the persistent image cache tier on BadgerDB.
//
// Entries hold encoded image bytes; hits pay a decode. The cache implements
// the cache.GenericCache capability: Contains and Query are asynchronous and
// deliver their callbacks on one dedicated goroutine, so callers observe a
// single consistent delivery context.
package disk

import (
	"bytes"
	"fmt"
	"image"
	"sync"
	"time"

	// Entries are stored as encoded bytes; register the stdlib decoders so
	// hits can be decoded without the loader package in the import graph.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/pellucid/imageflow/internal/logger"
	"github.com/pellucid/imageflow/pkg/cache"
	"github.com/pellucid/imageflow/pkg/loader"
)

// Config holds disk cache settings.
type Config struct {
	// Path is the BadgerDB directory. Required.
	Path string

	// TTL expires entries after this duration. Zero disables expiry.
	TTL time.Duration

	// InMemory runs Badger without touching disk. Used by tests.
	InMemory bool
}

// Cache is a Badger-backed encoded-image cache.
type Cache struct {
	db      *badger.DB
	ttl     time.Duration
	metrics cache.CacheMetrics

	mu      sync.Mutex
	pending []func()
	signal  chan struct{}
	closed  bool
	drained chan struct{}
}

// New opens the cache at cfg.Path. metrics may be nil.
func New(cfg Config, metrics cache.CacheMetrics) (*Cache, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("disk cache path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk cache: %w", err)
	}

	c := &Cache{
		db:      db,
		ttl:     cfg.TTL,
		metrics: metrics,
		signal:  make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
	go c.deliver()
	return c, nil
}

// deliver runs queued callbacks on one goroutine. GenericCache consumers
// rely on this single consistent delivery context.
func (c *Cache) deliver() {
	defer close(c.drained)

	for {
		c.mu.Lock()
		for len(c.pending) == 0 && !c.closed {
			c.mu.Unlock()
			<-c.signal
			c.mu.Lock()
		}
		if len(c.pending) == 0 && c.closed {
			c.mu.Unlock()
			return
		}
		fn := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		fn()
	}
}

func (c *Cache) enqueue(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, fn)
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// ============================================================================
// GenericCache capability
// ============================================================================

// Contains reports membership. Only TierDisk and TierAll can hit; this cache
// has no memory tier, so TierMemory probes report false without touching the
// database.
func (c *Cache) Contains(key string, tier cache.Tier, fn func(found bool)) {
	if fn == nil {
		return
	}
	if tier == cache.TierMemory || tier == cache.TierNone {
		c.enqueue(func() { fn(false) })
		return
	}

	c.enqueue(func() {
		found := false
		err := c.db.View(func(txn *badger.Txn) error {
			_, err := txn.Get([]byte(key))
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			found = true
			return nil
		})
		if err != nil {
			logger.Warn("disk cache membership check failed", "cache_key", key, "error", err)
		}
		fn(found)
	})
}

// Query fetches and decodes the entry for key. Misses deliver
// (nil, nil, SourceNone).
func (c *Cache) Query(key string, opts cache.QueryOptions, fn func(img image.Image, data []byte, source loader.CacheSource)) {
	if fn == nil {
		return
	}
	if opts.Tier == cache.TierMemory || opts.Tier == cache.TierNone {
		c.enqueue(func() { fn(nil, nil, loader.SourceNone) })
		return
	}

	c.enqueue(func() {
		var data []byte
		err := c.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				data = append([]byte(nil), val...)
				return nil
			})
		})
		if err != nil {
			logger.Warn("disk cache query failed", "cache_key", key, "error", err)
		}

		if data == nil {
			if c.metrics != nil {
				c.metrics.ObserveMiss(cache.TierDisk)
			}
			fn(nil, nil, loader.SourceNone)
			return
		}

		img, _, decErr := image.Decode(bytes.NewReader(data))
		if decErr != nil {
			logger.Warn("disk cache entry is not decodable", "cache_key", key, "error", decErr)
			if c.metrics != nil {
				c.metrics.ObserveMiss(cache.TierDisk)
			}
			fn(nil, nil, loader.SourceNone)
			return
		}

		if c.metrics != nil {
			c.metrics.ObserveHit(cache.TierDisk)
		}
		if opts.DecodeOnly {
			data = nil
		}
		fn(img, data, loader.SourceDisk)
	})
}

// ============================================================================
// Store interface
// ============================================================================

// StoreImage persists the encoded bytes for key. The decoded image argument
// is ignored: this tier only keeps bytes. Entries without data are skipped.
func (c *Cache) StoreImage(key string, _ image.Image, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	start := time.Now()
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	if c.metrics != nil {
		c.metrics.ObserveStore(cache.TierDisk, int64(len(data)), time.Since(start))
	}
	return nil
}

// RemoveImage drops the entry for key. Idempotent.
func (c *Cache) RemoveImage(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && err != badger.ErrKeyNotFound {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}

// Close stops the delivery goroutine and closes the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
	<-c.drained

	return c.db.Close()
}
