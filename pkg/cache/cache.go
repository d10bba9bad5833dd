// Package cache defines the image cache boundary consumed by the loader and
// the prefetch path.
//
// Two capability variants exist and are dispatched structurally:
//
//   - FastMemoryCache: a synchronous, memory-tier-only lookup. The memory
//     implementation (pkg/cache/memory) provides it.
//   - GenericCache: asynchronous membership + query calls that can span
//     tiers. The disk implementation (pkg/cache/disk) and the Tiered
//     composite provide it.
//
// Callers probe with AsFastMemoryCache / AsGenericCache and prefer the fast
// path when present.
package cache

import (
	"image"
	"time"

	"github.com/pellucid/imageflow/pkg/loader"
)

// ============================================================================
// Tiers
// ============================================================================

// Tier selects which cache localities an operation may touch.
type Tier int

const (
	TierNone Tier = iota
	TierMemory
	TierDisk
	TierAll
)

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierDisk:
		return "disk"
	case TierAll:
		return "all"
	default:
		return "none"
	}
}

// ============================================================================
// Capability variants
// ============================================================================

// FastMemoryCache is the synchronous memory-tier accessor. LookupMemory
// must never block on I/O and must return nil on a miss.
type FastMemoryCache interface {
	LookupMemory(key string) image.Image
}

// QueryOptions scopes a GenericCache query.
type QueryOptions struct {
	// Tier limits the query to the given locality. TierAll queries every
	// tier in memory-first order.
	Tier Tier

	// DecodeOnly skips returning raw encoded bytes when the caller only
	// needs the decoded image.
	DecodeOnly bool
}

// GenericCache is the asynchronous variant. Contains and Query may complete
// on a goroutine other than the caller's, but each implementation delivers
// all of its callbacks on one consistent goroutine.
type GenericCache interface {
	// Contains reports membership at the given tier.
	Contains(key string, tier Tier, fn func(found bool))

	// Query fetches the cached image for key. On a miss the callback
	// receives (nil, nil, SourceNone).
	Query(key string, opts QueryOptions, fn func(img image.Image, data []byte, source loader.CacheSource))
}

// Store is the write side shared by all implementations. The loader fills
// caches through it after a network fetch.
type Store interface {
	// StoreImage caches the decoded image, and its encoded bytes when the
	// tier persists them. data may be nil for memory-only tiers.
	StoreImage(key string, img image.Image, data []byte) error

	// RemoveImage drops the entry. Missing keys are not an error.
	RemoveImage(key string) error

	Close() error
}

// ============================================================================
// Capability detection
// ============================================================================

// AsFastMemoryCache returns c as a FastMemoryCache when the synchronous
// memory path is available, otherwise nil.
func AsFastMemoryCache(c Store) FastMemoryCache {
	if fast, ok := c.(FastMemoryCache); ok {
		return fast
	}
	return nil
}

// AsGenericCache returns c as a GenericCache when the asynchronous path is
// available, otherwise nil.
func AsGenericCache(c Store) GenericCache {
	if g, ok := c.(GenericCache); ok {
		return g
	}
	return nil
}

// ============================================================================
// Key derivation
// ============================================================================

// TransformedKey folds a transformer identity into a base cache key so that
// transformed variants never collide with the original or with other
// transformers. Deterministic: equal inputs always produce equal keys.
func TransformedKey(baseKey, transformerKey string) string {
	if transformerKey == "" {
		return baseKey
	}
	return baseKey + "|t:" + transformerKey
}

// ============================================================================
// Metrics
// ============================================================================

// CacheMetrics collects cache observations. Implementations live in
// pkg/metrics; a nil CacheMetrics disables collection with zero overhead.
type CacheMetrics interface {
	ObserveHit(tier Tier)
	ObserveMiss(tier Tier)
	ObserveStore(tier Tier, bytes int64, duration time.Duration)
	ObserveEviction(tier Tier)
	SetSize(tier Tier, bytes int64)
}
