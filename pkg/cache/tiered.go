package cache

import (
	"image"

	"github.com/pellucid/imageflow/pkg/loader"
)

// Tiered composes a memory tier over a disk tier with write-through stores
// and memory-first reads. Either tier may be nil.
//
// Capabilities follow the tiers: LookupMemory serves from the memory tier
// only, so Tiered satisfies FastMemoryCache, and the prefetch path will pick
// that over the generic variant. Contains/Query scope to the requested tier;
// memory-tier probes are answered synchronously on the caller's goroutine,
// disk-tier probes are delegated to the disk tier's delivery goroutine.
type Tiered struct {
	Memory  Store // must also implement FastMemoryCache when non-nil
	Disk    Store // must also implement GenericCache when non-nil
	Metrics CacheMetrics
}

var (
	_ Store           = (*Tiered)(nil)
	_ FastMemoryCache = (*Tiered)(nil)
	_ GenericCache    = (*Tiered)(nil)
)

// LookupMemory serves synchronously from the memory tier.
func (t *Tiered) LookupMemory(key string) image.Image {
	if t.Memory == nil {
		return nil
	}
	fast := AsFastMemoryCache(t.Memory)
	if fast == nil {
		return nil
	}
	return fast.LookupMemory(key)
}

// Contains reports membership at the given tier, memory first for TierAll.
func (t *Tiered) Contains(key string, tier Tier, fn func(found bool)) {
	if fn == nil {
		return
	}

	if tier == TierMemory || tier == TierAll {
		if t.LookupMemory(key) != nil {
			fn(true)
			return
		}
		if tier == TierMemory {
			fn(false)
			return
		}
	}

	if tier == TierDisk || tier == TierAll {
		if g := AsGenericCache(t.Disk); t.Disk != nil && g != nil {
			g.Contains(key, TierDisk, fn)
			return
		}
	}
	fn(false)
}

// Query fetches memory-first. Disk hits are promoted into the memory tier.
func (t *Tiered) Query(key string, opts QueryOptions, fn func(img image.Image, data []byte, source loader.CacheSource)) {
	if fn == nil {
		return
	}

	tier := opts.Tier
	if tier == TierMemory || tier == TierAll {
		if img := t.LookupMemory(key); img != nil {
			fn(img, nil, loader.SourceMemory)
			return
		}
		if tier == TierMemory {
			fn(nil, nil, loader.SourceNone)
			return
		}
	}

	g := AsGenericCache(t.Disk)
	if t.Disk == nil || g == nil || tier == TierNone {
		fn(nil, nil, loader.SourceNone)
		return
	}

	g.Query(key, QueryOptions{Tier: TierDisk, DecodeOnly: opts.DecodeOnly}, func(img image.Image, data []byte, source loader.CacheSource) {
		if img != nil && t.Memory != nil {
			// Promote so the next lookup stays in memory.
			_ = t.Memory.StoreImage(key, img, nil)
		}
		fn(img, data, source)
	})
}

// StoreImage writes through both tiers.
func (t *Tiered) StoreImage(key string, img image.Image, data []byte) error {
	if t.Memory != nil {
		if err := t.Memory.StoreImage(key, img, nil); err != nil {
			return err
		}
	}
	if t.Disk != nil {
		if err := t.Disk.StoreImage(key, img, data); err != nil {
			return err
		}
	}
	return nil
}

// RemoveImage drops the entry from both tiers.
func (t *Tiered) RemoveImage(key string) error {
	if t.Memory != nil {
		if err := t.Memory.RemoveImage(key); err != nil {
			return err
		}
	}
	if t.Disk != nil {
		if err := t.Disk.RemoveImage(key); err != nil {
			return err
		}
	}
	return nil
}

// Close closes both tiers, reporting the first error.
func (t *Tiered) Close() error {
	var first error
	if t.Memory != nil {
		if err := t.Memory.Close(); err != nil {
			first = err
		}
	}
	if t.Disk != nil {
		if err := t.Disk.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
