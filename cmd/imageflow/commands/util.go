package commands

import (
	"fmt"

	"github.com/pellucid/imageflow/pkg/cache"
	"github.com/pellucid/imageflow/pkg/cache/disk"
	"github.com/pellucid/imageflow/pkg/cache/memory"
	"github.com/pellucid/imageflow/pkg/config"
	"github.com/pellucid/imageflow/pkg/loader/httploader"
	"github.com/pellucid/imageflow/pkg/metrics"
)

// buildStack wires the cache tiers and HTTP manager from configuration.
// The returned store must be closed by the caller; it may be nil when both
// tiers are disabled.
func buildStack(cfg *config.Config) (cache.Store, *httploader.Manager, error) {
	cacheMetrics := metrics.NewCacheMetrics()

	var memTier cache.Store
	if cfg.MemoryCache.Enabled {
		memTier = memory.New(cfg.MemoryCache.MaxSize.Bytes(), cacheMetrics)
	}

	var diskTier cache.Store
	if cfg.DiskCache.Enabled {
		var err error
		diskTier, err = disk.New(disk.Config{
			Path: cfg.DiskCache.Path,
			TTL:  cfg.DiskCache.TTL,
		}, cacheMetrics)
		if err != nil {
			if memTier != nil {
				_ = memTier.Close()
			}
			return nil, nil, fmt.Errorf("failed to open disk cache: %w", err)
		}
	}

	var store cache.Store
	switch {
	case memTier != nil && diskTier != nil:
		store = &cache.Tiered{Memory: memTier, Disk: diskTier, Metrics: cacheMetrics}
	case memTier != nil:
		store = memTier
	case diskTier != nil:
		store = diskTier
	}

	mgr := httploader.New(httploader.Config{
		Timeout:       cfg.HTTP.Timeout,
		MaxConcurrent: cfg.HTTP.MaxConcurrent,
		UserAgent:     cfg.HTTP.UserAgent,
	}, store, metrics.NewLoaderMetrics())

	return store, mgr, nil
}
