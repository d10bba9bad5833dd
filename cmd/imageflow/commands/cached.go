package commands

import (
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/pellucid/imageflow/internal/logger"
	"github.com/pellucid/imageflow/pkg/cache"
	"github.com/pellucid/imageflow/pkg/loader"
)

var cachedTier string

var cachedCmd = &cobra.Command{
	Use:   "cached <url>",
	Short: "Check whether an image is cached",
	Long: `Check whether an image is present in the cache without touching the
network. Exits with status 1 on a miss.`,
	Args: cobra.ExactArgs(1),
	RunE: runCached,
}

func init() {
	cachedCmd.Flags().StringVar(&cachedTier, "tier", "all", "tier to check: memory, disk, or all")
}

func runCached(cmd *cobra.Command, args []string) error {
	url := args[0]

	tier, err := parseTier(cachedTier)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, mgr, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer func() {
		mgr.Close()
		if store != nil {
			if cerr := store.Close(); cerr != nil {
				logger.Warn("failed to close cache", "error", cerr)
			}
		}
	}()

	generic := cache.AsGenericCache(store)
	if generic == nil {
		return fmt.Errorf("no queryable cache tier is enabled")
	}

	key := mgr.CacheKey(url, nil)

	type result struct {
		img    image.Image
		source loader.CacheSource
	}
	ch := make(chan result, 1)
	generic.Query(key, cache.QueryOptions{Tier: tier}, func(img image.Image, _ []byte, source loader.CacheSource) {
		ch <- result{img, source}
	})
	r := <-ch

	if r.img == nil {
		fmt.Printf("Not cached: %s\n", url)
		return fmt.Errorf("%w: %s", loader.ErrCacheMiss, url)
	}

	bounds := r.img.Bounds()
	fmt.Printf("Cached: %s (%dx%d, %s tier)\n", url, bounds.Dx(), bounds.Dy(), r.source)
	return nil
}

func parseTier(s string) (cache.Tier, error) {
	switch s {
	case "memory":
		return cache.TierMemory, nil
	case "disk":
		return cache.TierDisk, nil
	case "all":
		return cache.TierAll, nil
	default:
		return cache.TierNone, fmt.Errorf("unknown tier %q, expected memory, disk, or all", s)
	}
}
