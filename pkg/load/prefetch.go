package load

import (
	"image"

	"github.com/pellucid/imageflow/pkg/cache"
	"github.com/pellucid/imageflow/pkg/loader"
	"github.com/pellucid/imageflow/pkg/transform"
)

// Prefetcher populates initial state from the memory cache tier only, so a
// correct first frame can render before the first real Load. It never
// reaches the disk or network tiers.
//
// A Prefetcher built from the same Config, State, and Callbacks as a
// Coordinator shares the coordinator's published fields; its control path is
// otherwise fully independent.
type Prefetcher struct {
	cfg       Config
	state     *State
	callbacks *Callbacks
}

// NewPrefetcher creates a Prefetcher publishing into state and firing hooks
// from callbacks.
func NewPrefetcher(cfg Config, state *State, callbacks *Callbacks) *Prefetcher {
	return &Prefetcher{
		cfg:       cfg,
		state:     state,
		callbacks: callbacks,
	}
}

// Prefetch checks the memory tier for an already-cached result.
//
// On a hit it sets the image and fires the success hook with SourceMemory
// exactly once. On a miss nothing happens: no state field moves and no hook
// fires. The disk and network tiers are never touched.
func (p *Prefetcher) Prefetch() {
	if p.cfg.Cache == nil || p.cfg.Manager == nil {
		return
	}

	key := p.cacheKey()

	if fast := cache.AsFastMemoryCache(p.cfg.Cache); fast != nil {
		if img := fast.LookupMemory(key); img != nil {
			p.deliver(img)
		}
		return
	}

	generic := cache.AsGenericCache(p.cfg.Cache)
	if generic == nil {
		return
	}

	// Membership first so a miss never pays for a full query. Both
	// callbacks arrive on the cache's delivery goroutine.
	generic.Contains(key, cache.TierMemory, func(found bool) {
		if !found {
			return
		}
		generic.Query(key, cache.QueryOptions{Tier: cache.TierMemory}, func(img image.Image, _ []byte, _ loader.CacheSource) {
			if img != nil {
				p.deliver(img)
			}
		})
	})
}

// cacheKey derives the memory-tier key for the stored request: the manager's
// transformer-agnostic base key with the effective transformer identity
// folded in.
func (p *Prefetcher) cacheKey() string {
	ctx := p.cfg.Context.Clone()
	if proc := loader.AsOptionsProcessor(p.cfg.Manager); proc != nil {
		ctx = proc.ProcessOptions(p.cfg.URL, p.cfg.Options, ctx)
	}

	transformer := p.cfg.Transformer
	if v, ok := ctx[loader.CtxTransformer]; ok {
		if t, ok := v.(transform.Transformer); ok {
			transformer = t
		}
		// The base key must stay transformer-agnostic at the context
		// level; the identity is folded in below instead.
		delete(ctx, loader.CtxTransformer)
	}

	key := p.cfg.Manager.CacheKey(p.cfg.URL, ctx)
	if transformer != nil {
		key = cache.TransformedKey(key, transformer.TransformerKey())
	}
	return key
}

func (p *Prefetcher) deliver(img image.Image) {
	p.state.apply(func(s *Snapshot) {
		s.Image = img
	})
	p.callbacks.emitSuccess(img, loader.SourceMemory)
}
