// Package httploader implements the loader.Manager boundary over net/http.
//
// Loads walk the cache tiers memory -> disk -> network, honoring the
// Options bits that skip either side. Identical in-flight URLs are coalesced
// into one download with per-subscriber cancellation, so a burst of requests
// for the same image costs one fetch.
package httploader

import (
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	// Register the stdlib decoders for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pellucid/imageflow/internal/logger"
	"github.com/pellucid/imageflow/pkg/cache"
	"github.com/pellucid/imageflow/pkg/loader"
	"github.com/pellucid/imageflow/pkg/transform"
)

// DefaultTimeout bounds a single download when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config holds HTTP manager settings.
type Config struct {
	// Client is the HTTP client to fetch with. Defaults to a fresh client.
	Client *http.Client

	// Timeout bounds each download. Defaults to DefaultTimeout.
	Timeout time.Duration

	// MaxConcurrent caps simultaneous downloads. 0 means unlimited.
	MaxConcurrent int

	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

// Manager is the HTTP-backed loader.Manager.
//
// A Manager is shared, long-lived, and safe for concurrent use. URLs that
// failed with a genuine fetch error are remembered and short-circuited until
// a load carries OptRetryFailed; cancellations are never remembered.
type Manager struct {
	cfg     Config
	client  *http.Client
	cache   cache.Store // may be nil
	metrics loader.Metrics
	sem     chan struct{}

	mu        sync.Mutex
	closed    bool
	downloads map[string]*download // effective cache key -> in-flight fetch
	failed    map[string]error     // url -> last genuine failure
	inFlight  int
}

// New creates a Manager filling through store on network loads. Both store
// and metrics may be nil.
func New(cfg Config, store cache.Store, metrics loader.Metrics) *Manager {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}

	return &Manager{
		cfg:       cfg,
		client:    client,
		cache:     store,
		metrics:   metrics,
		sem:       sem,
		downloads: make(map[string]*download),
		failed:    make(map[string]error),
	}
}

// CacheKey implements loader.Manager.
func (m *Manager) CacheKey(url string, ctx loader.Context) string {
	return loader.DefaultCacheKey(url, ctx)
}

// LoadImage implements loader.Manager. Callbacks run on the manager's
// worker goroutines; they are never invoked inline.
func (m *Manager) LoadImage(url string, opts loader.Options, lctx loader.Context, onProgress loader.ProgressFunc, onComplete loader.CompletionFunc) loader.Operation {
	op := newOperation(url, onProgress, onComplete)

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		go op.complete(nil, nil, loader.ErrManagerClosed, loader.SourceNone, true)
		return op
	}

	go m.run(op, url, opts, lctx)
	return op
}

// Close cancels every in-flight download. Subsequent LoadImage calls fail
// with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	downloads := make([]*download, 0, len(m.downloads))
	for _, d := range m.downloads {
		downloads = append(downloads, d)
	}
	m.mu.Unlock()

	for _, d := range downloads {
		d.cancel()
	}
}

// run drives one load: cache tiers first, then the shared download.
func (m *Manager) run(op *operation, url string, opts loader.Options, lctx loader.Context) {
	transformer := transformerFrom(lctx)
	effKey := m.CacheKey(url, lctx)
	if transformer != nil {
		effKey = cache.TransformedKey(effKey, transformer.TransformerKey())
	}

	start := time.Now()

	if m.cache != nil && !opts.Has(loader.OptFromLoaderOnly) {
		img, data, source := m.lookup(op, effKey)
		if op.Cancelled() {
			return
		}
		if img != nil {
			logger.Debug("image served from cache",
				"op_id", op.id, "url", url, "cache_key", effKey, "source", source.String())
			if m.metrics != nil {
				m.metrics.ObserveLoad(source, int64(len(data)), time.Since(start))
			}
			op.complete(img, data, nil, source, true)
			return
		}
	}

	if opts.Has(loader.OptFromCacheOnly) {
		if m.metrics != nil {
			m.metrics.ObserveFailure("cache_miss")
		}
		op.complete(nil, nil, fmt.Errorf("%w: %s", loader.ErrCacheMiss, url), loader.SourceNone, true)
		return
	}

	m.mu.Lock()
	lastErr, failedBefore := m.failed[url]
	m.mu.Unlock()
	if failedBefore && !opts.Has(loader.OptRetryFailed) {
		op.complete(nil, nil, fmt.Errorf("url previously failed: %w", lastErr), loader.SourceNone, true)
		return
	}

	m.join(op, url, opts, effKey, transformer, start)
}

// lookup walks the cache capabilities: fast memory path first, then the
// generic variant scoped to all tiers. Returns a nil image on a miss.
func (m *Manager) lookup(op *operation, key string) (image.Image, []byte, loader.CacheSource) {
	if fast := cache.AsFastMemoryCache(m.cache); fast != nil {
		if img := fast.LookupMemory(key); img != nil {
			return img, nil, loader.SourceMemory
		}
	}

	generic := cache.AsGenericCache(m.cache)
	if generic == nil {
		return nil, nil, loader.SourceNone
	}

	type result struct {
		img    image.Image
		data   []byte
		source loader.CacheSource
	}
	ch := make(chan result, 1)
	generic.Query(key, cache.QueryOptions{Tier: cache.TierAll}, func(img image.Image, data []byte, source loader.CacheSource) {
		ch <- result{img, data, source}
	})

	select {
	case r := <-ch:
		return r.img, r.data, r.source
	case <-op.ctx.Done():
		return nil, nil, loader.SourceNone
	}
}

// join attaches op to the shared download for effKey, starting one when
// none is running.
func (m *Manager) join(op *operation, url string, opts loader.Options, effKey string, transformer transform.Transformer, start time.Time) {
	for {
		if op.Cancelled() {
			return
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			op.complete(nil, nil, loader.ErrManagerClosed, loader.SourceNone, true)
			return
		}
		d := m.downloads[effKey]
		created := false
		if d == nil {
			d = newDownload(m, url, opts, effKey, transformer, start)
			m.downloads[effKey] = d
			created = true
		}
		m.mu.Unlock()

		if created {
			go d.fetch()
		}

		if d.subscribe(op) {
			return
		}

		// Lost the race against the download finishing: its result is in
		// the cache by now, so retry through the lookup path.
		if m.cache != nil && !opts.Has(loader.OptAvoidCacheWrite) {
			img, data, source := m.lookup(op, effKey)
			if img != nil {
				op.complete(img, data, nil, source, true)
				return
			}
		}
	}
}

// markFailed remembers a genuine fetch failure for url.
func (m *Manager) markFailed(url string, err error) {
	m.mu.Lock()
	m.failed[url] = err
	m.mu.Unlock()
}

// clearFailed forgets a previous failure after a successful fetch.
func (m *Manager) clearFailed(url string) {
	m.mu.Lock()
	delete(m.failed, url)
	m.mu.Unlock()
}

// forget removes a finished download from the coalescing table.
func (m *Manager) forget(effKey string) {
	m.mu.Lock()
	delete(m.downloads, effKey)
	m.mu.Unlock()
}

func (m *Manager) trackInFlight(delta int) {
	m.mu.Lock()
	m.inFlight += delta
	n := m.inFlight
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SetInFlight(n)
	}
}

// transformerFrom extracts the per-request transformer, if any.
func transformerFrom(lctx loader.Context) transform.Transformer {
	v, ok := lctx[loader.CtxTransformer]
	if !ok {
		return nil
	}
	t, _ := v.(transform.Transformer)
	return t
}
