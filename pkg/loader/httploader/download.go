package httploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pellucid/imageflow/internal/bufpool"
	"github.com/pellucid/imageflow/internal/logger"
	"github.com/pellucid/imageflow/pkg/loader"
	"github.com/pellucid/imageflow/pkg/transform"
)

// progressiveDecodeStride is how many new bytes must arrive between partial
// decode attempts when OptProgressive is set.
const progressiveDecodeStride = 64 * 1024

// download is one shared fetch for an effective cache key. All operations
// requesting the same key while it runs subscribe to it; the last
// unsubscribe aborts the HTTP request.
type download struct {
	mgr         *Manager
	url         string
	opts        loader.Options
	effKey      string
	transformer transform.Transformer
	start       time.Time

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu     sync.Mutex
	subs   map[uint64]*operation
	nextID uint64
	closed bool
}

func newDownload(m *Manager, url string, opts loader.Options, effKey string, transformer transform.Transformer, start time.Time) *download {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	return &download{
		mgr:         m,
		url:         url,
		opts:        opts,
		effKey:      effKey,
		transformer: transformer,
		start:       start,
		ctx:         ctx,
		cancelCtx:   cancel,
		subs:        make(map[uint64]*operation),
	}
}

// subscribe attaches op. Returns false when the download already finished;
// the caller then retries through the cache.
func (d *download) subscribe(op *operation) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	id := d.nextID
	d.nextID++
	d.subs[id] = op
	d.mu.Unlock()

	op.setDetach(func() { d.unsubscribe(id) })
	return true
}

// unsubscribe detaches a cancelled operation. When the last subscriber
// leaves, the fetch itself is aborted.
func (d *download) unsubscribe(id uint64) {
	d.mu.Lock()
	delete(d.subs, id)
	empty := len(d.subs) == 0 && !d.closed
	d.mu.Unlock()

	if empty {
		d.cancelCtx()
	}
}

// cancel aborts the fetch regardless of subscribers. Used on manager Close.
func (d *download) cancel() {
	d.cancelCtx()
}

func (d *download) snapshot() []*operation {
	d.mu.Lock()
	ops := make([]*operation, 0, len(d.subs))
	for _, op := range d.subs {
		ops = append(ops, op)
	}
	d.mu.Unlock()
	return ops
}

// finish removes the download from the coalescing table, seals the
// subscriber set, and delivers the terminal completion to every subscriber.
func (d *download) finish(img image.Image, data []byte, err error, source loader.CacheSource) {
	d.cancelCtx()
	d.mgr.forget(d.effKey)

	d.mu.Lock()
	d.closed = true
	ops := make([]*operation, 0, len(d.subs))
	for _, op := range d.subs {
		ops = append(ops, op)
	}
	d.subs = nil
	d.mu.Unlock()

	for _, op := range ops {
		op.complete(img, data, err, source, true)
	}
}

// fail records and delivers a genuine failure. Cancellations never reach
// here; they are delivered as ErrCancelled without touching the failed set.
func (d *download) fail(reason string, err error) {
	logger.Warn("image download failed", "url", d.url, "reason", reason, "error", err)
	d.mgr.markFailed(d.url, err)
	if d.mgr.metrics != nil {
		d.mgr.metrics.ObserveFailure(reason)
	}
	d.finish(nil, nil, err, loader.SourceNone)
}

// fetch performs the HTTP download, decode, transform, and cache fill.
func (d *download) fetch() {
	if d.mgr.sem != nil {
		select {
		case d.mgr.sem <- struct{}{}:
			defer func() { <-d.mgr.sem }()
		case <-d.ctx.Done():
			d.finish(nil, nil, loader.ErrCancelled, loader.SourceNone)
			return
		}
	}

	d.mgr.trackInFlight(1)
	defer d.mgr.trackInFlight(-1)

	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, d.url, nil)
	if err != nil {
		d.fail("request", fmt.Errorf("invalid request for %s: %w", d.url, err))
		return
	}
	if d.mgr.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.mgr.cfg.UserAgent)
	}

	resp, err := d.mgr.client.Do(req)
	if err != nil {
		if d.ctx.Err() != nil && errors.Is(err, context.Canceled) {
			d.finish(nil, nil, loader.ErrCancelled, loader.SourceNone)
			return
		}
		d.fail("http", fmt.Errorf("fetch %s: %w", d.url, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.fail("http", fmt.Errorf("fetch %s: unexpected status %d", d.url, resp.StatusCode))
		return
	}

	data, err := d.readBody(resp)
	if err != nil {
		if d.ctx.Err() != nil {
			d.finish(nil, nil, loader.ErrCancelled, loader.SourceNone)
			return
		}
		d.fail("http", fmt.Errorf("read %s: %w", d.url, err))
		return
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		d.fail("decode", fmt.Errorf("decode %s: %w", d.url, err))
		return
	}

	if d.transformer != nil {
		img = d.transformer.Transform(img)
	}

	d.store(img, data)
	d.mgr.clearFailed(d.url)

	logger.Debug("image downloaded",
		"url", d.url, "cache_key", d.effKey, "format", format, "bytes", len(data),
		"duration", time.Since(d.start))
	if d.mgr.metrics != nil {
		d.mgr.metrics.ObserveLoad(loader.SourceNetwork, int64(len(data)), time.Since(d.start))
	}

	d.finish(img, data, nil, loader.SourceNetwork)
}

// readBody streams the response, fanning progress out to subscribers and
// attempting partial decodes when progressive loading was requested.
func (d *download) readBody(resp *http.Response) ([]byte, error) {
	expected := resp.ContentLength
	var data []byte
	if expected > 0 {
		data = make([]byte, 0, expected)
	}

	progressive := d.opts.Has(loader.OptProgressive)
	lastAttempt := 0

	buf := bufpool.GetChunk()
	defer bufpool.Put(buf)
	var received int64
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			received += int64(n)
			for _, op := range d.snapshot() {
				op.progress(received, expected)
			}

			if progressive && len(data)-lastAttempt >= progressiveDecodeStride && (expected <= 0 || received < expected) {
				lastAttempt = len(data)
				d.tryPartialDecode(data)
			}
		}
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// tryPartialDecode delivers a non-terminal completion when the bytes so far
// already decode. Best effort: most formats only decode once complete.
func (d *download) tryPartialDecode(data []byte) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil || img == nil {
		return
	}
	if d.transformer != nil {
		img = d.transformer.Transform(img)
	}
	for _, op := range d.snapshot() {
		op.complete(img, nil, nil, loader.SourceNetwork, false)
	}
}

// store fills the cache. Transformed results keep only the decoded image:
// the raw bytes describe the untransformed original and must not be
// persisted under the transformed key.
func (d *download) store(img image.Image, data []byte) {
	if d.mgr.cache == nil || d.opts.Has(loader.OptAvoidCacheWrite) {
		return
	}
	if d.transformer != nil {
		data = nil
	}
	if err := d.mgr.cache.StoreImage(d.effKey, img, data); err != nil {
		logger.Warn("cache fill failed", "url", d.url, "cache_key", d.effKey, "error", err)
	}
}
