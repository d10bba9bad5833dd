package httploader

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pellucid/imageflow/pkg/loader"
)

// operation is the per-caller handle returned by LoadImage. Several
// operations may share one download; cancelling an operation detaches it
// without disturbing the others.
type operation struct {
	id  string
	url string
	ctx context.Context

	cancelCtx  context.CancelFunc
	onProgress loader.ProgressFunc
	onComplete loader.CompletionFunc

	finished  atomic.Bool // terminal completion delivered
	cancelled atomic.Bool

	mu     sync.Mutex
	detach func() // set once the operation joins a shared download
}

func newOperation(url string, onProgress loader.ProgressFunc, onComplete loader.CompletionFunc) *operation {
	ctx, cancel := context.WithCancel(context.Background())
	return &operation{
		id:         uuid.NewString(),
		url:        url,
		ctx:        ctx,
		cancelCtx:  cancel,
		onProgress: onProgress,
		onComplete: onComplete,
	}
}

// Cancel implements loader.Operation. The terminal completion it delivers
// carries ErrCancelled, the cancellation-kind error consumers filter.
func (o *operation) Cancel() {
	if o.cancelled.Swap(true) {
		return
	}
	o.cancelCtx()

	o.mu.Lock()
	detach := o.detach
	o.mu.Unlock()
	if detach != nil {
		detach()
	}

	o.complete(nil, nil, loader.ErrCancelled, loader.SourceNone, true)
}

// Done implements loader.Operation.
func (o *operation) Done() bool {
	return o.finished.Load()
}

// Cancelled reports whether Cancel has been called.
func (o *operation) Cancelled() bool {
	return o.cancelled.Load()
}

func (o *operation) setDetach(fn func()) {
	o.mu.Lock()
	o.detach = fn
	o.mu.Unlock()

	// Cancel may have raced the registration; detach immediately so the
	// download doesn't keep a dead subscriber.
	if o.cancelled.Load() && fn != nil {
		fn()
	}
}

// complete delivers a completion, guaranteeing at most one terminal
// delivery and none after it.
func (o *operation) complete(img image.Image, data []byte, err error, source loader.CacheSource, finished bool) {
	if finished {
		if o.finished.Swap(true) {
			return
		}
	} else if o.finished.Load() {
		return
	}
	if o.onComplete != nil {
		o.onComplete(img, data, err, source, finished, o.url)
	}
}

// progress forwards byte counts until the terminal completion.
func (o *operation) progress(received, expected int64) {
	if o.finished.Load() || o.onProgress == nil {
		return
	}
	o.onProgress(received, expected)
}
