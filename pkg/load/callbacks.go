package load

import (
	"image"
	"sync"

	"github.com/pellucid/imageflow/pkg/loader"
)

// SuccessFunc is invoked once per successful terminal completion.
type SuccessFunc func(img image.Image, source loader.CacheSource)

// FailureFunc is invoked once per failed terminal completion.
type FailureFunc func(err error)

// Callbacks holds at most one external hook per kind. Each setter replaces
// the previous hook of that kind; nil clears it. There is no accumulation
// and no cross-kind ordering beyond what the coordinator documents.
type Callbacks struct {
	mu         sync.Mutex
	onSuccess  SuccessFunc
	onFailure  FailureFunc
	onProgress loader.ProgressFunc
}

// NewCallbacks returns an empty registry.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// OnSuccess replaces the success hook.
func (c *Callbacks) OnSuccess(fn SuccessFunc) {
	c.mu.Lock()
	c.onSuccess = fn
	c.mu.Unlock()
}

// OnFailure replaces the failure hook.
func (c *Callbacks) OnFailure(fn FailureFunc) {
	c.mu.Lock()
	c.onFailure = fn
	c.mu.Unlock()
}

// OnProgress replaces the progress hook.
func (c *Callbacks) OnProgress(fn loader.ProgressFunc) {
	c.mu.Lock()
	c.onProgress = fn
	c.mu.Unlock()
}

// Hooks are invoked outside the registry lock so they may re-enter setters.

func (c *Callbacks) emitSuccess(img image.Image, source loader.CacheSource) {
	c.mu.Lock()
	fn := c.onSuccess
	c.mu.Unlock()
	if fn != nil {
		fn(img, source)
	}
}

func (c *Callbacks) emitFailure(err error) {
	c.mu.Lock()
	fn := c.onFailure
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Callbacks) emitProgress(received, expected int64) {
	c.mu.Lock()
	fn := c.onProgress
	c.mu.Unlock()
	if fn != nil {
		fn(received, expected)
	}
}
