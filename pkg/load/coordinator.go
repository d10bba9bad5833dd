// Package load implements the per-request coordination core: it bridges the
// callback-based loader boundary to an observable State consumed by UI-style
// observers.
//
// Each Coordinator instance owns one immutable request and at most one
// in-flight Operation at a time (single-flight). Its job is purely
// orchestration: it starts loads, filters stale cancellation completions,
// marshals every State mutation onto one Dispatcher, and fans results out to
// the Callbacks registry. Caching, decoding, and retry all belong to the
// collaborators behind pkg/loader and pkg/cache.
package load

import (
	"errors"
	"image"
	"sync"

	"github.com/pellucid/imageflow/pkg/cache"
	"github.com/pellucid/imageflow/pkg/loader"
	"github.com/pellucid/imageflow/pkg/transform"
)

// Config wires a Coordinator or Prefetcher to its collaborators. Manager and
// URL are required; everything else is optional.
type Config struct {
	// Manager starts loads and derives cache keys.
	Manager loader.Manager

	// Cache is consulted by the prefetch path. May be nil, in which case
	// Prefetch is a no-op.
	Cache cache.Store

	// URL is the image to load. Fixed for the lifetime of the instance.
	URL string

	// Options controls fetch behavior for every load from this instance.
	Options loader.Options

	// Context carries per-request settings. Treated as immutable.
	Context loader.Context

	// Transformer is the instance-wide default, overridden per request by
	// a CtxTransformer context entry.
	Transformer transform.Transformer
}

// Coordinator drives the load/cancel lifecycle for one request.
//
// All methods are safe for concurrent use. Loader callbacks may arrive on
// any goroutine; the Coordinator filters the ones that lost a race against
// Cancel or Close and marshals surviving mutations through the State's
// Dispatcher.
type Coordinator struct {
	cfg       Config
	state     *State
	callbacks *Callbacks

	mu       sync.Mutex
	op       loader.Operation
	starting bool   // a Load is between the gate and storing its handle
	gen      uint64 // increments per Load; stale callbacks compare against it
	closed   bool
}

// NewCoordinator creates a Coordinator publishing into state and firing
// hooks from callbacks. Both may be shared with a Prefetcher built from the
// same Config.
func NewCoordinator(cfg Config, state *State, callbacks *Callbacks) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		state:     state,
		callbacks: callbacks,
	}
}

// State exposes the observable state this coordinator publishes into.
func (c *Coordinator) State() *State { return c.state }

// Callbacks exposes the hook registry.
func (c *Coordinator) Callbacks() *Callbacks { return c.callbacks }

// Load starts the fetch. While an Operation is already owned the call is a
// no-op: repeated Loads never restart the fetch or reset progress.
func (c *Coordinator) Load() {
	c.mu.Lock()
	if c.closed || c.op != nil || c.starting {
		c.mu.Unlock()
		return
	}
	// Reserve the slot before releasing the lock: LoadImage runs unlocked,
	// and a second Load arriving meanwhile must hit the gate above instead
	// of starting a second fetch.
	c.starting = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.state.apply(func(s *Snapshot) {
		s.Loading = true
	})

	op := c.cfg.Manager.LoadImage(c.cfg.URL, c.cfg.Options, c.cfg.Context,
		func(received, expected int64) {
			c.handleProgress(gen, received, expected)
		},
		func(img image.Image, data []byte, err error, source loader.CacheSource, finished bool, sourceURL string) {
			c.handleCompletion(gen, img, err, source, finished)
		},
	)

	// The manager may have delivered the terminal completion inline, in
	// which case the generation has already been retired and the handle
	// must not be resurrected.
	c.mu.Lock()
	c.starting = false
	keep := c.gen == gen && !c.closed && c.op == nil && op != nil && !op.Done()
	if keep {
		c.op = op
	}
	c.mu.Unlock()

	// A Close that raced the manager call leaves the operation orphaned;
	// cancel it so the fetch does not run to completion in the background.
	if !keep && op != nil && !op.Done() {
		op.Cancel()
	}
}

// Cancel signals cancellation on the owned Operation, clears it, and marks
// the state idle. Without an owned Operation it is a no-op. Idempotent.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	op := c.op
	c.op = nil
	c.mu.Unlock()

	if op == nil {
		return
	}
	op.Cancel()

	c.state.apply(func(s *Snapshot) {
		s.Loading = false
	})
}

// Close cancels any in-flight Operation and detaches the coordinator: late
// loader callbacks become safe no-ops. The State remains readable.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	op := c.op
	c.op = nil
	c.mu.Unlock()

	if op != nil {
		op.Cancel()
	}
}

// alive reports whether callbacks of generation gen may still act.
func (c *Coordinator) alive(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.gen == gen
}

func (c *Coordinator) handleProgress(gen uint64, received, expected int64) {
	if !c.alive(gen) {
		return
	}

	progress := 0.0
	if expected > 0 {
		progress = float64(received) / float64(expected)
	}

	// State assignment is marshaled; the raw counts go to the hook
	// synchronously on the loader's goroutine.
	c.state.apply(func(s *Snapshot) {
		s.Progress = progress
	})
	c.callbacks.emitProgress(received, expected)
}

func (c *Coordinator) handleCompletion(gen uint64, img image.Image, err error, source loader.CacheSource, finished bool) {
	// A cancellation completion must not clear or resurrect the published
	// result, but the handle still has to be released: the manager may
	// cancel an operation on its own (on manager close, for instance)
	// without this coordinator ever calling Cancel.
	if errors.Is(err, loader.ErrCancelled) {
		c.retireCancelled(gen, finished)
		return
	}
	if !c.alive(gen) {
		return
	}

	if finished {
		c.mu.Lock()
		if c.gen == gen {
			c.op = nil
		}
		c.mu.Unlock()
	}

	c.state.apply(func(s *Snapshot) {
		s.Image = img
		s.Err = err
		s.Incremental = !finished
		if finished {
			s.Loading = false
			s.Progress = 1
		}
	})

	if !finished {
		return
	}
	if img != nil {
		c.callbacks.emitSuccess(img, source)
		return
	}
	if err == nil {
		err = loader.ErrNoImage
	}
	c.callbacks.emitFailure(err)
}

// retireCancelled releases the handle after a terminal cancellation that the
// coordinator did not initiate. Image, error, and progress stay untouched and
// no hook fires; only the ownership and the Loading flag move, so a future
// Load starts fresh instead of hitting the single-flight gate forever.
func (c *Coordinator) retireCancelled(gen uint64, finished bool) {
	if !finished {
		return
	}

	c.mu.Lock()
	owned := !c.closed && c.gen == gen && c.op != nil
	if owned {
		c.op = nil
	}
	c.mu.Unlock()

	if owned {
		c.state.apply(func(s *Snapshot) {
			s.Loading = false
		})
	}
}
