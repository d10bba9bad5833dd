// Package loader defines the fetch-manager boundary: the types and
// interfaces through which images are requested, delivered, and cancelled.
//
// Consumers (pkg/load) only depend on the interfaces in this package;
// the HTTP-backed implementation lives in the httploader subpackage and can
// be swapped for any other Manager.
package loader

import (
	"errors"
	"image"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrCancelled is the cancellation-kind error. Completions carrying it
	// mean the operation was cancelled on purpose, not that the fetch failed.
	// Callers that race cancel against completion must treat it as a no-op.
	ErrCancelled = errors.New("load operation cancelled")

	// ErrNoImage is reported when a load finishes without an image and
	// without an explicit failure from the transport or decoder.
	ErrNoImage = errors.New("load finished without an image")

	// ErrCacheMiss fails loads carrying OptFromCacheOnly when no cache tier
	// holds the image.
	ErrCacheMiss = errors.New("image not cached")

	// ErrManagerClosed is returned when LoadImage is called on a closed manager.
	ErrManagerClosed = errors.New("manager is closed")
)

// ============================================================================
// Options
// ============================================================================

// Options is a bitset controlling how a single load is performed.
type Options uint32

const (
	// OptRetryFailed retries a URL that previously failed instead of
	// short-circuiting on the remembered failure.
	OptRetryFailed Options = 1 << iota

	// OptProgressive delivers partial decodes as non-terminal completions
	// while the download is still running.
	OptProgressive

	// OptFromCacheOnly never hits the network; a cache miss fails the load.
	OptFromCacheOnly

	// OptFromLoaderOnly skips cache lookup and always downloads.
	OptFromLoaderOnly

	// OptAvoidCacheWrite downloads without storing the result in any cache tier.
	OptAvoidCacheWrite
)

// Has reports whether all bits in flag are set.
func (o Options) Has(flag Options) bool {
	return o&flag == flag
}

// ============================================================================
// Request context
// ============================================================================

// ContextKey identifies an entry in a load Context.
type ContextKey string

const (
	// CtxTransformer holds a transform.Transformer overriding the
	// coordinator-wide default for one request.
	CtxTransformer ContextKey = "imageflow.transformer"

	// CtxCacheKey overrides the cache key derived from the URL.
	CtxCacheKey ContextKey = "imageflow.cacheKey"
)

// Context carries per-request settings that don't warrant their own Options
// bit. It is a plain map; callers must treat a Context as immutable once
// handed to LoadImage.
type Context map[ContextKey]any

// Clone returns a shallow copy, or an empty Context when c is nil.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// ============================================================================
// Delivery
// ============================================================================

// CacheSource records which tier satisfied a load.
type CacheSource int

const (
	SourceNone CacheSource = iota
	SourceMemory
	SourceDisk
	SourceNetwork
)

func (s CacheSource) String() string {
	switch s {
	case SourceMemory:
		return "memory"
	case SourceDisk:
		return "disk"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}

// ProgressFunc receives raw byte counts while a download runs.
// expected is <= 0 when the server did not announce a length.
type ProgressFunc func(received, expected int64)

// CompletionFunc receives load results.
//
// finished=false marks a partial, progressive decode: more completions will
// follow and the final one has finished=true. Exactly one finished=true
// completion is delivered per operation unless the operation's callbacks are
// detached first.
type CompletionFunc func(img image.Image, data []byte, err error, source CacheSource, finished bool, sourceURL string)

// ============================================================================
// Manager boundary
// ============================================================================

// Operation is a non-owning, cancelable handle for one in-flight load.
// All methods are safe to call concurrently and after completion.
type Operation interface {
	// Cancel requests cooperative cancellation. The underlying work may
	// still deliver a completion afterwards; that completion carries
	// ErrCancelled.
	Cancel()

	// Done reports whether a terminal completion has been delivered.
	Done() bool
}

// Manager starts image loads and derives cache keys.
type Manager interface {
	// LoadImage starts an asynchronous load. onProgress and onComplete may
	// be nil. Callbacks run on unspecified goroutines; callers needing a
	// particular execution context must marshal themselves.
	LoadImage(url string, opts Options, ctx Context, onProgress ProgressFunc, onComplete CompletionFunc) Operation

	// CacheKey returns the deterministic cache key for url under ctx.
	// The key is transformer-agnostic; transformed variants are derived
	// with cache.TransformedKey.
	CacheKey(url string, ctx Context) string
}

// OptionsProcessor is an optional Manager capability that rewrites the
// request context before keys are derived or a fetch starts.
type OptionsProcessor interface {
	ProcessOptions(url string, opts Options, ctx Context) Context
}
