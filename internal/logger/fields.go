package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently across
// log statements so loads can be correlated end to end.
const (
	// Load identification
	KeyOpID     = "op_id"     // Operation id (one per LoadImage call)
	KeyURL      = "url"       // Image URL being loaded
	KeyCacheKey = "cache_key" // Effective (transformer-derived) cache key

	// Fetch
	KeyFormat   = "format"   // Decoded image format: png, jpeg, gif
	KeyBytes    = "bytes"    // Encoded payload size
	KeyReceived = "received" // Bytes received so far
	KeyExpected = "expected" // Bytes announced by the server
	KeyStatus   = "status"   // HTTP status code

	// Cache
	KeySource  = "source"  // Tier that served the load: memory, disk, network
	KeyTier    = "tier"    // Cache tier an operation targeted
	KeyEvicted = "evicted" // Number of entries evicted

	// Outcome
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyReason     = "reason"      // Failure category: http, decode, cache_miss
)

// Typed attribute constructors for the hot paths.

// OpID returns a slog.Attr for an operation id.
func OpID(id string) slog.Attr {
	return slog.String(KeyOpID, id)
}

// URL returns a slog.Attr for the image URL.
func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}

// CacheKey returns a slog.Attr for the effective cache key.
func CacheKey(k string) slog.Attr {
	return slog.String(KeyCacheKey, k)
}

// Source returns a slog.Attr for the serving tier.
func Source(s string) slog.Attr {
	return slog.String(KeySource, s)
}

// Bytes returns a slog.Attr for an encoded payload size.
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// Err returns a slog.Attr for an error, tolerating nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
