package loader

import "time"

// Metrics collects loader observations. Implementations live in
// pkg/metrics; a nil Metrics disables collection with zero overhead.
type Metrics interface {
	// ObserveLoad records a finished load with the tier that served it.
	ObserveLoad(source CacheSource, bytes int64, duration time.Duration)

	// ObserveFailure records a terminal failure. reason is a small
	// cardinality label such as "http", "decode", or "cache_miss".
	ObserveFailure(reason string)

	// SetInFlight publishes the number of running download operations.
	SetInFlight(n int)
}
