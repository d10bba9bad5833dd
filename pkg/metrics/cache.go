package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pellucid/imageflow/pkg/cache"
)

// cacheMetrics is the Prometheus implementation of cache.CacheMetrics.
type cacheMetrics struct {
	lookups       *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	storeBytes    *prometheus.HistogramVec
	evictions     *prometheus.CounterVec
	size          *prometheus.GaugeVec
}

// NewCacheMetrics creates a Prometheus-backed cache.CacheMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called); callers
// pass the nil through to cache implementations for zero overhead.
func NewCacheMetrics() cache.CacheMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "imageflow_cache_lookups_total",
				Help: "Cache lookups by tier and outcome",
			},
			[]string{"tier", "status"}, // status: "hit", "miss"
		),
		storeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "imageflow_cache_store_duration_milliseconds",
				Help: "Duration of cache stores in milliseconds",
				Buckets: []float64{
					0.1, // memory stores
					0.5,
					1,
					5,
					10,
					50,
					100, // disk stores
					500,
					1000,
				},
			},
			[]string{"tier"},
		),
		storeBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "imageflow_cache_store_bytes",
				Help: "Distribution of bytes stored per cache entry",
				Buckets: []float64{
					4096,    // icons
					32768,   // thumbnails
					131072,  // typical photos
					524288,
					1048576, // 1MB
					4194304,
					10485760, // 10MB
				},
			},
			[]string{"tier"},
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "imageflow_cache_evictions_total",
				Help: "Entries evicted by tier",
			},
			[]string{"tier"},
		),
		size: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "imageflow_cache_size_bytes",
				Help: "Current estimated cache size by tier",
			},
			[]string{"tier"},
		),
	}
}

func (m *cacheMetrics) ObserveHit(tier cache.Tier) {
	m.lookups.WithLabelValues(tier.String(), "hit").Inc()
}

func (m *cacheMetrics) ObserveMiss(tier cache.Tier) {
	m.lookups.WithLabelValues(tier.String(), "miss").Inc()
}

func (m *cacheMetrics) ObserveStore(tier cache.Tier, bytes int64, duration time.Duration) {
	ms := float64(duration.Microseconds()) / 1000.0
	m.storeDuration.WithLabelValues(tier.String()).Observe(ms)
	m.storeBytes.WithLabelValues(tier.String()).Observe(float64(bytes))
}

func (m *cacheMetrics) ObserveEviction(tier cache.Tier) {
	m.evictions.WithLabelValues(tier.String()).Inc()
}

func (m *cacheMetrics) SetSize(tier cache.Tier, bytes int64) {
	m.size.WithLabelValues(tier.String()).Set(float64(bytes))
}
