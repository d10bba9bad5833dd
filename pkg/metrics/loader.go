package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pellucid/imageflow/pkg/loader"
)

// loaderMetrics is the Prometheus implementation of loader.Metrics.
type loaderMetrics struct {
	loads        *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	loadBytes    prometheus.Histogram
	failures     *prometheus.CounterVec
	inFlight     prometheus.Gauge
}

// NewLoaderMetrics creates a Prometheus-backed loader.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewLoaderMetrics() loader.Metrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &loaderMetrics{
		loads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "imageflow_loads_total",
				Help: "Finished loads by serving tier",
			},
			[]string{"source"}, // "memory", "disk", "network"
		),
		loadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "imageflow_load_duration_milliseconds",
				Help: "Duration of finished loads in milliseconds",
				Buckets: []float64{
					0.1, // memory hits
					1,
					5,
					10, // disk hits
					50,
					100, // fast network
					500,
					1000,
					5000,
					30000, // timeout ceiling
				},
			},
			[]string{"source"},
		),
		loadBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "imageflow_load_bytes",
				Help: "Distribution of encoded payload sizes",
				Buckets: []float64{
					4096,
					32768,
					131072,
					524288,
					1048576,
					4194304,
					10485760,
				},
			},
		),
		failures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "imageflow_load_failures_total",
				Help: "Terminal load failures by reason",
			},
			[]string{"reason"}, // "http", "decode", "cache_miss", "request"
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "imageflow_downloads_in_flight",
				Help: "Currently running download operations",
			},
		),
	}
}

func (m *loaderMetrics) ObserveLoad(source loader.CacheSource, bytes int64, duration time.Duration) {
	ms := float64(duration.Microseconds()) / 1000.0
	m.loads.WithLabelValues(source.String()).Inc()
	m.loadDuration.WithLabelValues(source.String()).Observe(ms)
	if bytes > 0 {
		m.loadBytes.Observe(float64(bytes))
	}
}

func (m *loaderMetrics) ObserveFailure(reason string) {
	m.failures.WithLabelValues(reason).Inc()
}

func (m *loaderMetrics) SetInFlight(n int) {
	m.inFlight.Set(float64(n))
}
