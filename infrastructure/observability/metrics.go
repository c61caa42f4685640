// Package observability provides the Prometheus-backed ports.Metrics sink,
// built from CounterVec/HistogramVec collectors on a dedicated registry,
// and OpenTelemetry tracing helpers (a tier-span Tracer and a
// StoreAdapter decorator).
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cachecore/application/ports"
)

// PrometheusMetrics implements ports.Metrics using a dedicated
// prometheus.Registry, so a host application can mount it under its own
// /metrics endpoint without colliding with unrelated collectors.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	hits  *prometheus.CounterVec
	miss  *prometheus.CounterVec
	fills prometheus.Counter

	storeLatency  *prometheus.HistogramVec
	loaderLatency prometheus.Histogram
}

var (
	once     sync.Once
	instance *PrometheusMetrics
)

// NewPrometheusMetrics constructs a PrometheusMetrics registered against a
// fresh registry. Safe to call more than once; each call returns an
// independent collector set (tests rely on this to avoid global registry
// collisions).
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Number of cache reads that returned a usable value, labeled by freshness state.",
		}, []string{"state"}),
		miss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Number of cache reads that returned no value, labeled by cause.",
		}, []string{"cause"}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fills_total",
			Help:      "Number of single-flight leader computations that succeeded and were saved.",
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_store_latency_seconds",
			Help:      "Latency of store operations, labeled by operation name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		loaderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_loader_latency_seconds",
			Help:      "Latency of loader.Resolve calls made by the engine (leader path and fail-open path).",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(m.hits, m.miss, m.fills, m.storeLatency, m.loaderLatency)
	return m
}

// Default returns a process-wide PrometheusMetrics, constructing it on
// first use. Most host applications want exactly one of these wired to a
// single HTTP /metrics handler.
func Default() *PrometheusMetrics {
	once.Do(func() {
		instance = NewPrometheusMetrics("cachecore")
	})
	return instance
}

// Registry exposes the underlying registry so callers can mount a
// promhttp.HandlerFor(m.Registry(), ...) handler.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

var _ ports.Metrics = (*PrometheusMetrics)(nil)

// IncHit records a cache read that produced a usable value.
func (m *PrometheusMetrics) IncHit(state string) {
	m.hits.WithLabelValues(state).Inc()
}

// IncMiss records a cache read that produced no usable value.
func (m *PrometheusMetrics) IncMiss(cause string) {
	m.miss.WithLabelValues(cause).Inc()
}

// IncFill records a successful single-flight leader computation.
func (m *PrometheusMetrics) IncFill() {
	m.fills.Inc()
}

// ObserveStoreLatency records how long a store operation took.
func (m *PrometheusMetrics) ObserveStoreLatency(op string, d time.Duration) {
	m.storeLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveLoaderLatency records how long a loader.Resolve call took.
func (m *PrometheusMetrics) ObserveLoaderLatency(d time.Duration) {
	m.loaderLatency.Observe(d.Seconds())
}
