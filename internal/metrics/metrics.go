package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder publishes Prometheus metrics for the cache core, the lock
// coordinator, and the HTTP surface in front of them. It implements
// cache.MetricsSink directly so the core needs no adapter layer.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheHits       *prometheus.CounterVec
	cacheMisses     prometheus.Counter
	cacheEvictions  *prometheus.CounterVec
	loadDuration    *prometheus.HistogramVec
	tierUnavailable *prometheus.CounterVec
	lockAcquire     *prometheus.CounterVec
	lockHold        prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogcache",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache hits by tier.",
	}, []string{"tier"})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalogcache",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache lookups that fell through every tier.",
	})

	cacheEvictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogcache",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Cache entry evictions by tier.",
	}, []string{"tier"})

	loadDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalogcache",
		Subsystem: "cache",
		Name:      "load_duration_seconds",
		Help:      "Latency of get_or_load calls, labeled by resolving tier.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"tag"})

	tierUnavailable := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogcache",
		Subsystem: "cache",
		Name:      "tier_unavailable_total",
		Help:      "Shared-tier failures treated as a soft miss or no-op.",
	}, []string{"op"})

	lockAcquire := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogcache",
		Subsystem: "lock",
		Name:      "acquire_total",
		Help:      "Stampede guard acquire attempts by outcome.",
	}, []string{"outcome"})

	lockHold := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "catalogcache",
		Subsystem: "lock",
		Name:      "hold_duration_seconds",
		Help:      "Duration a stampede guard lock was held before release or lease expiry.",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
	})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogcache",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed, by route and status.",
	}, []string{"route", "status"})

	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalogcache",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed HTTP requests.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"route"})

	reg.MustRegister(
		cacheHits, cacheMisses, cacheEvictions, loadDuration, tierUnavailable,
		lockAcquire, lockHold, httpRequests, httpLatency,
	)

	return &Recorder{
		gatherer:        reg,
		handler:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheEvictions:  cacheEvictions,
		loadDuration:    loadDuration,
		tierUnavailable: tierUnavailable,
		lockAcquire:     lockAcquire,
		lockHold:        lockHold,
		httpRequests:    httpRequests,
		httpLatency:     httpLatency,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCacheHit implements cache.MetricsSink.
func (r *Recorder) ObserveCacheHit(tier string) {
	if r == nil {
		return
	}
	r.cacheHits.WithLabelValues(tier).Inc()
}

// ObserveCacheMiss implements cache.MetricsSink.
func (r *Recorder) ObserveCacheMiss() {
	if r == nil {
		return
	}
	r.cacheMisses.Inc()
}

// ObserveCacheEviction implements cache.MetricsSink.
func (r *Recorder) ObserveCacheEviction(tier string) {
	if r == nil {
		return
	}
	r.cacheEvictions.WithLabelValues(tier).Inc()
}

// ObserveLoadDuration implements cache.MetricsSink.
func (r *Recorder) ObserveLoadDuration(tag string, d time.Duration) {
	if r == nil {
		return
	}
	r.loadDuration.WithLabelValues(tag).Observe(d.Seconds())
}

// ObserveTierUnavailable implements cache.MetricsSink.
func (r *Recorder) ObserveTierUnavailable(op string) {
	if r == nil {
		return
	}
	r.tierUnavailable.WithLabelValues(op).Inc()
}

// ObserveLockAcquire implements cache.MetricsSink.
func (r *Recorder) ObserveLockAcquire(outcome string) {
	if r == nil {
		return
	}
	r.lockAcquire.WithLabelValues(outcome).Inc()
}

// ObserveLockHold implements cache.MetricsSink.
func (r *Recorder) ObserveLockHold(d time.Duration) {
	if r == nil {
		return
	}
	r.lockHold.Observe(d.Seconds())
}

// ObserveHTTPRequest records the outcome and latency of a completed HTTP
// request served by internal/server.
func (r *Recorder) ObserveHTTPRequest(route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}
