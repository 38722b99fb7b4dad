package cache

import "time"

// MetricsSink is the observability collaborator named in the design: the
// cache core emits hit/miss/eviction counters, load and lock timers through
// it, but never depends on a concrete metrics backend. Every constructor in
// this package substitutes NoopMetrics for a nil MetricsSink;
// internal/metrics.Recorder is nil-receiver-safe, so a typed nil *Recorder is
// safe to call into as well.
type MetricsSink interface {
	// ObserveCacheHit records a hit on the given tier ("l1" or "l2").
	ObserveCacheHit(tier string)
	// ObserveCacheMiss records a miss that fell through every tier.
	ObserveCacheMiss()
	// ObserveCacheEviction records a capacity/TTL eviction on the given tier.
	ObserveCacheEviction(tier string)
	// ObserveLoadDuration records how long a get_or_load call took and
	// which tag it resolved to ("L1", "L2", or "ORIGIN").
	ObserveLoadDuration(tag string, d time.Duration)
	// ObserveTierUnavailable records a shared-tier failure treated as a
	// soft miss or no-op.
	ObserveTierUnavailable(op string)
	// ObserveLockAcquire records a stampede guard acquire attempt outcome
	// ("acquired" or "timeout").
	ObserveLockAcquire(outcome string)
	// ObserveLockHold records how long a held lock was retained before
	// release or lease expiry.
	ObserveLockHold(d time.Duration)
}

// noopMetrics satisfies MetricsSink without recording anything; it keeps
// every component constructor from needing a nil check before every call.
type noopMetrics struct{}

func (noopMetrics) ObserveCacheHit(string)            {}
func (noopMetrics) ObserveCacheMiss()                 {}
func (noopMetrics) ObserveCacheEviction(string)        {}
func (noopMetrics) ObserveLoadDuration(string, time.Duration) {}
func (noopMetrics) ObserveTierUnavailable(string)      {}
func (noopMetrics) ObserveLockAcquire(string)          {}
func (noopMetrics) ObserveLockHold(time.Duration)      {}

// NoopMetrics is a shared MetricsSink that discards every observation.
var NoopMetrics MetricsSink = noopMetrics{}
