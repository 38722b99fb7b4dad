package catalog

import "github.com/l0p7/catalogcache/internal/catalog/cache"

// MetricsSink is the observability collaborator ProductService and the cache
// core report through. It is an alias of cache.MetricsSink rather than a
// redeclared interface so a single concrete Recorder satisfies both without
// an adapter, and so the two packages never risk drifting out of sync.
type MetricsSink = cache.MetricsSink

// NoopMetrics discards every observation.
var NoopMetrics = cache.NoopMetrics
