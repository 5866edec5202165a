package rbac

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics exposes Prometheus collectors for the permission cache.
// A nil receiver records nothing, so instrumentation stays optional.
type CacheMetrics struct {
	reads    *prometheus.CounterVec
	rebuilds prometheus.Histogram
}

var (
	defaultCacheOnce    sync.Once
	defaultCacheMetrics *CacheMetrics
)

// NewCacheMetrics registers the cache collectors against the provided
// registerer. When the registerer is nil the default Prometheus registerer
// is used.
func NewCacheMetrics(registerer prometheus.Registerer) *CacheMetrics {
	if registerer == nil {
		defaultCacheOnce.Do(func() {
			defaultCacheMetrics = buildCacheMetrics(prometheus.DefaultRegisterer)
		})
		return defaultCacheMetrics
	}
	return buildCacheMetrics(registerer)
}

// Hit records a read served from the shared snapshot.
func (m *CacheMetrics) Hit() {
	if m == nil {
		return
	}
	m.reads.WithLabelValues("hit").Inc()
}

// Miss records a read that found no snapshot and triggered a rebuild.
func (m *CacheMetrics) Miss() {
	if m == nil {
		return
	}
	m.reads.WithLabelValues("miss").Inc()
}

// ObserveRebuild records the duration of a snapshot rebuild.
func (m *CacheMetrics) ObserveRebuild(d time.Duration) {
	if m == nil {
		return
	}
	m.rebuilds.Observe(d.Seconds())
}

func buildCacheMetrics(registerer prometheus.Registerer) *CacheMetrics {
	reads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eatthat_permission_cache_reads_total",
		Help: "Permission cache reads partitioned by hit or miss.",
	}, []string{"result"})
	rebuilds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eatthat_permission_cache_rebuild_duration_seconds",
		Help:    "Duration in seconds of permission snapshot rebuilds.",
		Buckets: prometheus.DefBuckets,
	})
	registerer.MustRegister(reads, rebuilds)
	return &CacheMetrics{reads: reads, rebuilds: rebuilds}
}
