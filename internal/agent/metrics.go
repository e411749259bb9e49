package agent

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "budget",
			Subsystem: "agent",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache name and result.",
		},
		[]string{"cache", "result"},
	)
	cacheStores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "budget",
			Subsystem: "agent",
			Name:      "cache_stores_total",
			Help:      "Responses written into a cache.",
		},
		[]string{"cache"},
	)
	upstreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "budget",
			Subsystem: "agent",
			Name:      "upstream_failures_total",
			Help:      "Upstream fetches that got no response.",
		},
		[]string{"route"},
	)
	warmFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "budget",
			Subsystem: "agent",
			Name:      "warm_fetches_total",
			Help:      "Background listing fetches by result.",
		},
		[]string{"result"},
	)
	cachesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "budget",
			Subsystem: "agent",
			Name:      "caches_deleted_total",
			Help:      "Stale named caches removed on activation.",
		},
	)
)

// RegisterMetrics registers the agent collectors on the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(cacheLookups, cacheStores, upstreamFailures, warmFetches, cachesDeleted)
	})
}

func recordLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}
