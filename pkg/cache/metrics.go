package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by store name
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"store"},
	)

	// CacheMisses tracks cache misses by store name
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"store"},
	)

	// CacheEvictions tracks entries removed by the eviction policy
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_evictions_total",
			Help: "Total number of entries evicted by the count limit",
		},
		[]string{"store"},
	)

	// StoredBytes tracks body bytes written to a store
	StoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_stored_bytes_total",
			Help: "Total number of body bytes written to the cache",
		},
		[]string{"store"},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"store", "operation"}, // "open", "get", "put", "delete", "keys"
	)
)
