// Package metrics exposes the Prometheus registry used by the cache proxy.
// All metrics are defined in their respective packages (cache, client,
// audiocache, netfirst, broadcast) to maintain modularity and avoid
// circular dependencies.
//
// This package provides the scrape handler and documents every metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry scraped by Handler.
var Gatherer = prometheus.DefaultGatherer

// buildInfo carries the running version as a label.
var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "media_cache_proxy_build_info",
	Help: "Build information of the running proxy",
}, []string{"version"})

// SetBuildInfo records the running version.
func SetBuildInfo(version string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version).Set(1)
}

// Handler returns the HTTP handler serving the metrics in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - media_cache_hits_total{store} (Counter): Cache hits by store
//   - media_cache_misses_total{store} (Counter): Cache misses by store
//   - media_cache_evictions_total{store} (Counter): Entries removed by the count limit
//   - media_cache_stored_bytes_total{store} (Counter): Body bytes written
//   - media_cache_errors_total{store, operation} (Counter): Store operation errors
//
// Audio Cache Metrics (pkg/audiocache):
//   - media_audio_requests_total{result} (Counter): Media requests by result (hit, fetched, passthrough, error)
//   - media_audio_fetches_aborted_total{mode} (Counter): Cancelled fetches (direct, prefetch)
//   - media_audio_prefetch_total{outcome} (Counter): Prefetch outcomes (cached, skipped, error, aborted)
//
// Network-First Metrics (pkg/netfirst):
//   - media_netfirst_requests_total{result} (Counter): Requests by result (network, fallback_hit, fallback_miss)
//
// Status Event Metrics (pkg/broadcast):
//   - media_cache_events_total{kind} (Counter): Status events emitted by kind
//   - media_cache_events_dropped_total{sink} (Counter): Events dropped by a full sink
//
// Upstream Metrics (pkg/client):
//   - media_upstream_requests_total{status} (Counter): Upstream requests by HTTP status or error class
//   - media_upstream_request_duration_seconds{mode} (Histogram): Time to response headers (direct, background)
//   - media_upstream_errors_total{class} (Counter): Errors by class (client, server, network, aborted)
//   - media_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - media_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - media_upstream_retry_exhausted_total{error_class} (Counter): Fetches that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Audio Cache Hit Rate
//   sum(rate(media_cache_hits_total{store="audio"}[5m])) /
//   (sum(rate(media_cache_hits_total{store="audio"}[5m])) + sum(rate(media_cache_misses_total{store="audio"}[5m])))
//
//   # Prefetch Failure Rate
//   rate(media_audio_prefetch_total{outcome="error"}[5m])
//
//   # Network-First Fallbacks
//   rate(media_netfirst_requests_total{result=~"fallback_.*"}[5m])
//
//   # P95 Upstream Header Latency
//   histogram_quantile(0.95, rate(media_upstream_request_duration_seconds_bucket[5m]))
