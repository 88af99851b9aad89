// Package metrics exposes the Prometheus registry used by the pager packages.
// All metrics are defined in their respective packages (pager, fetcher, cache,
// ratelimit) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the pager packages.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Engine Metrics (pkg/pager):
//   - pager_fetches_total{kind, result} (Counter): Page fetches by request kind and result
//   - pager_fetch_duration_seconds{kind} (Histogram): Page fetch duration by request kind
//   - pager_triggers_dropped_total{kind} (Counter): Triggers dropped while a fetch was in flight
//   - pager_triggers_absorbed_total (Counter): Load-more triggers absorbed after the last page
//   - pager_items_accumulated (Gauge): Size of the most recently published list
//
// Request Metrics (pkg/fetcher):
//   - pager_http_requests_total{status} (Counter): Page requests by HTTP status
//   - pager_http_request_duration_seconds (Histogram): Page request duration
//
// Retry Metrics (pkg/fetcher):
//   - pager_http_retries_total{error_class} (Counter): Retry attempts by error class
//   - pager_http_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pager_http_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - pager_cache_hits_total (Counter): Page cache hits
//   - pager_cache_misses_total (Counter): Page cache misses
//   - pager_cache_bypasses_total (Counter): Refresh fetches that skipped the cache read
//   - pager_cache_errors_total{operation} (Counter): Cache operation errors
//
// Error Budget Metrics (pkg/ratelimit):
//   - pager_errors_remaining (Gauge): Errors remaining in the current window
//   - pager_rate_limit_blocks_total (Counter): Requests blocked on a critical budget
//   - pager_rate_limit_throttles_total (Counter): Requests throttled on a low budget
//
// Example Prometheus Queries:
//
//   # Fetch Failure Rate
//   sum(rate(pager_fetches_total{result="error"}[5m])) / sum(rate(pager_fetches_total[5m]))
//
//   # Dropped Triggers (scroll events arriving faster than pages load)
//   rate(pager_triggers_dropped_total[5m])
//
//   # Cache Hit Rate
//   sum(rate(pager_cache_hits_total[5m])) /
//   (sum(rate(pager_cache_hits_total[5m])) + sum(rate(pager_cache_misses_total[5m])))
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(pager_fetch_duration_seconds_bucket[5m]))
