// Package cache provides a Redis page cache for the pagination engine.
//
// The cache stores decoded pages (pager.Response) rather than raw HTTP
// responses, keyed by endpoint, query and page number:
//
//	pager:v1/markets/10000002/orders:order_type=all:page=2
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//	cached := cache.NewFetcher(httpFetcher, manager, cache.Config{
//		Endpoint: "/v1/markets/10000002/orders/",
//		TTL:      5 * time.Minute,
//	})
//
//	engine := pager.New(cached, inputs, pager.DefaultConfig())
//
// # Refresh Semantics
//
// Load-more fetches read through the cache. Refresh fetches skip the read
// and overwrite the cached page, so pulling to refresh always shows current
// data while scrolling back through an endpoint stays cheap.
//
// # Metrics
//
//   - pager_cache_hits_total - Cache hits
//   - pager_cache_misses_total - Cache misses
//   - pager_cache_bypasses_total - Refresh fetches that skipped the read
//   - pager_cache_errors_total{operation} - Cache operation errors
package cache
