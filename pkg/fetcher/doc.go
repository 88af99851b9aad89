// Package fetcher provides pager.PageFetcher implementations.
//
// Stub serves canned pages from memory and backs tests and the demo binary.
// HTTP reads a paginated JSON endpoint in the style of EVE ESI: every page
// is a JSON array, the page number travels in the "page" query parameter
// and the X-Pages response header carries the total page count.
//
// # HTTP Fetcher
//
// Every page request passes through, from the outside in:
//
//  1. retry with exponential backoff and ±20% jitter, tuned per error class
//  2. a circuit breaker (sony/gobreaker) that opens after consecutive
//     server, network or error-limit failures; cancelled requests and
//     budget refusals never count
//  3. an optional Budget (see pkg/ratelimit) that blocks or throttles
//     requests while the shared error budget is low
//
// Client (4xx), decode, budget and open-circuit errors are never retried.
//
// # Usage
//
//	cfg := fetcher.DefaultHTTPConfig("https://esi.evetech.net",
//	    "/v1/markets/10000002/orders/", "MyApp/1.0.0 (contact@example.com)")
//	cfg.NameField = "order_id"
//
//	f, err := fetcher.NewHTTP(cfg, fetcher.WithBudget(budget))
//	if err != nil {
//	    return err
//	}
//	engine := pager.New(f, inputs, pager.DefaultConfig())
package fetcher
