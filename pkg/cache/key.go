package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix is the namespace of all page cache keys.
const KeyPrefix = "pager"

// Key identifies a cached page. Like pager.Request, it does not include
// the request kind.
type Key struct {
	// Endpoint is the paginated path (e.g. "/v1/markets/10000002/orders/")
	Endpoint string

	// QueryParams are the extra query parameters sent with every page
	QueryParams url.Values

	// Page is the page number
	Page int
}

// String generates a deterministic cache key string.
// Format: pager:endpoint:query1=val1:query2=val2:page=N
//
// Example:
//
//	pager:v1/markets/10000002/orders:order_type=all:page=2
func (k Key) String() string {
	return fmt.Sprintf("%s:page=%d", k.endpointPrefix(), k.Page)
}

// endpointPrefix is the key without its page, shared by all pages of an
// endpoint and query.
func (k Key) endpointPrefix() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			if key == "page" {
				continue
			}
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}

// Pattern returns the Redis match pattern covering every page of k's
// endpoint and query.
func (k Key) Pattern() string {
	return k.endpointPrefix() + ":page=*"
}
