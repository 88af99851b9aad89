package cache

import (
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/pager"
)

// Entry represents a cached page.
type Entry struct {
	// Response is the decoded page
	Response pager.Response `json:"response"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when the page was cached
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry wraps resp in an entry that expires after ttl.
func NewEntry(resp pager.Response, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Response: resp,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
