package cache

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/pager"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long fetched pages stay cached by default.
const DefaultTTL = 5 * time.Minute

// Config holds the caching fetcher configuration.
type Config struct {
	// Endpoint and QueryParams namespace the cached pages
	Endpoint    string
	QueryParams url.Values

	// TTL is how long a page stays cached
	TTL time.Duration
}

// Fetcher is a read-through page cache in front of another PageFetcher.
// Load-more fetches are served from cache when possible. Refresh fetches
// always reach the upstream fetcher and overwrite the cached page, so a
// refresh shows current data. Cache failures fall back to the upstream.
type Fetcher struct {
	next    pager.PageFetcher
	manager *Manager
	config  Config
	logger  zerolog.Logger
}

// NewFetcher wraps next with the page cache.
func NewFetcher(next pager.PageFetcher, manager *Manager, cfg Config) *Fetcher {
	if next == nil {
		panic("page fetcher cannot be nil")
	}
	if manager == nil {
		panic("cache manager cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Fetcher{
		next:    next,
		manager: manager,
		config:  cfg,
		logger:  log.With().Str("component", "page-cache").Logger(),
	}
}

func (f *Fetcher) key(page int) Key {
	return Key{
		Endpoint:    f.config.Endpoint,
		QueryParams: f.config.QueryParams,
		Page:        page,
	}
}

// Fetch implements pager.PageFetcher.
func (f *Fetcher) Fetch(ctx context.Context, req pager.Request) (pager.Response, error) {
	key := f.key(req.Key())

	if req.Kind == pager.KindRefresh {
		CacheBypasses.Inc()
	} else {
		entry, err := f.manager.Get(ctx, key)
		switch {
		case err == nil:
			f.logger.Debug().
				Str("key", key.String()).
				Dur("ttl", entry.TTL()).
				Msg("Page cache hit")
			resp := entry.Response
			resp.Kind = req.Kind
			return resp, nil
		case !errors.Is(err, ErrCacheMiss):
			f.logger.Warn().Err(err).Str("key", key.String()).Msg("Page cache get error")
		}
	}

	resp, err := f.next.Fetch(ctx, req)
	if err != nil {
		return pager.Response{}, err
	}

	if err := f.manager.Set(ctx, key, NewEntry(resp, f.config.TTL)); err != nil {
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache page")
	}

	return resp, nil
}

// Invalidate drops every cached page of the configured endpoint.
func (f *Fetcher) Invalidate(ctx context.Context) (int, error) {
	return f.manager.Invalidate(ctx, f.key(0))
}
