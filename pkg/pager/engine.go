package pager

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds engine configuration.
type Config struct {
	// FirstPage is the page requested by a refresh
	FirstPage int

	// FetchTimeout bounds a single page fetch (0 disables the timeout)
	FetchTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		FirstPage:    1,
		FetchTimeout: 30 * time.Second,
	}
}

// Inputs are the trigger streams driving the engine. A nil or closed
// channel never fires.
type Inputs struct {
	Refresh  <-chan struct{}
	LoadMore <-chan struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine is the pagination state machine. Its state is owned by the Run
// loop; callers observe it only through Items and Status.
type Engine struct {
	id      string
	fetcher PageFetcher
	inputs  Inputs
	config  Config
	logger  zerolog.Logger

	items  *Broadcast[[]Item]
	status *Broadcast[NetworkState]

	started atomic.Bool
}

// fetchResult is delivered from the fetch goroutine back to the loop.
type fetchResult struct {
	req      Request
	resp     Response
	err      error
	duration time.Duration
}

// New creates an engine. Items publishes the empty list and Status
// publishes Idle right away; nothing is fetched until Run is called and a
// trigger fires.
func New(fetcher PageFetcher, inputs Inputs, cfg Config, opts ...Option) *Engine {
	if fetcher == nil {
		panic("page fetcher cannot be nil")
	}
	if cfg.FirstPage <= 0 {
		cfg.FirstPage = 1
	}
	if cfg.FetchTimeout < 0 {
		cfg.FetchTimeout = 0
	}

	e := &Engine{
		id:      uuid.NewString(),
		fetcher: fetcher,
		inputs:  inputs,
		config:  cfg,
		logger:  log.With().Str("component", "pager").Logger(),
		items:   NewBroadcast([]Item{}),
		status:  NewBroadcast(Idle()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("engine_id", e.id).Logger()

	return e
}

// ID returns the engine's instance identifier used in logs.
func (e *Engine) ID() string {
	return e.id
}

// Items returns the accumulated list output.
func (e *Engine) Items() *Broadcast[[]Item] {
	return e.items
}

// Status returns the network status output.
func (e *Engine) Status() *Broadcast[NetworkState] {
	return e.status
}

// Run processes triggers and fetch completions one at a time until ctx is
// cancelled. At most one fetch is outstanding; triggers arriving meanwhile
// are dropped. On cancellation the in-flight fetch is cancelled without
// waiting for the fetcher, both outputs are closed and Run returns nil. Run
// may only be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrEngineStarted
	}
	defer e.status.Close()
	defer e.items.Close()

	e.logger.Debug().
		Int("first_page", e.config.FirstPage).
		Dur("fetch_timeout", e.config.FetchTimeout).
		Msg("Engine started")

	st := newState(e.config.FirstPage)
	refresh, loadMore := e.inputs.Refresh, e.inputs.LoadMore

	var (
		inflight    <-chan fetchResult
		cancelFetch context.CancelFunc
	)

	for {
		var kind RequestKind

		select {
		case <-ctx.Done():
			// the fetch goroutine delivers into a buffered channel and exits
			// on its own, even when the fetcher ignores cancellation
			if inflight != nil {
				cancelFetch()
				e.logger.Debug().Msg("In-flight fetch released on teardown")
			}
			e.logger.Debug().Msg("Engine stopped")
			return nil

		case _, ok := <-refresh:
			if !ok {
				refresh = nil
				continue
			}
			kind = KindRefresh

		case _, ok := <-loadMore:
			if !ok {
				loadMore = nil
				continue
			}
			kind = KindLoadMore

		case res := <-inflight:
			cancelFetch()
			inflight, cancelFetch = nil, nil
			st = e.complete(st, res)
			continue
		}

		if inflight != nil {
			triggersDroppedTotal.WithLabelValues(string(kind)).Inc()
			e.logger.Debug().Str("kind", string(kind)).Msg("Trigger dropped, fetch in flight")
			continue
		}

		req, ok := st.requestFor(kind, e.config.FirstPage)
		if !ok {
			triggersAbsorbedTotal.Inc()
			e.logger.Debug().Msg("Load-more absorbed, last page reached")
			continue
		}

		inflight, cancelFetch = e.start(ctx, req)
	}
}

// start publishes Requesting and launches the fetch. The returned channel
// always receives exactly one result, whatever way the fetch ends.
func (e *Engine) start(ctx context.Context, req Request) (<-chan fetchResult, context.CancelFunc) {
	var (
		fetchCtx context.Context
		cancel   context.CancelFunc
	)
	if e.config.FetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, e.config.FetchTimeout)
	} else {
		fetchCtx, cancel = context.WithCancel(ctx)
	}

	e.status.Publish(Requesting())
	e.logger.Debug().
		Int("page", req.Page).
		Str("kind", string(req.Kind)).
		Msg("Fetching page")

	done := make(chan fetchResult, 1)
	go func() {
		res := fetchResult{req: req}
		begin := time.Now()
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("page fetcher panicked: %v", r)
			}
			res.duration = time.Since(begin)
			done <- res
		}()
		res.resp, res.err = e.fetcher.Fetch(fetchCtx, req)
	}()

	return done, cancel
}

// complete folds a finished fetch into the state and publishes the
// outcome. Failures leave the state untouched.
func (e *Engine) complete(st state, res fetchResult) state {
	kind := string(res.req.Kind)
	fetchDuration.WithLabelValues(kind).Observe(res.duration.Seconds())

	if res.err != nil {
		fetchesTotal.WithLabelValues(kind, "error").Inc()
		err := &FetchError{Request: res.req, Err: res.err}

		e.logger.Warn().
			Err(res.err).
			Int("page", res.req.Page).
			Str("kind", kind).
			Dur("duration", res.duration).
			Msg("Page fetch failed")

		e.status.Publish(Failed(err))
		e.status.Publish(Idle())
		return st
	}

	resp := res.resp
	if resp.Kind == "" {
		resp.Kind = res.req.Kind
	}

	next := st.apply(resp)
	fetchesTotal.WithLabelValues(kind, "success").Inc()
	itemsAccumulated.Set(float64(len(next.accumulated)))

	e.logger.Info().
		Int("page", res.req.Page).
		Str("kind", string(resp.Kind)).
		Int("items", len(resp.Items)).
		Int("total", len(next.accumulated)).
		Str("cursor", next.cursor.String()).
		Dur("duration", res.duration).
		Msg("Page fetch complete")

	e.items.Publish(next.accumulated)
	e.status.Publish(Idle())
	return next
}
