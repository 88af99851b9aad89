package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/eve-esi-pager/internal/config"
	"github.com/Sternrassler/eve-esi-pager/pkg/cache"
	"github.com/Sternrassler/eve-esi-pager/pkg/fetcher"
	"github.com/Sternrassler/eve-esi-pager/pkg/logging"
	"github.com/Sternrassler/eve-esi-pager/pkg/metrics"
	"github.com/Sternrassler/eve-esi-pager/pkg/pager"
	"github.com/Sternrassler/eve-esi-pager/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func run(ctx context.Context, cfg config.Config, opts runOptions, out io.Writer) error {
	logger := logging.NewLogger("demo")

	source, cleanup, err := buildFetcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	refresh := make(chan struct{})
	loadMore := make(chan struct{})
	engine := pager.New(source, pager.Inputs{Refresh: refresh, LoadMore: loadMore}, cfg.Pager(),
		pager.WithLogger(logging.NewLogger("pager")))

	if cfg.Metrics.Addr != "" {
		srv := newServer(cfg.Metrics.Addr, engine)
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Serving /metrics and /health")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- engine.Run(runCtx) }()

	logger.Info().
		Str("source", cfg.Source).
		Str("engine_id", engine.ID()).
		Msg("Loading list")

	view := &listView{
		engine:      engine,
		refresh:     refresh,
		loadMore:    loadMore,
		settle:      opts.settle,
		maxFailures: opts.maxFailures,
		out:         out,
		logger:      logger,
	}
	total, viewErr := view.run(runCtx)

	if opts.serve && cfg.Metrics.Addr != "" && viewErr == nil {
		logger.Info().Msg("List complete, serving until interrupted")
		<-ctx.Done()
	}

	cancel()
	if err := <-done; err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	fmt.Fprintf(out, "loaded %d items\n", total)
	logger.Info().Int("items", total).Msg("Demo finished")

	// an interrupted run is not a failure
	if viewErr != nil && ctx.Err() == nil {
		return viewErr
	}
	return nil
}

// buildFetcher assembles the configured page source. With Redis configured,
// pages are cached and HTTP requests are gated on the shared error budget.
func buildFetcher(ctx context.Context, cfg config.Config, logger zerolog.Logger) (pager.PageFetcher, func(), error) {
	cleanup := func() {}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, cleanup, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		cleanup = func() { redisClient.Close() }
	}

	var source pager.PageFetcher
	switch cfg.Source {
	case config.SourceHTTP:
		opts := []fetcher.HTTPOption{fetcher.WithHTTPLogger(logging.NewLogger("page-fetcher"))}
		if redisClient != nil && cfg.Redis.Budget {
			budget := ratelimit.NewBudget(redisClient, cfg.Budget(), logging.NewLogger("error-budget"))
			opts = append(opts, fetcher.WithBudget(budget))
		}
		httpFetcher, err := fetcher.NewHTTP(cfg.Fetcher(), opts...)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("failed to create http fetcher: %w", err)
		}
		source = httpFetcher
	default:
		source = fetcher.NewStub(fetcher.DemoPages(), fetcher.WithDelay(cfg.Stub.Delay))
	}

	if redisClient != nil {
		source = cache.NewFetcher(source, cache.NewManager(redisClient), cfg.Cache())
	}

	return source, cleanup, nil
}

func newServer(addr string, engine *pager.Engine) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler(engine))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	EngineID string `json:"engine_id"`
	Network  string `json:"network"`
	Items    int    `json:"items"`
}

func healthHandler(engine *pager.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:   "ok",
			EngineID: engine.ID(),
			Network:  engine.Status().Latest().Phase.String(),
			Items:    len(engine.Items().Latest()),
		})
	}
}
