package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrBudgetExhausted is returned by Allow while the budget is critical.
var ErrBudgetExhausted = errors.New("error budget exhausted")

// Prometheus metrics for budget tracking.
var (
	errorsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pager_errors_remaining",
		Help: "Number of errors remaining in the current error window",
	})

	blocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_rate_limit_blocks_total",
		Help: "Total number of page requests blocked due to critical error budget",
	})

	throttlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_rate_limit_throttles_total",
		Help: "Total number of page requests throttled due to low error budget",
	})
)

// Redis hash fields of the stored state.
const (
	fieldErrorsRemaining = "errors_remaining"
	fieldResetAt         = "reset_at"
	fieldLastUpdate      = "last_update"
)

// Config holds budget configuration.
type Config struct {
	// Key is the Redis hash holding the shared state
	Key string

	// ThrottleDelay is the wait applied to requests in the warning range
	ThrottleDelay time.Duration
}

// DefaultConfig returns the default budget configuration.
func DefaultConfig() Config {
	return Config{
		Key:           "pager:error_budget",
		ThrottleDelay: 1 * time.Second,
	}
}

// Budget tracks the error budget in Redis and gates requests on it.
type Budget struct {
	redis  redis.Cmdable
	config Config
	logger zerolog.Logger
}

// NewBudget creates a budget backed by redisClient.
func NewBudget(redisClient redis.Cmdable, cfg Config, logger zerolog.Logger) *Budget {
	def := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.ThrottleDelay < 0 {
		cfg.ThrottleDelay = 0
	}
	return &Budget{
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

// State returns the shared budget, or DefaultState if none was stored or
// the stored window has expired.
func (b *Budget) State(ctx context.Context) (State, error) {
	fields, err := b.redis.HGetAll(ctx, b.config.Key).Result()
	if err != nil {
		return State{}, fmt.Errorf("get error budget: %w", err)
	}
	if len(fields) == 0 {
		b.logger.Debug().Msg("No error budget in Redis, assuming healthy state")
		return DefaultState(time.Now()), nil
	}

	remain, err := strconv.Atoi(fields[fieldErrorsRemaining])
	if err != nil {
		return State{}, fmt.Errorf("parse errors remaining: %w", err)
	}
	resetUnix, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return State{}, fmt.Errorf("parse reset timestamp: %w", err)
	}
	lastUpdate, err := time.Parse(time.RFC3339Nano, fields[fieldLastUpdate])
	if err != nil {
		return State{}, fmt.Errorf("parse last update: %w", err)
	}

	return State{
		ErrorsRemaining: remain,
		ResetAt:         time.Unix(resetUnix, 0),
		LastUpdate:      lastUpdate,
	}, nil
}

// Observe stores the budget carried by response headers. Responses
// without budget headers are ignored.
func (b *Budget) Observe(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	// the hash expires with the window, which resets the budget
	_, err = b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.config.Key, map[string]interface{}{
			fieldErrorsRemaining: state.ErrorsRemaining,
			fieldResetAt:         state.ResetAt.Unix(),
			fieldLastUpdate:      state.LastUpdate.Format(time.RFC3339Nano),
		})
		pipe.ExpireAt(ctx, b.config.Key, state.ResetAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store error budget in redis: %w", err)
	}

	errorsRemaining.Set(float64(state.ErrorsRemaining))

	switch {
	case state.Critical():
		b.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("Error budget CRITICAL - requests will be blocked")
	case state.Throttled():
		b.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("Error budget WARNING - requests will be throttled")
	default:
		b.logger.Debug().
			Int("errors_remaining", state.ErrorsRemaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.Healthy()).
			Msg("Error budget updated")
	}

	return nil
}

// Allow returns ErrBudgetExhausted while the budget is critical. In the
// warning range it waits ThrottleDelay (or until ctx is done) first.
func (b *Budget) Allow(ctx context.Context) error {
	state, err := b.State(ctx)
	if err != nil {
		return err
	}

	if state.Critical() {
		blocksTotal.Inc()
		b.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Error budget critical - blocking request")
		return fmt.Errorf("%w: %d errors remaining, resets in %s",
			ErrBudgetExhausted, state.ErrorsRemaining, state.TimeUntilReset().Round(time.Second))
	}

	if state.Throttled() && b.config.ThrottleDelay > 0 {
		throttlesTotal.Inc()
		b.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("delay", b.config.ThrottleDelay).
			Msg("Error budget low - throttling request")

		timer := time.NewTimer(b.config.ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return nil
}
