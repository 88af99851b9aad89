// Package config loads the pager-demo configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/cache"
	"github.com/Sternrassler/eve-esi-pager/pkg/fetcher"
	"github.com/Sternrassler/eve-esi-pager/pkg/logging"
	"github.com/Sternrassler/eve-esi-pager/pkg/pager"
	"github.com/Sternrassler/eve-esi-pager/pkg/ratelimit"
	"github.com/spf13/viper"
)

// Page sources.
const (
	SourceStub = "stub"
	SourceHTTP = "http"
)

// EnvPrefix prefixes every environment override, e.g. PAGER_HTTP_BASE_URL.
const EnvPrefix = "PAGER"

// Config holds application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Source  string        `mapstructure:"source"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Stub    StubConfig    `mapstructure:"stub"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// EngineConfig holds pagination engine settings.
type EngineConfig struct {
	FirstPage    int           `mapstructure:"first_page"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// StubConfig holds settings of the in-memory page source.
type StubConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

// HTTPConfig holds settings of the HTTP page source.
type HTTPConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Endpoint        string        `mapstructure:"endpoint"`
	UserAgent       string        `mapstructure:"user_agent"`
	NameField       string        `mapstructure:"name_field"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
}

// RedisConfig holds Redis settings. The page cache and the error budget are
// only used when Addr is set.
type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	Budget        bool          `mapstructure:"budget"`
	BudgetKey     string        `mapstructure:"budget_key"`
	ThrottleDelay time.Duration `mapstructure:"throttle_delay"`
}

// MetricsConfig holds the metrics server settings. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// PAGER_. When path is empty an optional pager.yaml in the working directory
// is read; an explicit path must exist.
func Load(path string) (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("source", SourceStub)
	v.SetDefault("engine.first_page", 1)
	v.SetDefault("engine.fetch_timeout", 30*time.Second)
	v.SetDefault("stub.delay", 200*time.Millisecond)
	v.SetDefault("http.base_url", "https://esi.evetech.net")
	v.SetDefault("http.endpoint", "/v1/markets/10000002/orders/")
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.name_field", "order_id")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.breaker_failures", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", cache.DefaultTTL)
	v.SetDefault("redis.budget", true)
	v.SetDefault("redis.budget_key", ratelimit.DefaultConfig().Key)
	v.SetDefault("redis.throttle_delay", ratelimit.DefaultConfig().ThrottleDelay)
	v.SetDefault("metrics.addr", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("pager")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(logging.LogLevel(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Engine.FirstPage < 1 {
		return fmt.Errorf("engine.first_page must be at least 1, got %d", c.Engine.FirstPage)
	}
	if c.Engine.FetchTimeout < 0 {
		return fmt.Errorf("engine.fetch_timeout must not be negative")
	}

	switch c.Source {
	case SourceStub:
	case SourceHTTP:
		if c.HTTP.BaseURL == "" {
			return fmt.Errorf("http.base_url is required for the http source")
		}
		if c.HTTP.UserAgent == "" {
			return fmt.Errorf("http.user_agent is required for the http source")
		}
	default:
		return fmt.Errorf("unknown source %q (want %s or %s)", c.Source, SourceStub, SourceHTTP)
	}
	return nil
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	cfg.Service = "pager-demo"
	return cfg
}

// Pager returns the engine configuration.
func (c Config) Pager() pager.Config {
	return pager.Config{
		FirstPage:    c.Engine.FirstPage,
		FetchTimeout: c.Engine.FetchTimeout,
	}
}

// Fetcher returns the HTTP fetcher configuration.
func (c Config) Fetcher() fetcher.HTTPConfig {
	cfg := fetcher.DefaultHTTPConfig(c.HTTP.BaseURL, c.HTTP.Endpoint, c.HTTP.UserAgent)
	cfg.NameField = c.HTTP.NameField
	cfg.Timeout = c.HTTP.Timeout
	cfg.Retry.MaxAttempts = c.HTTP.MaxAttempts
	cfg.BreakerFailures = c.HTTP.BreakerFailures
	return cfg
}

// Cache returns the page cache configuration.
func (c Config) Cache() cache.Config {
	return cache.Config{
		Endpoint: c.HTTP.Endpoint,
		TTL:      c.Redis.CacheTTL,
	}
}

// Budget returns the error budget configuration.
func (c Config) Budget() ratelimit.Config {
	return ratelimit.Config{
		Key:           c.Redis.BudgetKey,
		ThrottleDelay: c.Redis.ThrottleDelay,
	}
}
