package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/cache"
	"github.com/Sternrassler/eve-esi-pager/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no pager.yaml is found.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, SourceStub, cfg.Source)
	assert.Equal(t, 1, cfg.Engine.FirstPage)
	assert.Equal(t, 30*time.Second, cfg.Engine.FetchTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Stub.Delay)
	assert.Equal(t, "https://esi.evetech.net", cfg.HTTP.BaseURL)
	assert.Equal(t, 3, cfg.HTTP.MaxAttempts)
	assert.Equal(t, uint32(5), cfg.HTTP.BreakerFailures)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, cache.DefaultTTL, cfg.Redis.CacheTTL)
	assert.True(t, cfg.Redis.Budget)
	assert.Equal(t, "pager:error_budget", cfg.Redis.BudgetKey)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("PAGER_SOURCE", "http")
	t.Setenv("PAGER_HTTP_USER_AGENT", "pager-test/1.0")
	t.Setenv("PAGER_ENGINE_FETCH_TIMEOUT", "5s")
	t.Setenv("PAGER_REDIS_ADDR", "redis:6379")
	t.Setenv("PAGER_LOG_PRETTY", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceHTTP, cfg.Source)
	assert.Equal(t, "pager-test/1.0", cfg.HTTP.UserAgent)
	assert.Equal(t, 5*time.Second, cfg.Engine.FetchTimeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_File(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.yaml")
	content := strings.Join([]string{
		"source: http",
		"log:",
		"  level: debug",
		"engine:",
		"  first_page: 2",
		"http:",
		"  endpoint: /v1/universe/types/",
		"  user_agent: file-agent/1.0",
		"  name_field: type_id",
		"metrics:",
		"  addr: :9090",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SourceHTTP, cfg.Source)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Engine.FirstPage)
	assert.Equal(t, "/v1/universe/types/", cfg.HTTP.Endpoint)
	assert.Equal(t, "type_id", cfg.HTTP.NameField)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pager.yaml"), []byte("stub:\n  delay: 1s\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Stub.Delay)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := inTempDir(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Log:    LogConfig{Level: "info"},
			Source: SourceHTTP,
			Engine: EngineConfig{FirstPage: 1},
			HTTP:   HTTPConfig{BaseURL: "https://esi.evetech.net", UserAgent: "test/1.0"},
		}
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"stub needs no http settings", func(c *Config) { c.Source = SourceStub; c.HTTP = HTTPConfig{} }, ""},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"first page zero", func(c *Config) { c.Engine.FirstPage = 0 }, "engine.first_page"},
		{"negative timeout", func(c *Config) { c.Engine.FetchTimeout = -time.Second }, "engine.fetch_timeout"},
		{"missing base url", func(c *Config) { c.HTTP.BaseURL = "" }, "http.base_url"},
		{"missing user agent", func(c *Config) { c.HTTP.UserAgent = "" }, "http.user_agent"},
		{"unknown source", func(c *Config) { c.Source = "ftp" }, "unknown source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errorMsg)
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	inTempDir(t)
	t.Setenv("PAGER_HTTP_MAX_ATTEMPTS", "7")
	t.Setenv("PAGER_REDIS_THROTTLE_DELAY", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, logging.LevelInfo, cfg.Logging().Level)
	assert.Equal(t, "pager-demo", cfg.Logging().Service)
	assert.Equal(t, 1, cfg.Pager().FirstPage)

	httpCfg := cfg.Fetcher()
	assert.Equal(t, 7, httpCfg.Retry.MaxAttempts)
	assert.Equal(t, "order_id", httpCfg.NameField)
	assert.Equal(t, "page", httpCfg.PageParam)

	assert.Equal(t, cfg.HTTP.Endpoint, cfg.Cache().Endpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.Budget().ThrottleDelay)
}
