// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is added to every entry when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level, err := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	if err != nil {
		logger.Warn().Err(err).Msg("Falling back to info level")
	}

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown levels map to
// info and return an error.
func ParseLevel(level LogLevel) (zerolog.Level, error) {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Triggers dropped while a fetch is in flight
//   - Load-more absorbed after the last page
//   - Cache operations (hit/miss/bypass, key, TTL)
//   - Decoded pages and retry backoffs
//
// Info: Normal operation events
//   - Completed page fetches (page, kind, items, total)
//   - Retries that eventually succeeded
//   - Demo startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Failed page fetches (published as a Failed status)
//   - Error budget throttling
//   - Circuit breaker state changes
//   - Cache errors (fallback to the upstream fetcher)
//
// Error: Error conditions requiring attention
//   - Page requests that failed at the transport level
//   - Critical error budget blocks
//   - Configuration errors
//
// Context Fields:
//   - component: pager, page-fetcher, page-cache, error-budget, demo
//   - engine_id: Engine instance identifier
//   - page: Requested page number
//   - kind: Request kind (refresh, load_more)
//   - items / total: Items in the page / in the accumulated list
//   - cursor: Cursor after the fetch (next(n) or exhausted)
//   - duration: Fetch duration
//   - error_class: Error classification (client, server, rate_limit, budget, network, decode, circuit_open)
//   - errors_remaining: Current error budget
