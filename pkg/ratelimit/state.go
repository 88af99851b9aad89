// Package ratelimit implements error budget tracking and request gating for
// the HTTP page fetcher. It follows the X-ESI-Error-Limit-Remain and
// X-ESI-Error-Limit-Reset headers so that a misbehaving endpoint does not get
// the client banned, and shares the budget across processes through Redis.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Headers carrying the error budget.
const (
	HeaderErrorLimitRemain = "X-ESI-Error-Limit-Remain"
	HeaderErrorLimitReset  = "X-ESI-Error-Limit-Reset"
)

// Thresholds for budget decisions.
const (
	// ErrorThresholdCritical blocks all requests when errors remaining falls below this value.
	ErrorThresholdCritical = 5

	// ErrorThresholdWarning applies throttling when errors remaining falls below this value.
	ErrorThresholdWarning = 20

	// ErrorThresholdHealthy indicates normal operation.
	ErrorThresholdHealthy = 50
)

// State is the current error budget.
type State struct {
	// ErrorsRemaining is the number of errors allowed before requests are refused upstream.
	ErrorsRemaining int

	// ResetAt is when the error window resets.
	ResetAt time.Time

	// LastUpdate is when this state was last observed.
	LastUpdate time.Time
}

// DefaultState is assumed until the first budget headers are observed.
func DefaultState(now time.Time) State {
	return State{
		ErrorsRemaining: 100,
		ResetAt:         now.Add(60 * time.Second),
		LastUpdate:      now,
	}
}

// ParseHeaders extracts the budget from response headers. It returns false
// when the response carries no budget headers at all.
func ParseHeaders(headers http.Header, now time.Time) (State, bool, error) {
	remainStr := headers.Get(HeaderErrorLimitRemain)
	if remainStr == "" {
		return State{}, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s header: %w", HeaderErrorLimitRemain, err)
	}

	resetStr := headers.Get(HeaderErrorLimitReset)
	if resetStr == "" {
		return State{}, false, fmt.Errorf("%s header missing", HeaderErrorLimitReset)
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s header: %w", HeaderErrorLimitReset, err)
	}

	return State{
		ErrorsRemaining: remain,
		ResetAt:         now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate:      now,
	}, true, nil
}

// IsStale returns true if the state is older than maxAge.
func (s State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Healthy reports whether no restrictions apply.
func (s State) Healthy() bool {
	return s.ErrorsRemaining >= ErrorThresholdHealthy
}

// Critical reports whether requests must be blocked.
func (s State) Critical() bool {
	return s.ErrorsRemaining < ErrorThresholdCritical
}

// Throttled reports whether requests must be slowed down.
func (s State) Throttled() bool {
	return s.ErrorsRemaining < ErrorThresholdWarning && !s.Critical()
}

// TimeUntilReset returns the duration until the error window resets, or 0
// once it has passed.
func (s State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}
