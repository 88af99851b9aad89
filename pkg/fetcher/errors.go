package fetcher

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the HTTP fetcher.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 420/520 error-limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassBudget represents requests refused by the local error budget
	// before they were sent.
	ErrorClassBudget ErrorClass = "budget"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents malformed page bodies or headers.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassCircuitOpen represents requests refused by the circuit breaker.
	ErrorClassCircuitOpen ErrorClass = "circuit_open"
)

// HTTPError represents a failed page request with additional context.
type HTTPError struct {
	StatusCode int
	ErrorClass ErrorClass
	Page       int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("page %d: %s error (status %d): %s: %v",
			e.Page, e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("page %d: %s error (status %d): %s",
		e.Page, e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// classOf returns the error class of err, or "" when err carries none.
func classOf(err error) ErrorClass {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.ErrorClass
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// client errors waste the error budget, decode errors repeat,
		// budget refusals and an open circuit outlast any backoff
		return false
	}
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == 420 || statusCode == 520:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// tripsBreaker reports whether err counts against upstream health. Requests
// that never reached upstream, were cancelled by the caller or were rejected
// for their content do not.
func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch classOf(err) {
	case ErrorClassClient, ErrorClassDecode, ErrorClassBudget:
		return false
	default:
		return true
	}
}
