package pager

import (
	"errors"
	"fmt"
)

// ErrEngineStarted is returned by Run when the engine loop is already running
// or has already been torn down.
var ErrEngineStarted = errors.New("engine already started")

// FetchError is carried by a Failed status and wraps the fetcher's error
// together with the request that produced it.
type FetchError struct {
	Request Request
	Err     error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d (%s): %v", e.Request.Page, e.Request.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
