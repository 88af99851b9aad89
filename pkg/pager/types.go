package pager

import (
	"context"
	"encoding/json"
	"fmt"
)

// Item is a single entry of the paginated list.
type Item struct {
	// Name is the display name of the item
	Name string `json:"name"`

	// Data is the raw upstream payload, if any
	Data json.RawMessage `json:"data,omitempty"`
}

// Cursor is the pagination position: either the next page to request or
// the exhausted marker.
type Cursor struct {
	Next int  `json:"next,omitempty"`
	Done bool `json:"done,omitempty"`
}

// NextPage returns a cursor pointing at page n.
func NextPage(n int) Cursor {
	return Cursor{Next: n}
}

// Exhausted returns the cursor that marks the last page as reached.
func Exhausted() Cursor {
	return Cursor{Done: true}
}

// Page returns the next page number and whether one exists.
func (c Cursor) Page() (int, bool) {
	if c.Done {
		return 0, false
	}
	return c.Next, true
}

// String implements fmt.Stringer.
func (c Cursor) String() string {
	if c.Done {
		return "exhausted"
	}
	return fmt.Sprintf("next(%d)", c.Next)
}

// RequestKind determines the requested page and how a response is merged.
type RequestKind string

const (
	// KindRefresh reloads from the first page and replaces the list.
	KindRefresh RequestKind = "refresh"

	// KindLoadMore requests the cursor's page and appends to the list.
	KindLoadMore RequestKind = "load_more"
)

// Request describes a single page fetch.
type Request struct {
	Page int
	Kind RequestKind
}

// Key is the lookup identity of a request. Kind is not part of it.
func (r Request) Key() int {
	return r.Page
}

// Response is the result of a successful page fetch.
type Response struct {
	Kind  RequestKind `json:"kind"`
	Items []Item      `json:"items"`
	Next  Cursor      `json:"next"`
}

// PageFetcher performs the request-for-page call.
type PageFetcher interface {
	// Fetch blocks until the page is available, the fetch fails or ctx is done.
	Fetch(ctx context.Context, req Request) (Response, error)
}

// FetcherFunc adapts a function to the PageFetcher interface.
type FetcherFunc func(ctx context.Context, req Request) (Response, error)

// Fetch implements PageFetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Phase is the discriminator of a NetworkState.
type Phase int

const (
	// PhaseIdle means no fetch is outstanding.
	PhaseIdle Phase = iota

	// PhaseRequesting means a fetch is in flight.
	PhaseRequesting

	// PhaseFailed reports a failed fetch. It is transient and always
	// followed by PhaseIdle.
	PhaseFailed
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequesting:
		return "requesting"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// NetworkState is the status published by the engine.
type NetworkState struct {
	Phase Phase
	Err   error
}

// Idle returns the resting state.
func Idle() NetworkState {
	return NetworkState{Phase: PhaseIdle}
}

// Requesting returns the in-flight state.
func Requesting() NetworkState {
	return NetworkState{Phase: PhaseRequesting}
}

// Failed returns a failure report carrying err.
func Failed(err error) NetworkState {
	return NetworkState{Phase: PhaseFailed, Err: err}
}

// String implements fmt.Stringer.
func (s NetworkState) String() string {
	if s.Phase == PhaseFailed && s.Err != nil {
		return fmt.Sprintf("failed: %v", s.Err)
	}
	return s.Phase.String()
}
