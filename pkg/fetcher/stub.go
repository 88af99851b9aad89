package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/pager"
)

// ErrUnmappedRequest is returned by Stub for pages it has no response for.
var ErrUnmappedRequest = errors.New("no stub response for request")

// Stub is an in-memory PageFetcher serving canned responses keyed by page
// number. It is used by tests and by the demo binary.
type Stub struct {
	mu           sync.Mutex
	pages        map[int]pager.Response
	delay        time.Duration
	hangUnmapped bool
	calls        []pager.Request
}

// StubOption customizes a Stub.
type StubOption func(*Stub)

// WithDelay delays every response by d, like a slow network would.
func WithDelay(d time.Duration) StubOption {
	return func(s *Stub) {
		s.delay = d
	}
}

// WithHangOnUnmapped makes unmapped pages block until ctx is done instead
// of failing.
func WithHangOnUnmapped() StubOption {
	return func(s *Stub) {
		s.hangUnmapped = true
	}
}

// NewStub creates a stub serving the given pages.
func NewStub(pages map[int]pager.Response, opts ...StubOption) *Stub {
	s := &Stub{
		pages: make(map[int]pager.Response, len(pages)),
	}
	for page, resp := range pages {
		s.pages[page] = resp
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set maps page to resp, replacing any previous response.
func (s *Stub) Set(page int, resp pager.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = resp
}

// Fetch implements pager.PageFetcher. The request's kind is stamped onto
// the returned response.
func (s *Stub) Fetch(ctx context.Context, req pager.Request) (pager.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	resp, ok := s.pages[req.Key()]
	delay := s.delay
	hang := s.hangUnmapped
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return pager.Response{}, ctx.Err()
		case <-timer.C:
		}
	}

	if !ok {
		if hang {
			<-ctx.Done()
			return pager.Response{}, ctx.Err()
		}
		return pager.Response{}, fmt.Errorf("%w: page %d", ErrUnmappedRequest, req.Page)
	}

	resp.Kind = req.Kind
	resp.Items = append([]pager.Item(nil), resp.Items...)
	return resp, nil
}

// Calls returns the requests received so far, in order.
func (s *Stub) Calls() []pager.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pager.Request(nil), s.calls...)
}

// DemoPages returns three pages of 20, 20 and 10 items named "No. 0" to
// "No. 49". The last page exhausts the cursor.
func DemoPages() map[int]pager.Response {
	return map[int]pager.Response{
		1: {Items: NumberedItems(0, 20), Next: pager.NextPage(2)},
		2: {Items: NumberedItems(20, 40), Next: pager.NextPage(3)},
		3: {Items: NumberedItems(40, 50), Next: pager.Exhausted()},
	}
}

// NumberedItems returns items named "No. from" up to but excluding "No. to".
func NumberedItems(from, to int) []pager.Item {
	items := make([]pager.Item, 0, to-from)
	for i := from; i < to; i++ {
		items = append(items, pager.Item{Name: fmt.Sprintf("No. %d", i)})
	}
	return items
}
