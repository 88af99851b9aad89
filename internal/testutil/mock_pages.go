// Package testutil provides testing utilities for the pager.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockPageResponse defines the behavior for a mock page response.
type MockPageResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPages is a configurable mock paginated endpoint for testing.
type MockPages struct {
	server   *httptest.Server
	mu       sync.RWMutex
	endpoint string
	pages    map[int]MockPageResponse
	queued   map[int][]MockPageResponse

	// Tracking
	requests          []int
	lastRequestHeader http.Header
}

// NewMockPages creates a mock server answering on endpoint. Pages are read
// from the "page" query parameter and default to 1.
func NewMockPages(endpoint string) *MockPages {
	mock := &MockPages{
		endpoint: endpoint,
		pages:    make(map[int]MockPageResponse),
		queued:   make(map[int][]MockPageResponse),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockPages) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPages) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockPages) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.lastRequestHeader = nil
}

// SetPage configures the response for page.
func (m *MockPages) SetPage(page int, resp MockPageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = resp
}

// QueueResponse serves resp once for page before falling back to the
// response configured with SetPage.
func (m *MockPages) QueueResponse(page int, resp MockPageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[page] = append(m.queued[page], resp)
}

// Requests returns the requested page numbers in order.
func (m *MockPages) Requests() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.requests...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockPages) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequestHeader returns the headers of the latest request.
func (m *MockPages) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

func (m *MockPages) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != m.endpoint {
		http.NotFound(w, r)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, `{"error": "invalid page"}`, http.StatusBadRequest)
			return
		}
		page = n
	}

	m.mu.Lock()
	m.requests = append(m.requests, page)
	m.lastRequestHeader = r.Header.Clone()
	resp, ok := m.pages[page]
	if queue := m.queued[page]; len(queue) > 0 {
		resp, ok = queue[0], true
		m.queued[page] = queue[1:]
	}
	m.mu.Unlock()

	if !ok {
		resp = NewNotFoundResponse()
	}
	write(w, r, resp)
}

func write(w http.ResponseWriter, r *http.Request, resp MockPageResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// NewItemsPage creates a 200 OK page of named items out of totalPages.
func NewItemsPage(totalPages int, names ...string) MockPageResponse {
	type item struct {
		Name string `json:"name"`
	}
	items := make([]item, 0, len(names))
	for _, name := range names {
		items = append(items, item{Name: name})
	}
	body, _ := json.Marshal(items)

	return MockPageResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers: map[string]string{
			"X-Pages":                  strconv.Itoa(totalPages),
			"X-ESI-Error-Limit-Remain": "100",
			"X-ESI-Error-Limit-Reset":  "60",
			"Content-Type":             "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockPageResponse {
	return MockPageResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
		Headers: map[string]string{
			"X-ESI-Error-Limit-Remain": "99",
			"X-ESI-Error-Limit-Reset":  "60",
			"Content-Type":             "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockPageResponse {
	return MockPageResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"X-ESI-Error-Limit-Remain": "95",
			"X-ESI-Error-Limit-Reset":  "60",
			"Content-Type":             "application/json; charset=utf-8",
		},
	}
}

// NewErrorLimitedResponse creates a 420 response as sent once the error
// limit is reached.
func NewErrorLimitedResponse() MockPageResponse {
	return MockPageResponse{
		StatusCode: 420,
		Body:       `{"error": "This software has exceeded the error limit"}`,
		Headers: map[string]string{
			"X-ESI-Error-Limit-Remain": "0",
			"X-ESI-Error-Limit-Reset":  "30",
			"Content-Type":             "application/json; charset=utf-8",
		},
	}
}
