package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/Sternrassler/eve-esi-pager/internal/testutil"
	"github.com/Sternrassler/eve-esi-pager/pkg/pager"
	"github.com/rs/zerolog"
)

const (
	testEndpoint  = "/v1/items/"
	testUserAgent = "pager-test/1.0.0 (test@example.com)"
)

// fakeBudget records observed headers and refuses requests with allowErr.
type fakeBudget struct {
	mu       sync.Mutex
	allowErr error
	allows   int
	observed []http.Header
}

func (b *fakeBudget) Allow(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allows++
	return b.allowErr
}

func (b *fakeBudget) setAllowErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowErr = err
}

func (b *fakeBudget) Observe(ctx context.Context, headers http.Header) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observed = append(b.observed, headers.Clone())
	return nil
}

func newTestHTTP(t *testing.T, mock *testutil.MockPages, mutate func(*HTTPConfig), opts ...HTTPOption) *HTTP {
	t.Helper()

	cfg := DefaultHTTPConfig(mock.URL(), testEndpoint, testUserAgent)
	cfg.Retry = fastRetry()
	if mutate != nil {
		mutate(&cfg)
	}

	h, err := NewHTTP(cfg, append([]HTTPOption{WithHTTPLogger(zerolog.Nop())}, opts...)...)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	return h
}

func newMock(t *testing.T) *testutil.MockPages {
	t.Helper()
	mock := testutil.NewMockPages(testEndpoint)
	t.Cleanup(mock.Close)
	return mock
}

func TestNewHTTP_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      HTTPConfig
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultHTTPConfig("https://esi.evetech.net", "/v1/universe/types/", testUserAgent),
		},
		{
			name:        "missing base url",
			config:      DefaultHTTPConfig("", "/v1/universe/types/", testUserAgent),
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "invalid base url",
			config:      DefaultHTTPConfig("://no-scheme", "/v1/universe/types/", testUserAgent),
			expectError: true,
			errorMsg:    "parse base url",
		},
		{
			name:        "missing user agent",
			config:      DefaultHTTPConfig("https://esi.evetech.net", "/v1/universe/types/", ""),
			expectError: true,
			errorMsg:    "user-agent is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHTTP(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if h == nil {
				t.Fatal("Expected fetcher, got nil")
			}
		})
	}
}

func TestNewHTTP_Defaults(t *testing.T) {
	h, err := NewHTTP(HTTPConfig{BaseURL: "https://esi.evetech.net", UserAgent: testUserAgent})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}

	if h.config.PageParam != "page" {
		t.Errorf("PageParam = %q, want page", h.config.PageParam)
	}
	if h.config.NameField != "name" {
		t.Errorf("NameField = %q, want name", h.config.NameField)
	}
	if h.config.BreakerFailures != 5 {
		t.Errorf("BreakerFailures = %d, want 5", h.config.BreakerFailures)
	}
	if h.config.Retry != DefaultRetryConfig() {
		t.Errorf("Retry = %+v, want defaults", h.config.Retry)
	}
}

func TestHTTP_PageURL(t *testing.T) {
	h, err := NewHTTP(HTTPConfig{
		BaseURL:   "https://esi.evetech.net/",
		Endpoint:  "v1/markets/10000002/orders/",
		Query:     url.Values{"order_type": {"sell"}, "page": {"99"}},
		UserAgent: testUserAgent,
	})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}

	want := "https://esi.evetech.net/v1/markets/10000002/orders/?order_type=sell&page=3"
	if got := h.pageURL(3); got != want {
		t.Errorf("pageURL(3) = %q, want %q", got, want)
	}
	if got := h.config.Query.Get("page"); got != "99" {
		t.Errorf("pageURL modified the configured query: page=%q", got)
	}
}

func TestHTTP_FetchPages(t *testing.T) {
	mock := newMock(t)
	mock.SetPage(1, testutil.NewItemsPage(2, "Tritanium", "Pyerite"))
	mock.SetPage(2, testutil.NewItemsPage(2, "Mexallon"))
	h := newTestHTTP(t, mock, nil)
	ctx := context.Background()

	first, err := h.Fetch(ctx, pager.Request{Page: 1, Kind: pager.KindRefresh})
	if err != nil {
		t.Fatalf("Fetch(page 1) error = %v", err)
	}
	if first.Kind != pager.KindRefresh {
		t.Errorf("Kind = %q, want refresh", first.Kind)
	}
	if len(first.Items) != 2 || first.Items[0].Name != "Tritanium" || first.Items[1].Name != "Pyerite" {
		t.Errorf("Items = %+v, want Tritanium and Pyerite", first.Items)
	}
	if string(first.Items[0].Data) != `{"name":"Tritanium"}` {
		t.Errorf("Data = %s, want raw element", first.Items[0].Data)
	}
	if first.Next != pager.NextPage(2) {
		t.Errorf("Next = %v, want next(2)", first.Next)
	}

	last, err := h.Fetch(ctx, pager.Request{Page: 2, Kind: pager.KindLoadMore})
	if err != nil {
		t.Fatalf("Fetch(page 2) error = %v", err)
	}
	if last.Kind != pager.KindLoadMore {
		t.Errorf("Kind = %q, want load_more", last.Kind)
	}
	if last.Next != pager.Exhausted() {
		t.Errorf("Next = %v, want exhausted", last.Next)
	}

	if got := mock.Requests(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Requests() = %v, want [1 2]", got)
	}
}

func TestHTTP_RequestHeaders(t *testing.T) {
	mock := newMock(t)
	mock.SetPage(1, testutil.NewItemsPage(1, "Tritanium"))
	h := newTestHTTP(t, mock, nil)

	if _, err := h.Fetch(context.Background(), pager.Request{Page: 1, Kind: pager.KindRefresh}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	headers := mock.LastRequestHeader()
	if got := headers.Get("User-Agent"); got != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", got, testUserAgent)
	}
	if got := headers.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want application/json", got)
	}
}

func TestHTTP_MissingPagesHeaderExhausts(t *testing.T) {
	mock := newMock(t)
	mock.SetPage(1, testutil.MockPageResponse{StatusCode: http.StatusOK, Body: `[{"name":"only"}]`})
	h := newTestHTTP(t, mock, nil)

	resp, err := h.Fetch(context.Background(), pager.Request{Page: 1, Kind: pager.KindRefresh})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.Next != pager.Exhausted() {
		t.Errorf("Next = %v, want exhausted", resp.Next)
	}
}

func TestHTTP_RetriesServerError(t *testing.T) {
	mock := newMock(t)
	mock.SetPage(1, testutil.NewItemsPage(1, "Tritanium"))
	mock.QueueResponse(1, testutil.NewServerErrorResponse())
	mock.QueueResponse(1, testutil.NewErrorLimitedResponse())
	h := newTestHTTP(t, mock, nil)

	resp, err := h.Fetch(context.Background(), pager.Request{Page: 1, Kind: pager.KindRefresh})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(resp.Items) != 1 {
		t.Errorf("got %d items, want 1", len(resp.Items))
	}
	if got := mock.RequestCount(); got != 3 {
		t.Errorf("RequestCount() = %d, want 3", got)
	}
}

func TestHTTP_Errors(t *testing.T) {
	tests := []struct {
		name         string
		response     *testutil.MockPageResponse
		wantClass    ErrorClass
		wantStatus   int
		wantRequests int
	}{
		{
			name:         "not found is not retried",
			wantClass:    ErrorClassClient,
			wantStatus:   http.StatusNotFound,
			wantRequests: 1,
		},
		{
			name:         "malformed body",
			response:     &testutil.MockPageResponse{StatusCode: http.StatusOK, Body: `{"not":"an array"}`},
			wantClass:    ErrorClassDecode,
			wantStatus:   http.StatusOK,
			wantRequests: 1,
		},
		{
			name: "malformed pages header",
			response: &testutil.MockPageResponse{
				StatusCode: http.StatusOK,
				Body:       `[]`,
				Headers:    map[string]string{"X-Pages": "many"},
			},
			wantClass:    ErrorClassDecode,
			wantStatus:   http.StatusOK,
			wantRequests: 1,
		},
		{
			name:         "server error exhausts retries",
			response:     ptr(testutil.NewServerErrorResponse()),
			wantClass:    ErrorClassServer,
			wantStatus:   http.StatusInternalServerError,
			wantRequests: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			if tt.response != nil {
				mock.SetPage(1, *tt.response)
			}
			h := newTestHTTP(t, mock, nil)

			_, err := h.Fetch(context.Background(), pager.Request{Page: 1, Kind: pager.KindRefresh})

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("Fetch() error = %v, want *HTTPError", err)
			}
			if httpErr.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", httpErr.ErrorClass, tt.wantClass)
			}
			if httpErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, tt.wantStatus)
			}
			if httpErr.Page != 1 {
				t.Errorf("Page = %d, want 1", httpErr.Page)
			}
			if got := mock.RequestCount(); got != tt.wantRequests {
				t.Errorf("RequestCount() = %d, want %d", got, tt.wantRequests)
			}
		})
	}
}

func TestHTTP_NetworkError(t *testing.T) {
	mock := testutil.NewMockPages(testEndpoint)
	h := newTestHTTP(t, mock, func(cfg *HTTPConfig) { cfg.Retry.MaxAttempts = 1 })
	mock.Close()

	_, err := h.Fetch(context.Background(), pager.Request{Page: 1, Kind: pager.KindRefresh})
	if got := classOf(err); got != ErrorClassNetwork {
		t.Errorf("error class = %q (%v), want network", got, err)
	}
}

func TestHTTP_CircuitBreaker(t *testing.T) {
	mock := newMock(t)
	mock.SetPage(1, testutil.NewServerErrorResponse())
	h := newTestHTTP(t, mock, func(cfg *HTTPConfig) {
		cfg.Retry.MaxAttempts = 1
		cfg.BreakerFailures = 2
	})
	ctx := context.Background()
	req := pager.Request{Page: 1, Kind: pager.KindRefresh}

	for i := 0; i < 2; i++ {
		if _, err := h.Fetch(ctx, req); classOf(err) != ErrorClassServer {
			t.Fatalf("Fetch() #%d error = %v, want server error", i+1, err)
		}
	}

	_, err := h.Fetch(ctx, req)
	if got := classOf(err); got != ErrorClassCircuitOpen {
		t.Errorf("error class = %q (%v), want circuit_open", got, err)
	}
	if got := mock.RequestCount(); got != 2 {
		t.Errorf("RequestCount() = %d, want 2 (open circuit must not reach the server)", got)
	}
}

func TestHTTP_ClientErrorsKeepCircuitClosed(t *testing.T) {
	mock := newMock(t)
	h := newTestHTTP(t, mock, func(cfg *HTTPConfig) { cfg.BreakerFailures = 1 })

	for i := 0; i < 3; i++ {
		_, err := h.Fetch(context.Background(), pager.Request{Page: 42, Kind: pager.KindLoadMore})
		if got := classOf(err); got != ErrorClassClient {
			t.Fatalf("Fetch() #%d error class = %q, want client", i+1, got)
		}
	}
	if got := mock.RequestCount(); got != 3 {
		t.Errorf("RequestCount() = %d, want 3", got)
	}
}

func TestHTTP_Budget(t *testing.T) {
	t.Run("observes response headers", func(t *testing.T) {
		mock := newMock(t)
		mock.SetPage(1, testutil.NewItemsPage(1, "Tritanium"))
		budget := &fakeBudget{}
		h := newTestHTTP(t, mock, nil, WithBudget(budget))

		if _, err := h.Fetch(context.Background(), pager.Request{Page: 1, Kind: pager.KindRefresh}); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		budget.mu.Lock()
		defer budget.mu.Unlock()
		if len(budget.observed) != 1 {
			t.Fatalf("Observe called %d times, want 1", len(budget.observed))
		}
		if got := budget.observed[0].Get("X-ESI-Error-Limit-Remain"); got != "100" {
			t.Errorf("observed remain header = %q, want 100", got)
		}
	})

	t.Run("blocks requests", func(t *testing.T) {
		mock := newMock(t)
		mock.SetPage(1, testutil.NewItemsPage(1, "Tritanium"))
		refusal := errors.New("budget exhausted")
		budget := &fakeBudget{allowErr: refusal}
		h := newTestHTTP(t, mock, nil, WithBudget(budget))

		_, err := h.Fetch(context.Background(), pager.Request{Page: 1, Kind: pager.KindRefresh})
		if !errors.Is(err, refusal) {
			t.Errorf("Fetch() error = %v, want budget refusal", err)
		}
		if got := classOf(err); got != ErrorClassBudget {
			t.Errorf("error class = %q, want budget", got)
		}
		if got := mock.RequestCount(); got != 0 {
			t.Errorf("RequestCount() = %d, want 0", got)
		}

		budget.mu.Lock()
		defer budget.mu.Unlock()
		if budget.allows != 1 {
			t.Errorf("Allow called %d times, want 1 (refusals are not retried)", budget.allows)
		}
	})

	t.Run("refusals keep circuit closed", func(t *testing.T) {
		mock := newMock(t)
		mock.SetPage(1, testutil.NewItemsPage(1, "Tritanium"))
		budget := &fakeBudget{allowErr: errors.New("budget exhausted")}
		h := newTestHTTP(t, mock, func(cfg *HTTPConfig) { cfg.BreakerFailures = 1 }, WithBudget(budget))
		req := pager.Request{Page: 1, Kind: pager.KindRefresh}

		for i := 0; i < 3; i++ {
			if _, err := h.Fetch(context.Background(), req); classOf(err) != ErrorClassBudget {
				t.Fatalf("Fetch() #%d error = %v, want budget refusal", i+1, err)
			}
		}

		budget.setAllowErr(nil)
		if _, err := h.Fetch(context.Background(), req); err != nil {
			t.Fatalf("Fetch() after budget recovered error = %v", err)
		}
		if got := mock.RequestCount(); got != 1 {
			t.Errorf("RequestCount() = %d, want 1", got)
		}
	})
}

func TestHTTP_ContextCancelled(t *testing.T) {
	mock := newMock(t)
	mock.SetPage(1, testutil.NewItemsPage(1, "Tritanium"))
	h := newTestHTTP(t, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Fetch(ctx, pager.Request{Page: 1, Kind: pager.KindRefresh})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestHTTP_CancelledRequestsKeepCircuitClosed(t *testing.T) {
	mock := newMock(t)
	mock.SetPage(1, testutil.NewItemsPage(1, "Tritanium"))
	h := newTestHTTP(t, mock, func(cfg *HTTPConfig) { cfg.BreakerFailures = 1 })
	req := pager.Request{Page: 1, Kind: pager.KindRefresh}

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := h.Fetch(ctx, req); !errors.Is(err, context.Canceled) {
			t.Fatalf("Fetch() #%d error = %v, want context.Canceled", i+1, err)
		}
	}

	resp, err := h.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch() after cancelled requests error = %v", err)
	}
	if len(resp.Items) != 1 {
		t.Errorf("got %d items, want 1", len(resp.Items))
	}
}

func TestItemName(t *testing.T) {
	tests := []struct {
		name     string
		element  string
		expected string
	}{
		{"string field", `{"name":"Tritanium","type_id":34}`, "Tritanium"},
		{"numeric field", `{"name":34}`, "34"},
		{"missing field", `{"type_id":34}`, `{"type_id":34}`},
		{"plain string", `"Pyerite"`, "Pyerite"},
		{"plain number", `35`, "35"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := itemName([]byte(tt.element), "name"); got != tt.expected {
				t.Errorf("itemName(%s) = %q, want %q", tt.element, got, tt.expected)
			}
		})
	}
}

func TestNextCursor(t *testing.T) {
	tests := []struct {
		name     string
		pages    string
		page     int
		expected pager.Cursor
		wantErr  bool
	}{
		{"more pages", "3", 1, pager.NextPage(2), false},
		{"last page", "3", 3, pager.Exhausted(), false},
		{"beyond last page", "3", 5, pager.Exhausted(), false},
		{"no header", "", 1, pager.Exhausted(), false},
		{"invalid header", "x", 1, pager.Cursor{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.pages != "" {
				headers.Set(HeaderPages, tt.pages)
			}

			got, err := nextCursor(headers, tt.page)
			if (err != nil) != tt.wantErr {
				t.Fatalf("nextCursor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("nextCursor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
