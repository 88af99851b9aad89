package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/pager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Prometheus metrics for page requests.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_http_requests_total",
		Help: "Total page requests by HTTP status",
	}, []string{"status"})

	httpRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pager_http_request_duration_seconds",
		Help:    "Page request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

// HeaderPages carries the total page count of a paginated endpoint.
const HeaderPages = "X-Pages"

// Budget gates outgoing requests on a shared error budget.
// *ratelimit.Budget implements it.
type Budget interface {
	// Allow returns an error when the request must not be sent.
	Allow(ctx context.Context) error

	// Observe records the budget headers of a response.
	Observe(ctx context.Context, headers http.Header) error
}

// HTTPConfig holds the HTTP fetcher configuration.
type HTTPConfig struct {
	// BaseURL is the scheme and host of the API (e.g. "https://esi.evetech.net")
	BaseURL string

	// Endpoint is the paginated path (e.g. "/v1/markets/10000002/orders/")
	Endpoint string

	// Query holds extra query parameters sent with every page
	Query url.Values

	// PageParam is the query parameter carrying the page number
	PageParam string

	// NameField is the JSON field used as an item's display name
	NameField string

	// UserAgent header (required)
	UserAgent string

	// Timeout per HTTP request
	Timeout time.Duration

	// Retry configures backoff for retriable failures
	Retry RetryConfig

	// BreakerFailures is the number of consecutive failures that opens the circuit
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open
	BreakerTimeout time.Duration
}

// DefaultHTTPConfig returns a safe default configuration.
func DefaultHTTPConfig(baseURL, endpoint, userAgent string) HTTPConfig {
	return HTTPConfig{
		BaseURL:         baseURL,
		Endpoint:        endpoint,
		PageParam:       "page",
		NameField:       "name",
		UserAgent:       userAgent,
		Timeout:         30 * time.Second,
		Retry:           DefaultRetryConfig(),
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// HTTPOption customizes an HTTP fetcher.
type HTTPOption func(*HTTP)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = client
	}
}

// WithBudget gates every request on budget.
func WithBudget(budget Budget) HTTPOption {
	return func(h *HTTP) {
		h.budget = budget
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger zerolog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = logger
	}
}

// HTTP fetches pages of a paginated JSON endpoint. The body of a page is a
// JSON array; the total page count comes from the X-Pages header.
type HTTP struct {
	client  *http.Client
	config  HTTPConfig
	budget  Budget
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(cfg HTTPConfig, opts ...HTTPOption) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}
	if cfg.NameField == "" {
		cfg.NameField = "name"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	cfg.Retry = cfg.Retry.normalized()

	h := &HTTP{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: log.With().Str("component", "page-fetcher").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Endpoint,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Warn().
				Str("endpoint", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return h, nil
}

// Fetch implements pager.PageFetcher.
func (h *HTTP) Fetch(ctx context.Context, req pager.Request) (pager.Response, error) {
	var resp pager.Response

	err := retryWithBackoff(ctx, h.config.Retry, h.logger, func() error {
		out, err := h.breaker.Execute(func() (interface{}, error) {
			return h.fetchOnce(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return &HTTPError{
					ErrorClass: ErrorClassCircuitOpen,
					Page:       req.Page,
					Message:    "circuit open",
					Err:        err,
				}
			}
			return err
		}
		resp = out.(pager.Response)
		return nil
	})
	if err != nil {
		return pager.Response{}, err
	}

	return resp, nil
}

// pageURL builds the request URL for page.
func (h *HTTP) pageURL(page int) string {
	query := url.Values{}
	for key, values := range h.config.Query {
		query[key] = append([]string(nil), values...)
	}
	query.Set(h.config.PageParam, strconv.Itoa(page))

	return strings.TrimRight(h.config.BaseURL, "/") + "/" +
		strings.TrimLeft(h.config.Endpoint, "/") + "?" + query.Encode()
}

// fetchOnce performs a single page request without retry.
func (h *HTTP) fetchOnce(ctx context.Context, req pager.Request) (pager.Response, error) {
	if h.budget != nil {
		if err := h.budget.Allow(ctx); err != nil {
			httpRequestsTotal.WithLabelValues("budget_blocked").Inc()
			return pager.Response{}, &HTTPError{
				ErrorClass: ErrorClassBudget,
				Page:       req.Page,
				Message:    "blocked by error budget",
				Err:        err,
			}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.pageURL(req.Page), nil)
	if err != nil {
		return pager.Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", h.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	startTime := time.Now()
	httpResp, err := h.client.Do(httpReq)
	httpRequestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		httpRequestsTotal.WithLabelValues("network_error").Inc()
		h.logger.Error().Err(err).Int("page", req.Page).Msg("Page request failed")
		return pager.Response{}, &HTTPError{
			ErrorClass: ErrorClassNetwork,
			Page:       req.Page,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer httpResp.Body.Close()

	httpRequestsTotal.WithLabelValues(strconv.Itoa(httpResp.StatusCode)).Inc()

	if h.budget != nil {
		if err := h.budget.Observe(ctx, httpResp.Header); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to update error budget from headers")
		}
	}

	if httpResp.StatusCode >= 400 {
		errorClass := classifyStatus(httpResp.StatusCode)
		h.logger.Warn().
			Int("page", req.Page).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(errorClass)).
			Msg("Page request error")
		_, _ = io.Copy(io.Discard, httpResp.Body)
		return pager.Response{}, &HTTPError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: errorClass,
			Page:       req.Page,
			Message:    httpResp.Status,
		}
	}

	items, err := decodeItems(httpResp.Body, h.config.NameField)
	if err != nil {
		return pager.Response{}, &HTTPError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Page:       req.Page,
			Message:    "decode page body",
			Err:        err,
		}
	}

	next, err := nextCursor(httpResp.Header, req.Page)
	if err != nil {
		return pager.Response{}, &HTTPError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Page:       req.Page,
			Message:    "parse " + HeaderPages + " header",
			Err:        err,
		}
	}

	h.logger.Debug().
		Int("page", req.Page).
		Int("items", len(items)).
		Str("cursor", next.String()).
		Msg("Page decoded")

	return pager.Response{Kind: req.Kind, Items: items, Next: next}, nil
}

// decodeItems reads a JSON array and names each element after nameField.
// Elements without that field are named after their raw JSON.
func decodeItems(body io.Reader, nameField string) ([]pager.Item, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, err
	}

	items := make([]pager.Item, 0, len(raw))
	for _, element := range raw {
		items = append(items, pager.Item{
			Name: itemName(element, nameField),
			Data: element,
		})
	}
	return items, nil
}

func itemName(element json.RawMessage, nameField string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(element, &fields); err == nil {
		if value, ok := fields[nameField]; ok {
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				return s
			}
			return string(value)
		}
	}

	var s string
	if err := json.Unmarshal(element, &s); err == nil {
		return s
	}
	return string(element)
}

// nextCursor derives the cursor from the X-Pages header. A missing header
// means the endpoint is not paginated.
func nextCursor(headers http.Header, page int) (pager.Cursor, error) {
	pagesStr := headers.Get(HeaderPages)
	if pagesStr == "" {
		return pager.Exhausted(), nil
	}

	pages, err := strconv.Atoi(pagesStr)
	if err != nil {
		return pager.Cursor{}, err
	}
	if page < pages {
		return pager.NextPage(page + 1), nil
	}
	return pager.Exhausted(), nil
}
