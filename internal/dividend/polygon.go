// Package dividend looks up the latest declared dividend for a ticker from
// the Polygon reference API and shapes it into a display table.
package dividend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"marketwatch/internal/domain"
	"marketwatch/internal/util"
)

const (
	// DefaultBaseURL is the Polygon API host.
	DefaultBaseURL = "https://api.polygon.io"

	// DefaultTimeout is the HTTP timeout per lookup.
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimitPerMin matches the Polygon free tier.
	DefaultRateLimitPerMin = 5

	// DefaultRateLimitWait is the longest a lookup queues for a request slot
	// before giving up with ErrRateLimited.
	DefaultRateLimitWait = 2 * time.Second
)

// ErrRateLimited reports a lookup refused locally because the request budget
// is spent. It classifies as StatusUnavailable.
var ErrRateLimited = errors.New("polygon request budget exhausted")

// Status classifies a lookup outcome.
type Status string

const (
	// StatusOK means a record was found.
	StatusOK Status = "ok"
	// StatusNoData means the API answered with no results for the ticker.
	StatusNoData Status = "no_data"
	// StatusUnavailable is a transient failure worth retrying later.
	StatusUnavailable Status = "unavailable"
	// StatusNoCredentials means no usable API key is configured.
	StatusNoCredentials Status = "no_credentials"
)

// Result is the outcome of a single dividend lookup.
type Result struct {
	Ticker string                 `json:"ticker"`
	Status Status                 `json:"status"`
	Record *domain.DividendRecord `json:"record,omitempty"`
	Err    error                  `json:"-"`

	// Stale is set when Record was served from cache after a failed lookup.
	Stale     bool      `json:"stale,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

// Retryable reports whether a later lookup might succeed.
func (r Result) Retryable() bool { return r.Status == StatusUnavailable }

// APIError is a non-2xx response from the Polygon API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("polygon API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Client is a Polygon dividends API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxWait    time.Duration
	log        *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets the number of requests allowed per minute.
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		c.limiter = util.NewRateLimiter(perMinute)
	}
}

// WithRateLimitWait bounds how long a lookup queues for a request slot.
func WithRateLimitWait(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxWait = d
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a Polygon client. An empty apiKey is allowed; every
// lookup then reports StatusNoCredentials.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    util.NewRateLimiter(DefaultRateLimitPerMin),
		maxWait:    DefaultRateLimitWait,
		log:        util.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "polygon")
	return c
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

type dividendsResponse struct {
	Status  string                  `json:"status"`
	Results []domain.DividendRecord `json:"results"`
}

// Latest returns the most recent dividend declared for ticker. It never
// returns an error value; failures are classified in the Result.
func (c *Client) Latest(ctx context.Context, ticker string) Result {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	res := Result{Ticker: ticker}
	if !c.HasCredentials() {
		res.Status = StatusNoCredentials
		res.Err = errors.New("polygon API key not configured")
		return res
	}

	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("limit", "1")

	var body dividendsResponse
	if err := c.get(ctx, "/v3/reference/dividends", params, &body); err != nil {
		res.Err = err
		res.Status = classify(err)
		c.log.Warn("dividend lookup failed", "ticker", ticker, "status", res.Status, "error", err)
		return res
	}

	res.FetchedAt = time.Now().UTC()
	if len(body.Results) == 0 {
		res.Status = StatusNoData
		return res
	}
	rec := body.Results[0]
	if rec.Ticker == "" {
		rec.Ticker = ticker
	}
	res.Status = StatusOK
	res.Record = &rec
	return res
}

// get performs a GET request and decodes the JSON response into result.
func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	params.Set("apiKey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("polygon API request", "path", path, "ticker", params.Get("ticker"))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body)), Endpoint: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// wait takes a request slot, queueing at most maxWait for one. The limiter
// refuses up front when the next slot lies past the deadline.
func (c *Client) wait(ctx context.Context) error {
	if c.maxWait <= 0 {
		if !c.limiter.Allow() {
			return ErrRateLimited
		}
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()
	if err := c.limiter.Wait(wctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		}
		return ErrRateLimited
	}
	return nil
}

// classify maps a lookup error to a Status. A rejected key counts as missing
// credentials; everything else is transient.
func classify(err error) Status {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return StatusNoCredentials
		}
		return StatusUnavailable
	}
	return StatusUnavailable
}
