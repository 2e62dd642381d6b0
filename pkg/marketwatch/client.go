// Package marketwatch is a Go client for the market watch HTTP API.
package marketwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request. Chart requests run the whole
// pipeline server side.
const DefaultTimeout = 60 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketwatch API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Client provides a Go SDK for the marketwatch-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tickers returns the selectable tickers.
func (c *Client) Tickers(ctx context.Context) (Tickers, error) {
	var out Tickers
	err := c.get(ctx, "/api/tickers", nil, &out)
	return out, err
}

// Chart runs the chart pipeline for symbol. An empty timeframe uses the
// instrument's configured one.
func (c *Client) Chart(ctx context.Context, symbol, timeframe string) (Chart, error) {
	params := url.Values{}
	if timeframe != "" {
		params.Set("timeframe", timeframe)
	}
	var out Chart
	err := c.get(ctx, "/api/chart/"+url.PathEscape(symbol), params, &out)
	return out, err
}

// Indices returns the last refreshed index panel.
func (c *Client) Indices(ctx context.Context) (Panel, error) {
	var out Panel
	err := c.get(ctx, "/api/indices", nil, &out)
	return out, err
}

// Dividends returns the dividend table of ticker.
func (c *Client) Dividends(ctx context.Context, ticker string) (Dividends, error) {
	var out Dividends
	err := c.get(ctx, "/api/dividends/"+url.PathEscape(ticker), nil, &out)
	return out, err
}

// ForecastDates lists the days with an archived forecast for symbol.
func (c *Client) ForecastDates(ctx context.Context, symbol string) ([]string, error) {
	var out struct {
		Dates []string `json:"dates"`
	}
	err := c.get(ctx, "/api/forecasts/"+url.PathEscape(symbol), nil, &out)
	return out.Dates, err
}

// Forecast returns the forecast archived for symbol on day.
func (c *Client) Forecast(ctx context.Context, symbol string, day time.Time) (Forecast, error) {
	var out Forecast
	err := c.get(ctx, "/api/forecasts/"+url.PathEscape(symbol)+"/"+day.Format(time.DateOnly), nil, &out)
	return out, err
}

// Runs returns the most recent pipeline runs, optionally for one symbol.
func (c *Client) Runs(ctx context.Context, symbol string, limit int) ([]Run, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Runs []Run `json:"runs"`
	}
	err := c.get(ctx, "/api/runs", params, &out)
	return out.Runs, err
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	return c.get(ctx, "/healthz", nil, &out)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg, Endpoint: path}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
