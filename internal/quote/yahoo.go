package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketwatch/internal/domain"
	"marketwatch/internal/util"
)

// Compile-time interface check.
var _ Source = (*YahooSource)(nil)

// DefaultYahooBaseURL is the public Yahoo Finance chart host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource fetches bars from the Yahoo Finance v8 chart API. It covers
// indices, FX pairs, crypto pairs and equities.
type YahooSource struct {
	baseURL  string
	client   *http.Client
	attempts int
	log      *slog.Logger
}

// YahooOption configures a YahooSource.
type YahooOption func(*YahooSource)

// WithYahooBaseURL overrides the API host.
func WithYahooBaseURL(u string) YahooOption {
	return func(s *YahooSource) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithYahooHTTPClient replaces the HTTP client.
func WithYahooHTTPClient(c *http.Client) YahooOption {
	return func(s *YahooSource) { s.client = c }
}

// WithYahooAttempts sets the number of attempts per fetch.
func WithYahooAttempts(n int) YahooOption {
	return func(s *YahooSource) { s.attempts = n }
}

// NewYahooSource creates a YahooSource with the given timeout and optional
// proxy URL.
func NewYahooSource(timeout time.Duration, proxyURL string, log *slog.Logger, opts ...YahooOption) *YahooSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if log == nil {
		log = util.Discard()
	}
	s := &YahooSource{
		baseURL:  DefaultYahooBaseURL,
		client:   &http.Client{Timeout: timeout, Transport: transport},
		attempts: 3,
		log:      log.With("source", "yahoo"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source identifier.
func (s *YahooSource) Name() string { return "yahoo" }

// yahooChart is the response structure of the chart API. Null prices decode
// as nil pointers.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves bars for req, retrying transient failures.
func (s *YahooSource) Fetch(ctx context.Context, req Request) (domain.Series, error) {
	var bars []domain.Bar
	err := util.RetryIf(ctx, s.attempts, 500*time.Millisecond, retryable, func() error {
		var ferr error
		bars, ferr = s.fetchChart(ctx, req)
		if ferr != nil && retryable(ferr) {
			s.log.Warn("chart fetch failed, retrying", "symbol", req.Symbol, "error", ferr)
		}
		return ferr
	})
	if err != nil {
		return domain.Series{}, err
	}
	return domain.Series{Symbol: req.Symbol, Timeframe: req.Timeframe, Bars: bars}, nil
}

func (s *YahooSource) chartURL(req Request) string {
	q := url.Values{}
	q.Set("interval", yahooInterval(req.Timeframe))
	if req.Start.IsZero() {
		q.Set("range", yahooMaxRange(req.Timeframe))
	} else {
		end := req.End
		if end.IsZero() {
			end = time.Now()
		}
		q.Set("period1", strconv.FormatInt(req.Start.Unix(), 10))
		q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	}
	return fmt.Sprintf("%s/v8/finance/chart/%s?%s", s.baseURL, url.PathEscape(req.Symbol), q.Encode())
}

func (s *YahooSource) fetchChart(ctx context.Context, req Request) ([]domain.Bar, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.chartURL(req), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", req.Symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("yahoo %s: %w", req.Symbol, ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Source: "yahoo", StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", req.Symbol, ErrNoData)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue // null bars on holidays
		}
		var vol int64
		if v := at(quote.Volume, i); v != nil {
			vol = int64(*v)
		}
		bars = append(bars, domain.Bar{
			Symbol:    req.Symbol,
			Timestamp: barTime(ts, result.Meta.GMTOffset, req.Timeframe),
			Open:      *o,
			High:      *h,
			Low:       *l,
			Close:     *c,
			Volume:    vol,
		})
	}

	bars = normalize(bars, time.Time{}, time.Time{})
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", req.Symbol, ErrNoData)
	}
	return bars, nil
}

// barTime converts a Yahoo timestamp to UTC. Daily and weekly bars are
// pinned to midnight of the exchange-local trading date.
func barTime(ts, gmtOffset int64, tf domain.Timeframe) time.Time {
	t := time.Unix(ts, 0).UTC()
	if tf == domain.TimeframeHourly {
		return t
	}
	local := t.Add(time.Duration(gmtOffset) * time.Second)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func yahooInterval(tf domain.Timeframe) string {
	switch tf {
	case domain.TimeframeHourly:
		return "60m"
	case domain.TimeframeWeekly:
		return "1wk"
	default:
		return "1d"
	}
}

// yahooMaxRange is the longest range the API serves for an interval.
func yahooMaxRange(tf domain.Timeframe) string {
	if tf == domain.TimeframeHourly {
		return "730d"
	}
	return "max"
}

func at(vals []*float64, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
