package dividend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, key string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(key, WithBaseURL(srv.URL), WithRateLimit(0))
}

func TestLatestFound(t *testing.T) {
	var gotPath, gotTicker, gotLimit, gotKey string
	c := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTicker = r.URL.Query().Get("ticker")
		gotLimit = r.URL.Query().Get("limit")
		gotKey = r.URL.Query().Get("apiKey")
		fmt.Fprint(w, `{"status":"OK","results":[
			{"ticker":"SPLG","cash_amount":0.3075,"ex_dividend_date":"2024-06-24","frequency":4,"pay_date":"2024-06-26","currency":"USD"},
			{"ticker":"SPLG","cash_amount":0.2,"ex_dividend_date":"2024-03-15","frequency":4,"pay_date":"2024-03-20"}
		]}`)
	})

	res := c.Latest(context.Background(), "splg")
	require.Equal(t, StatusOK, res.Status)
	require.NotNil(t, res.Record)
	assert.NoError(t, res.Err)

	assert.Equal(t, "/v3/reference/dividends", gotPath)
	assert.Equal(t, "SPLG", gotTicker)
	assert.Equal(t, "1", gotLimit)
	assert.Equal(t, "secret", gotKey)

	assert.Equal(t, "SPLG", res.Record.Ticker)
	assert.Equal(t, "0.3075", res.Record.CashAmount.String())
	assert.Equal(t, "2024-06-24", res.Record.ExDividendDate)
	assert.Equal(t, 4, res.Record.Frequency)
	assert.False(t, res.FetchedAt.IsZero())
}

func TestLatestNoResults(t *testing.T) {
	for name, body := range map[string]string{
		"empty":   `{"status":"OK","results":[]}`,
		"missing": `{"status":"OK"}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, body) })
			res := c.Latest(context.Background(), "BTC-USD")
			assert.Equal(t, StatusNoData, res.Status)
			assert.Nil(t, res.Record)
			assert.NoError(t, res.Err)
			assert.False(t, res.Retryable())
		})
	}
}

func TestLatestFailures(t *testing.T) {
	cases := []struct {
		name string
		h    http.HandlerFunc
		want Status
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "boom", 500) }, StatusUnavailable},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "slow down", 429) }, StatusUnavailable},
		{"malformed", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "{not json") }, StatusUnavailable},
		{"bad key", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "unknown key", 401) }, StatusNoCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, "k", tc.h)
			res := c.Latest(context.Background(), "GLD")
			assert.Equal(t, tc.want, res.Status)
			assert.Error(t, res.Err)
			assert.Nil(t, res.Record)
		})
	}
}

func TestLatestWithoutKeyMakesNoRequest(t *testing.T) {
	called := false
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) { called = true })

	res := c.Latest(context.Background(), "GLD")
	assert.Equal(t, StatusNoCredentials, res.Status)
	assert.False(t, called)
	assert.False(t, c.HasCredentials())
}

func TestLatestSpendsBurstThenFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"status":"OK","results":[{"ticker":"VZ","cash_amount":0.6775,"ex_dividend_date":"2024-07-10","frequency":4}]}`)
	}))
	t.Cleanup(srv.Close)
	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(DefaultRateLimitPerMin), WithRateLimitWait(50*time.Millisecond))

	for i := 0; i < DefaultRateLimitPerMin; i++ {
		require.Equal(t, StatusOK, c.Latest(context.Background(), "VZ").Status, "lookup %d", i)
	}

	began := time.Now()
	res := c.Latest(context.Background(), "VZ")
	assert.Less(t, time.Since(began), time.Second)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, ErrRateLimited)
	assert.True(t, res.Retryable())
	assert.EqualValues(t, DefaultRateLimitPerMin, hits.Load())
}

func TestLatestCanceledWhileQueued(t *testing.T) {
	c := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"status":"OK"}`) })
	WithRateLimit(1)(c)
	require.Equal(t, StatusNoData, c.Latest(context.Background(), "VZ").Status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Latest(ctx, "VZ")
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NotErrorIs(t, res.Err, ErrRateLimited)
}

func TestServiceAnswersFromCacheWhileRateLimited(t *testing.T) {
	c := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK","results":[{"ticker":"GLD","cash_amount":1.5,"ex_dividend_date":"2024-06-01","frequency":12}]}`)
	})
	WithRateLimit(1)(c)
	svc := NewService(c, newMemCache(), nil)

	first := svc.Lookup(context.Background(), "GLD")
	require.Equal(t, StatusOK, first.Status)

	second := svc.Lookup(context.Background(), "GLD")
	assert.Equal(t, StatusUnavailable, second.Status)
	assert.ErrorIs(t, second.Err, ErrRateLimited)
	require.NotNil(t, second.Record)
	assert.True(t, second.Stale)
	assert.Equal(t, "1.5", second.Record.CashAmount.String())
	assert.True(t, second.FetchedAt.Equal(first.FetchedAt))
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 500, Message: "boom", Endpoint: "/v3/reference/dividends"}
	assert.Equal(t, "polygon API error: boom (status 500, endpoint: /v3/reference/dividends)", err.Error())
}
