package pipeline

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/internal/domain"
	"marketwatch/internal/forecast"
	"marketwatch/internal/quote"
	"marketwatch/internal/store"
)

var testNow = time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	series map[string]domain.Series
	errs   map[string]error
	calls  []quote.Request
}

func newFakeSource() *fakeSource {
	return &fakeSource{series: map[string]domain.Series{}, errs: map[string]error{}}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, req quote.Request) (domain.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.Symbol]; ok {
		return domain.Series{}, err
	}
	s, ok := f.series[req.Symbol]
	if !ok {
		return domain.Series{}, quote.ErrNoData
	}
	return s, nil
}

func (f *fakeSource) set(s domain.Series) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[s.Symbol] = s
	delete(f.errs, s.Symbol)
}

func (f *fakeSource) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func dailySeries(symbol string, end time.Time, n int) domain.Series {
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	s := domain.Series{Symbol: symbol, Timeframe: domain.TimeframeDaily, Bars: make([]domain.Bar, n)}
	for i := range s.Bars {
		c := 50 + 0.05*float64(i) + 2*math.Sin(float64(i)/15)
		s.Bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: last.AddDate(0, 0, i-n+1),
			Open:      c - 0.25,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
		}
	}
	return s
}

func newTestPipeline(src quote.Source) *Pipeline {
	return New(src, forecast.NewAdapter(forecast.DefaultOptions(), nil), Options{
		Now: func() time.Time { return testNow },
		Indices: []IndexSpec{
			{Symbol: "^VIX", Name: "VIX Volatility Index"},
			{Symbol: "^GSPC", Name: "S & P 500 Index"},
			{Symbol: "GLD", Name: "Gold ETF"},
		},
	}, nil)
}

func openStores(t *testing.T) (*store.ParquetStore, *store.SQLiteStore) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewSQLiteStore(filepath.Join(dir, "marketwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewParquetStore(filepath.Join(dir, "data")), db
}

func TestChartFreshRun(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.set(dailySeries("XYZ", testNow, 400))
	pq, db := openStores(t)

	p := newTestPipeline(src).WithBarStore(pq).WithForecastArchive(pq).WithRunStore(db)
	inst := domain.Instrument{Symbol: "XYZ", Source: domain.SourceRemote, Timeframe: domain.TimeframeDaily}

	res, err := p.Chart(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, domain.RunOK, res.Status)
	assert.Empty(t, res.Error)
	assert.False(t, res.Figure.IsPlaceholder())
	assert.Len(t, res.Figure.Candlesticks(), 1)
	assert.Len(t, res.Figure.Lines(), 4)
	assert.Equal(t, 400, res.Series.Len())
	assert.Len(t, res.Forecast.Points, 400+90)

	require.Len(t, src.calls, 1)
	assert.True(t, src.calls[0].Start.IsZero(), "chart requests the maximum history")

	snap, err := pq.ReadBars(ctx, "XYZ", domain.TimeframeDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, snap, 400)

	days, err := pq.ListForecastDays(ctx, "XYZ")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-06-30", days[0].Format("2006-01-02"))

	run, err := db.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunOK, run.Status)
	assert.Equal(t, 400, run.Bars)
	assert.Equal(t, 490, run.Points)
}

func TestChartServesSnapshotWhenRetrievalFails(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.set(dailySeries("GLD", testNow, 300))
	pq, db := openStores(t)
	p := newTestPipeline(src).WithBarStore(pq).WithRunStore(db)
	inst := domain.Instrument{Symbol: "GLD", Timeframe: domain.TimeframeDaily}

	first, err := p.Chart(ctx, inst)
	require.NoError(t, err)
	require.Equal(t, domain.RunOK, first.Status)

	src.fail("GLD", &quote.HTTPError{Source: "yahoo", StatusCode: 503})
	second, err := p.Chart(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSnapshot, second.Status)
	assert.False(t, second.Figure.IsPlaceholder())
	assert.Equal(t, 300, second.Series.Len())

	runs, err := db.ListRuns(ctx, "GLD", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestChartNoData(t *testing.T) {
	src := newFakeSource()
	src.fail("ZZZ", errors.New("connection refused"))
	p := newTestPipeline(src)

	res, err := p.Chart(context.Background(), domain.Instrument{Symbol: "ZZZ"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunNoData, res.Status)
	assert.True(t, res.Figure.IsPlaceholder())
	assert.Equal(t, "ZZZ Price Chart", res.Figure.Layout.Title.Text)
	assert.Contains(t, res.Error, "connection refused")
	assert.Equal(t, domain.TimeframeDaily, res.Instrument.Timeframe)
}

func TestChartInsufficientData(t *testing.T) {
	src := newFakeSource()
	src.set(dailySeries("ONE", testNow, 1))
	p := newTestPipeline(src)

	res, err := p.Chart(context.Background(), domain.Instrument{Symbol: "ONE", Timeframe: domain.TimeframeDaily})
	require.NoError(t, err)
	assert.Equal(t, domain.RunInsufficientData, res.Status)
	assert.True(t, res.Figure.IsPlaceholder())
	assert.Contains(t, res.Figure.Message, "Not enough data")
}

func TestChartPredicateWindow(t *testing.T) {
	src := newFakeSource()
	src.set(dailySeries("XYZ", testNow, 200))
	p := newTestPipeline(src)

	t.Run("date threshold", func(t *testing.T) {
		inst := domain.Instrument{Symbol: "XYZ", Timeframe: domain.TimeframeDaily,
			Window: domain.Window{Column: "date", Threshold: "2024-06-01"}}
		res, err := p.Chart(context.Background(), inst)
		require.NoError(t, err)
		assert.Equal(t, domain.RunOK, res.Status)
		assert.Equal(t, 30, res.Series.Len())
		assert.Equal(t, "2024-06-01", res.Series.First().Format("2006-01-02"))
	})

	t.Run("threshold after last bar", func(t *testing.T) {
		inst := domain.Instrument{Symbol: "XYZ", Timeframe: domain.TimeframeDaily,
			Window: domain.Window{Column: "date", Threshold: "2025-01-01"}}
		res, err := p.Chart(context.Background(), inst)
		require.NoError(t, err)
		assert.Equal(t, domain.RunInsufficientData, res.Status)
	})

	t.Run("unknown column", func(t *testing.T) {
		inst := domain.Instrument{Symbol: "XYZ", Timeframe: domain.TimeframeDaily,
			Window: domain.Window{Column: "volume_weighted", Threshold: "1"}}
		res, err := p.Chart(context.Background(), inst)
		require.NoError(t, err)
		assert.Equal(t, domain.RunError, res.Status)
		assert.True(t, res.Figure.IsPlaceholder())
	})
}

func TestChartExcludeWeekends(t *testing.T) {
	src := newFakeSource()
	src.set(dailySeries("BTC-USD", testNow, 120))
	p := newTestPipeline(src)

	res, err := p.Chart(context.Background(), domain.Instrument{Symbol: "BTC-USD", Timeframe: domain.TimeframeDaily, ExcludeWeekends: true})
	require.NoError(t, err)
	require.Equal(t, domain.RunOK, res.Status)
	for _, b := range res.Series.Bars {
		wd := b.Timestamp.Weekday()
		assert.NotContains(t, []time.Weekday{time.Saturday, time.Sunday}, wd)
	}
	for _, pt := range res.Forecast.Points {
		wd := pt.Timestamp.Weekday()
		assert.NotContains(t, []time.Weekday{time.Saturday, time.Sunday}, wd)
	}
}

func TestChartWeeklyForecastFollowsBars(t *testing.T) {
	last := time.Date(2024, 6, 24, 0, 0, 0, 0, time.UTC) // Monday, as providers date weekly bars
	s := domain.Series{Symbol: "GLD", Timeframe: domain.TimeframeWeekly, Bars: make([]domain.Bar, 100)}
	for i := range s.Bars {
		c := 180 + 0.3*float64(i) + 3*math.Sin(float64(i)/5)
		s.Bars[i] = domain.Bar{Symbol: "GLD", Timestamp: last.AddDate(0, 0, 7*(i-99)), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	src := newFakeSource()
	src.set(s)
	p := newTestPipeline(src)

	res, err := p.Chart(context.Background(), domain.Instrument{Symbol: "GLD", Source: domain.SourceRemote, Timeframe: domain.TimeframeWeekly})
	require.NoError(t, err)
	require.Equal(t, domain.RunOK, res.Status)
	require.Len(t, res.Forecast.Points, 100+90)

	want := last.AddDate(0, 0, 7*90)
	assert.True(t, res.Forecast.Last().Equal(want), "forecast last = %s, want %s", res.Forecast.Last(), want)
	for _, pt := range res.Forecast.Points[100:] {
		assert.Equal(t, time.Monday, pt.Timestamp.Weekday())
	}
}

func TestChartCanceled(t *testing.T) {
	src := newFakeSource()
	src.set(dailySeries("XYZ", testNow, 100))
	p := newTestPipeline(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Chart(ctx, domain.Instrument{Symbol: "XYZ"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefreshIndices(t *testing.T) {
	src := newFakeSource()
	src.fail("^VIX", &quote.HTTPError{Source: "yahoo", StatusCode: 500})
	src.set(dailySeries("^GSPC", testNow, 500))
	src.set(dailySeries("GLD", testNow, 500))
	p := newTestPipeline(src)

	_, ok := p.Indices()
	assert.False(t, ok, "no panel before the first refresh")

	panel := p.RefreshIndices(context.Background())
	require.Len(t, panel.Subplots, 3)
	assert.Equal(t, "Market Watch 📈", panel.Title)

	assert.Equal(t, "^VIX", panel.Subplots[0].Symbol)
	assert.True(t, panel.Subplots[0].Empty())
	assert.NotEmpty(t, panel.Subplots[0].Error)

	for _, sp := range panel.Subplots[1:] {
		assert.False(t, sp.Empty(), sp.Symbol)
		assert.LessOrEqual(t, len(sp.Close), IndexLookbackDays+1)
		assert.False(t, math.IsNaN(sp.Mean), sp.Symbol)
	}
	assert.Equal(t, "GLD", panel.Subplots[2].Symbol)

	for _, req := range src.calls {
		assert.Equal(t, testNow.AddDate(0, 0, -IndexLookbackDays), req.Start)
	}

	stored, ok := p.Indices()
	require.True(t, ok)
	assert.Equal(t, panel.Generated, stored.Generated)
}
