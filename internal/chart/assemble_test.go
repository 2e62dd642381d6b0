package chart

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/internal/domain"
	"marketwatch/internal/forecast"
	"marketwatch/internal/series"
)

func dailySeries(symbol string, start time.Time, n int) domain.Series {
	s := domain.Series{Symbol: symbol, Timeframe: domain.TimeframeDaily, Bars: make([]domain.Bar, n)}
	for i := range s.Bars {
		c := 100 + 0.1*float64(i) + 3*math.Sin(float64(i)/20)
		s.Bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
		}
	}
	return s
}

func requireIncreasing(t *testing.T, xs []time.Time, name string) {
	t.Helper()
	for i := 1; i < len(xs); i++ {
		require.True(t, xs[i].After(xs[i-1]), "%s: x[%d]=%s not after %s", name, i, xs[i], xs[i-1])
	}
}

func TestEndToEndDailyChart(t *testing.T) {
	now := time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)
	start := now.AddDate(-3, 0, 0)
	raw := dailySeries("XYZ", midnight(start), 3*365+1)

	windowed := series.LastDays(raw, now, series.DefaultLookbackDays)
	require.False(t, windowed.Empty())

	f, err := forecast.NewAdapter(forecast.DefaultOptions(), nil).
		Forecast(context.Background(), "XYZ", windowed.Observations(), domain.Daily)
	require.NoError(t, err)
	smoothed := forecast.Smooth(f, forecast.DefaultSmoothingWindow)

	inst := domain.Instrument{Symbol: "XYZ", Timeframe: domain.TimeframeDaily}
	fig := Assemble(inst, windowed, smoothed, now)

	candles := fig.Candlesticks()
	lines := fig.Lines()
	require.Len(t, candles, 1)
	require.Len(t, lines, 4)
	assert.Len(t, fig.Data, 5)

	requireIncreasing(t, candles[0].X, candles[0].Name)
	candleMax := candles[0].X[len(candles[0].X)-1]
	for _, l := range lines {
		requireIncreasing(t, l.X, l.Name)
		lineMax := l.X[len(l.X)-1]
		assert.True(t, lineMax.Equal(candleMax.AddDate(0, 0, 90)),
			"%s max = %s, want %s", l.Name, lineMax, candleMax.AddDate(0, 0, 90))
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func smallForecast(start time.Time, n int) domain.Forecast {
	f := domain.Forecast{Symbol: "XYZ", Frequency: domain.Daily, Points: make([]domain.ForecastPoint, n)}
	for i := range f.Points {
		f.Points[i] = domain.ForecastPoint{Timestamp: start.AddDate(0, 0, i), Value: float64(i), Lower: -1, Upper: 1, Trend: 0.5}
	}
	return f
}

func TestAssembleStyling(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	generated := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	inst := domain.Instrument{Symbol: "CAD=X", Label: "USD/CAD", Timeframe: domain.TimeframeDaily}

	fig := Assemble(inst, dailySeries("CAD=X", start, 10), smallForecast(start, 15), generated)

	assert.Equal(t, "USD/CAD Price Chart", fig.Layout.Title.Text)
	assert.Equal(t, "$", fig.Layout.YAxis.TickPrefix)
	assert.Equal(t, ChartWidth, fig.Layout.Width)
	assert.Equal(t, ChartHeight, fig.Layout.Height)
	require.Len(t, fig.Layout.Annotations, 1)
	assert.Equal(t, "This graph was last generated on 2024-02-03 @ 04:05:06", fig.Layout.Annotations[0].Text)

	names := make([]string, len(fig.Data))
	for i, tr := range fig.Data {
		names[i] = tr.Name
	}
	assert.Equal(t, []string{NameCandlestick, NamePredicted, NameTrend, NameUpper, NameLower}, names)
	assert.Equal(t, PredictedColor, fig.Data[1].Line.Color)
	assert.Equal(t, 2.0, fig.Data[3].Line.Width)

	require.NotNil(t, fig.Layout.XAxis.RangeSelector)
	assert.Len(t, fig.Layout.XAxis.RangeSelector.Buttons, 3)
	assert.False(t, fig.Layout.XAxis.RangeSlider.Visible)
}

func TestAssembleHourlyHasNoRangeButtons(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	inst := domain.Instrument{Symbol: "EURUSD", Timeframe: domain.TimeframeHourly}

	fig := Assemble(inst, dailySeries("EURUSD", start, 3), smallForecast(start, 5), start)
	assert.Nil(t, fig.Layout.XAxis.RangeSelector)
}

func TestExcludeWeekends(t *testing.T) {
	// 2024-01-01 is a Monday; 14 days cover two weekends.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, f := ExcludeWeekends(dailySeries("X", start, 14), smallForecast(start, 14))

	require.Len(t, s.Bars, 10)
	require.Len(t, f.Points, 10)
	for i, b := range s.Bars {
		wd := b.Timestamp.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
		if i > 0 {
			assert.True(t, b.Timestamp.After(s.Bars[i-1].Timestamp))
		}
	}
	for i := 1; i < len(f.Points); i++ {
		assert.Greater(t, f.Points[i].Value, f.Points[i-1].Value, "order preserved")
	}
	assert.Equal(t, "X", s.Symbol)
}

func TestPlaceholder(t *testing.T) {
	fig := Placeholder("XYZ Price Chart", "Not enough data to forecast XYZ")

	assert.True(t, fig.IsPlaceholder())
	assert.Equal(t, "Not enough data to forecast XYZ", fig.Message)
	require.Len(t, fig.Layout.Annotations, 1)
	assert.Equal(t, fig.Message, fig.Layout.Annotations[0].Text)

	data, err := json.Marshal(fig)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data":[]`)
}

func TestValuesJSONEncodesNaNAsNull(t *testing.T) {
	data, err := json.Marshal(Values{1.5, math.NaN(), 3})
	require.NoError(t, err)
	assert.Equal(t, "[1.5,null,3]", string(data))

	var back Values
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 3)
	assert.True(t, math.IsNaN(back[1]))
}

func TestFigureJSONIsPlotlyShaped(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fig := Assemble(domain.Instrument{Symbol: "GLD"}, dailySeries("GLD", start, 2), smallForecast(start, 3), start)

	data, err := json.Marshal(fig)
	require.NoError(t, err)
	out := string(data)
	for _, want := range []string{`"type":"candlestick"`, `"type":"scatter"`, `"tickprefix":"$"`, `"paper_bgcolor":"#202123"`} {
		assert.True(t, strings.Contains(out, want), "missing %s", want)
	}
}
