// Package httpapi serves the market watch page and its JSON API: tickers,
// price charts, the index panel, dividends, archived forecasts and the run
// log.
package httpapi

import (
	"math"
	"time"

	"marketwatch/internal/dividend"
	"marketwatch/internal/domain"
)

// TickersJSON lists the selectable tickers in dropdown order.
type TickersJSON struct {
	Tickers []string `json:"tickers"`
	Default string   `json:"default"`
}

// DividendsJSON is the dividend table of one ticker.
type DividendsJSON struct {
	Ticker string `json:"ticker"`
	dividend.Table
}

// ForecastDatesJSON lists the days with an archived forecast.
type ForecastDatesJSON struct {
	Symbol string   `json:"symbol"`
	Dates  []string `json:"dates"`
}

// ForecastPointJSON is one archived forecast row. Undefined values are null.
type ForecastPointJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	Lower     *float64  `json:"lower"`
	Upper     *float64  `json:"upper"`
	Trend     *float64  `json:"trend"`
}

// ForecastJSON is an archived forecast.
type ForecastJSON struct {
	Symbol    string              `json:"symbol"`
	Date      string              `json:"date"`
	Frequency string              `json:"frequency"`
	Points    []ForecastPointJSON `json:"points"`
}

// RunsJSON is a page of the run log, newest first.
type RunsJSON struct {
	Runs []domain.PipelineRun `json:"runs"`
}

func toForecastJSON(f domain.Forecast, day time.Time) ForecastJSON {
	out := ForecastJSON{
		Symbol:    f.Symbol,
		Date:      day.Format(time.DateOnly),
		Frequency: f.Frequency.String(),
		Points:    make([]ForecastPointJSON, len(f.Points)),
	}
	for i, p := range f.Points {
		out.Points[i] = ForecastPointJSON{
			Timestamp: p.Timestamp,
			Value:     nullable(p.Value),
			Lower:     nullable(p.Lower),
			Upper:     nullable(p.Upper),
			Trend:     nullable(p.Trend),
		}
	}
	return out
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
