package marketwatch

import (
	"encoding/json"
	"time"
)

// Tickers lists the selectable tickers in dropdown order.
type Tickers struct {
	Tickers []string `json:"tickers"`
	Default string   `json:"default"`
}

// Instrument identifies a charted ticker and its data source.
type Instrument struct {
	Symbol          string `json:"symbol"`
	Label           string `json:"label"`
	Source          string `json:"source"`
	Timeframe       string `json:"timeframe"`
	ExcludeWeekends bool   `json:"excludeWeekends,omitempty"`
}

// Chart is the result of one chart pipeline run. Figure is a Plotly
// figure document.
type Chart struct {
	RunID      string          `json:"run_id"`
	Instrument Instrument      `json:"instrument"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Figure     json.RawMessage `json:"figure"`
}

// Subplot is one instrument of the index panel. Nil values are undefined.
type Subplot struct {
	Symbol string      `json:"symbol"`
	Name   string      `json:"name"`
	X      []time.Time `json:"x"`
	Close  []*float64  `json:"close"`
	Mean   *float64    `json:"mean"`
	Error  string      `json:"error,omitempty"`
}

// Panel is the index snapshot panel.
type Panel struct {
	Title     string    `json:"title"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Subplots  []Subplot `json:"subplots"`
	Generated time.Time `json:"generated"`
}

// Dividends is the dividend table of one ticker.
type Dividends struct {
	Ticker  string              `json:"ticker"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	Status  string              `json:"status"`
	Stale   bool                `json:"stale,omitempty"`
	Message string              `json:"message,omitempty"`
}

// ForecastPoint is one archived forecast row. Nil values are undefined.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	Lower     *float64  `json:"lower"`
	Upper     *float64  `json:"upper"`
	Trend     *float64  `json:"trend"`
}

// Forecast is an archived smoothed forecast.
type Forecast struct {
	Symbol    string          `json:"symbol"`
	Date      string          `json:"date"`
	Frequency string          `json:"frequency"`
	Points    []ForecastPoint `json:"points"`
}

// Run is one entry of the pipeline run log.
type Run struct {
	ID        string        `json:"id"`
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Status    string        `json:"status"`
	Bars      int           `json:"bars"`
	Points    int           `json:"points"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}
