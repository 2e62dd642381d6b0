// Package domain defines the core records shared by the market watch
// pipeline: price bars and series, forecast points, instruments and dividend
// records.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Price data
// ---------------------------------------------------------------------------

// Bar is a single OHLC record for one sampling period.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Series is a time-ordered sequence of bars for one symbol. Timestamps are
// strictly increasing.
type Series struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Bars      []Bar     `json:"bars"`
}

// Len returns the number of bars in the series.
func (s Series) Len() int { return len(s.Bars) }

// Empty reports whether the series has no bars.
func (s Series) Empty() bool { return len(s.Bars) == 0 }

// First returns the timestamp of the first bar, or the zero time.
func (s Series) First() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Timestamp
}

// Last returns the timestamp of the last bar, or the zero time.
func (s Series) Last() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp
}

// Observations projects the series onto (timestamp, close) pairs, the input
// shape expected by the forecaster.
func (s Series) Observations() []Observation {
	out := make([]Observation, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = Observation{Timestamp: b.Timestamp, Value: b.Close}
	}
	return out
}

// WithBars returns a copy of the series header holding the given bars.
func (s Series) WithBars(bars []Bar) Series {
	return Series{Symbol: s.Symbol, Timeframe: s.Timeframe, Bars: bars}
}

// ---------------------------------------------------------------------------
// Timeframes and frequencies
// ---------------------------------------------------------------------------

// Timeframe is the sampling interval of a price series.
type Timeframe string

const (
	TimeframeHourly Timeframe = "1h"
	TimeframeDaily  Timeframe = "1d"
	TimeframeWeekly Timeframe = "1wk"
)

// ParseTimeframe accepts the canonical names plus the period codes used by
// exported flat files ("60", "1440", "10080").
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1d", "d", "daily", "1440":
		return TimeframeDaily, nil
	case "1h", "h", "60m", "hourly", "60":
		return TimeframeHourly, nil
	case "1wk", "1w", "w", "weekly", "10080":
		return TimeframeWeekly, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// PeriodCode returns the bar length in minutes, the code used in flat-file
// names.
func (tf Timeframe) PeriodCode() int {
	switch tf {
	case TimeframeHourly:
		return 60
	case TimeframeWeekly:
		return 10080
	default:
		return 1440
	}
}

// Frequency returns the forecast sampling frequency matching the timeframe.
func (tf Timeframe) Frequency() Frequency {
	switch tf {
	case TimeframeHourly:
		return Hourly
	case TimeframeWeekly:
		return Weekly
	default:
		return Daily
	}
}

// Frequency is the calendar cadence of observations and forecast periods.
type Frequency int

const (
	Daily Frequency = iota
	Hourly
	Weekly
)

func (f Frequency) String() string {
	switch f {
	case Hourly:
		return "hourly"
	case Weekly:
		return "weekly"
	default:
		return "daily"
	}
}

// ParseWeekday parses an English weekday name or its three-letter
// abbreviation.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// ---------------------------------------------------------------------------
// Forecasts
// ---------------------------------------------------------------------------

// Observation is one (timestamp, value) pair of forecast input.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ForecastPoint is one row of forecast output. After smoothing, undefined
// values are NaN.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
	Trend     float64   `json:"trend"`
}

// Forecast covers the input horizon plus the requested future periods.
type Forecast struct {
	Symbol    string          `json:"symbol"`
	Frequency Frequency       `json:"frequency"`
	Points    []ForecastPoint `json:"points"`
}

// Last returns the timestamp of the last forecast point, or the zero time.
func (f Forecast) Last() time.Time {
	if len(f.Points) == 0 {
		return time.Time{}
	}
	return f.Points[len(f.Points)-1].Timestamp
}

// ---------------------------------------------------------------------------
// Instruments
// ---------------------------------------------------------------------------

// SourceKind selects the quote retrieval strategy for an instrument.
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceFile   SourceKind = "file"
)

// Window describes how an instrument's history is truncated before
// forecasting. An empty Column means the absolute lookback applies.
type Window struct {
	Column    string `json:"column,omitempty"`
	Threshold string `json:"threshold,omitempty"`
}

// Instrument is a selectable ticker together with how its data is sourced
// and charted.
type Instrument struct {
	Symbol          string     `json:"symbol"`
	Label           string     `json:"label"`
	Source          SourceKind `json:"source"`
	Timeframe       Timeframe  `json:"timeframe"`
	ExcludeWeekends bool       `json:"excludeWeekends,omitempty"`
	Window          Window     `json:"window,omitempty"`
}

// DisplayName returns the label when set, otherwise the symbol.
func (i Instrument) DisplayName() string {
	if i.Label != "" {
		return i.Label
	}
	return i.Symbol
}

// ---------------------------------------------------------------------------
// Dividends
// ---------------------------------------------------------------------------

// DividendRecord is the most recent dividend declared for a ticker.
type DividendRecord struct {
	Ticker         string          `json:"ticker"`
	CashAmount     decimal.Decimal `json:"cash_amount"`
	ExDividendDate string          `json:"ex_dividend_date"`
	Frequency      int             `json:"frequency"`
	PayDate        string          `json:"pay_date"`
}

// ---------------------------------------------------------------------------
// Pipeline runs
// ---------------------------------------------------------------------------

// RunStatus is the outcome of one chart pipeline run.
type RunStatus string

const (
	// RunOK means fresh data was fetched, forecast and charted.
	RunOK RunStatus = "ok"
	// RunSnapshot means the fetch failed and the last stored bars were used.
	RunSnapshot RunStatus = "snapshot"
	// RunNoData means no bars could be obtained at all.
	RunNoData RunStatus = "no_data"
	// RunInsufficientData means the windowed series was too short to forecast.
	RunInsufficientData RunStatus = "insufficient_data"
	// RunError is any other failure.
	RunError RunStatus = "error"
)

// PipelineRun records one execution of the chart pipeline.
type PipelineRun struct {
	ID        string        `json:"id"`
	Symbol    string        `json:"symbol"`
	Timeframe Timeframe     `json:"timeframe"`
	Status    RunStatus     `json:"status"`
	Bars      int           `json:"bars"`
	Points    int           `json:"points"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}
