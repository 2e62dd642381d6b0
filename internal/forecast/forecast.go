// Package forecast fits an additive trend plus seasonality model to a
// (timestamp, value) series and extends it a fixed number of periods into the
// future, then smooths the result with trailing moving averages.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"marketwatch/internal/domain"
	"marketwatch/internal/util"
)

// ErrInsufficientData is returned when the input holds fewer than two usable
// observations or they all share one timestamp.
var ErrInsufficientData = errors.New("insufficient data to fit forecast")

// Options configures the adapter.
type Options struct {
	// Horizon is the number of future periods appended after the last input.
	Horizon int
	// IntervalWidth is the coverage of the lower/upper band, in (0, 1).
	IntervalWidth float64
	// WeekStart anchors weekly forecast periods.
	WeekStart time.Weekday
	// Changepoints caps the number of trend changepoints.
	Changepoints int
}

// DefaultOptions returns a 90-period horizon, 80% interval, Sunday-anchored
// weeks and up to 25 changepoints.
func DefaultOptions() Options {
	return Options{
		Horizon:       90,
		IntervalWidth: 0.8,
		WeekStart:     time.Sunday,
		Changepoints:  25,
	}
}

// Adapter reshapes observations for the model, fits it and predicts over the
// history plus the horizon.
type Adapter struct {
	opts Options
	log  *slog.Logger
}

// NewAdapter creates an Adapter. Zero option fields fall back to
// DefaultOptions.
func NewAdapter(opts Options, log *slog.Logger) *Adapter {
	def := DefaultOptions()
	if opts.Horizon <= 0 {
		opts.Horizon = def.Horizon
	}
	if opts.IntervalWidth <= 0 || opts.IntervalWidth >= 1 {
		opts.IntervalWidth = def.IntervalWidth
	}
	if opts.Changepoints <= 0 {
		opts.Changepoints = def.Changepoints
	}
	if log == nil {
		log = util.Discard()
	}
	return &Adapter{opts: opts, log: log.With("component", "forecast")}
}

// Forecast fits the model on obs and returns one point per input timestamp
// followed by Horizon future points spaced at freq.
func (a *Adapter) Forecast(ctx context.Context, symbol string, obs []domain.Observation, freq domain.Frequency) (domain.Forecast, error) {
	clean := prepare(obs)
	if len(clean) < 2 || !clean[len(clean)-1].Timestamp.After(clean[0].Timestamp) {
		return domain.Forecast{}, fmt.Errorf("%s: %d usable observations: %w", symbol, len(clean), ErrInsufficientData)
	}
	if err := ctx.Err(); err != nil {
		return domain.Forecast{}, err
	}

	start := time.Now()
	model := newAdditiveModel(a.opts.Changepoints, a.opts.IntervalWidth)
	if err := model.fit(clean); err != nil {
		return domain.Forecast{}, fmt.Errorf("fitting %s: %w", symbol, err)
	}

	ts := make([]time.Time, 0, len(clean)+a.opts.Horizon)
	for _, o := range clean {
		ts = append(ts, o.Timestamp)
	}
	last := clean[len(clean)-1].Timestamp
	anchor := a.opts.WeekStart
	if freq == domain.Weekly {
		anchor = weekAnchor(clean, anchor)
	}
	ts = append(ts, FutureTimestamps(last, freq, anchor, a.opts.Horizon)...)

	points := model.predict(ts)
	a.log.Debug("forecast fitted",
		"symbol", symbol,
		"frequency", freq.String(),
		"observations", len(clean),
		"changepoints", len(model.changepoints),
		"seasonalities", len(model.seasons),
		"elapsed", time.Since(start),
	)

	return domain.Forecast{Symbol: symbol, Frequency: freq, Points: points}, nil
}

// FutureTimestamps returns n timestamps after last at the given frequency.
// Hourly and daily periods step from last; weekly periods start at the first
// weekStart strictly after last and step by seven days.
func FutureTimestamps(last time.Time, freq domain.Frequency, weekStart time.Weekday, n int) []time.Time {
	out := make([]time.Time, 0, n)
	switch freq {
	case domain.Hourly:
		for i := 1; i <= n; i++ {
			out = append(out, last.Add(time.Duration(i)*time.Hour))
		}
	case domain.Weekly:
		first := util.NextWeekday(last, weekStart)
		for i := 0; i < n; i++ {
			out = append(out, first.AddDate(0, 0, 7*i))
		}
	default:
		for i := 1; i <= n; i++ {
			out = append(out, last.AddDate(0, 0, i))
		}
	}
	return out
}

// weekAnchor returns the weekday of future weekly periods. Input already on
// a weekly cadence (every observation on the same weekday, as provider bars
// are) keeps its own weekday; anything else is anchored on weekStart.
func weekAnchor(obs []domain.Observation, weekStart time.Weekday) time.Weekday {
	wd := obs[len(obs)-1].Timestamp.Weekday()
	for _, o := range obs {
		if o.Timestamp.Weekday() != wd {
			return weekStart
		}
	}
	return wd
}

// prepare drops non-finite values, sorts by time and keeps the last value for
// duplicate timestamps.
func prepare(obs []domain.Observation) []domain.Observation {
	out := make([]domain.Observation, 0, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) || o.Timestamp.IsZero() {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	dedup := out[:0]
	for _, o := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Timestamp.Equal(o.Timestamp) {
			dedup[n-1] = o
			continue
		}
		dedup = append(dedup, o)
	}
	return dedup
}
