// Package pipeline runs the chart pipeline (retrieve, window, forecast,
// smooth, assemble) for one instrument, maintains the index snapshot panel
// and answers dividend lookups. It records every chart run and archives the
// forecasts it produces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketwatch/internal/chart"
	"marketwatch/internal/domain"
	"marketwatch/internal/forecast"
	"marketwatch/internal/quote"
	"marketwatch/internal/series"
	"marketwatch/internal/store"
	"marketwatch/internal/util"
)

// Forecaster fits a forecast to observations. *forecast.Adapter implements
// it.
type Forecaster interface {
	Forecast(ctx context.Context, symbol string, obs []domain.Observation, freq domain.Frequency) (domain.Forecast, error)
}

var _ Forecaster = (*forecast.Adapter)(nil)

// Options tunes the pipeline.
type Options struct {
	// LookbackDays is the absolute window applied when an instrument has no
	// predicate window.
	LookbackDays int
	// SmoothingWindow is the trailing mean length applied to forecasts.
	SmoothingWindow int
	// Indices is the index panel basket, in display order.
	Indices []IndexSpec
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// IndexSpec is one benchmark of the index panel.
type IndexSpec struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Pipeline wires quote retrieval, windowing, forecasting and chart assembly.
// The stores are optional; a nil store disables the feature it backs.
type Pipeline struct {
	quotes     quote.Source
	forecaster Forecaster
	bars       store.BarStore
	archive    store.ForecastArchive
	runs       store.RunStore
	dividends  DividendLooker
	opts       Options
	log        *slog.Logger

	indices indexState
}

// New creates a Pipeline.
func New(quotes quote.Source, fc Forecaster, opts Options, log *slog.Logger) *Pipeline {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = series.DefaultLookbackDays
	}
	if opts.SmoothingWindow <= 0 {
		opts.SmoothingWindow = forecast.DefaultSmoothingWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = util.Discard()
	}
	return &Pipeline{
		quotes:     quotes,
		forecaster: fc,
		opts:       opts,
		log:        log.With("component", "pipeline"),
	}
}

// WithBarStore enables the bar snapshot used when retrieval fails.
func (p *Pipeline) WithBarStore(s store.BarStore) *Pipeline {
	p.bars = s
	return p
}

// WithForecastArchive enables archiving of produced forecasts.
func (p *Pipeline) WithForecastArchive(a store.ForecastArchive) *Pipeline {
	p.archive = a
	return p
}

// WithRunStore enables the run log.
func (p *Pipeline) WithRunStore(r store.RunStore) *Pipeline {
	p.runs = r
	return p
}

// WithDividends enables dividend lookups.
func (p *Pipeline) WithDividends(d DividendLooker) *Pipeline {
	p.dividends = d
	return p
}

// ---------------------------------------------------------------------------
// Chart pipeline
// ---------------------------------------------------------------------------

// ChartResult is the outcome of one chart run. Figure is always usable: a
// run that cannot forecast yields a placeholder figure.
type ChartResult struct {
	RunID      string            `json:"run_id"`
	Instrument domain.Instrument `json:"instrument"`
	Status     domain.RunStatus  `json:"status"`
	Figure     chart.Figure      `json:"figure"`
	Error      string            `json:"error,omitempty"`

	Series   domain.Series   `json:"-"`
	Forecast domain.Forecast `json:"-"`
}

// Chart runs the full chart pipeline for inst. The only error returned is
// the context's; every other failure is folded into the result status.
func (p *Pipeline) Chart(ctx context.Context, inst domain.Instrument) (ChartResult, error) {
	if inst.Timeframe == "" {
		inst.Timeframe = domain.TimeframeDaily
	}
	began := time.Now()
	now := p.opts.Now()
	run := domain.PipelineRun{
		ID:        uuid.NewString(),
		Symbol:    inst.Symbol,
		Timeframe: inst.Timeframe,
		StartedAt: now,
	}
	res := ChartResult{RunID: run.ID, Instrument: inst}

	err := p.chart(ctx, inst, now, &res)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if err != nil {
		res.Error = err.Error()
	}

	run.Status = res.Status
	run.Bars = res.Series.Len()
	run.Points = len(res.Forecast.Points)
	run.Error = res.Error
	run.Duration = time.Since(began)
	p.record(ctx, run)

	level := slog.LevelInfo
	if res.Status == domain.RunError {
		level = slog.LevelWarn
	}
	p.log.Log(ctx, level, "chart run finished",
		"run_id", run.ID,
		"symbol", inst.Symbol,
		"timeframe", string(inst.Timeframe),
		"status", string(res.Status),
		"bars", run.Bars,
		"points", run.Points,
		"error", res.Error,
	)
	return res, nil
}

func (p *Pipeline) chart(ctx context.Context, inst domain.Instrument, now time.Time, res *ChartResult) error {
	title := chart.Title(inst)

	stage := time.Now()
	s, status, err := p.load(ctx, inst)
	stageSeconds.WithLabelValues("fetch").Observe(time.Since(stage).Seconds())
	if err != nil {
		res.Status = status
		res.Figure = chart.Placeholder(title, fmt.Sprintf("No data available for %s", inst.DisplayName()))
		return err
	}
	res.Status = status

	stage = time.Now()
	windowed, err := p.window(inst, s, now)
	stageSeconds.WithLabelValues("window").Observe(time.Since(stage).Seconds())
	if err != nil {
		res.Status = domain.RunError
		res.Figure = chart.Placeholder(title, fmt.Sprintf("Invalid window for %s", inst.DisplayName()))
		return err
	}
	res.Series = windowed

	stage = time.Now()
	raw, err := p.forecaster.Forecast(ctx, inst.Symbol, windowed.Observations(), inst.Timeframe.Frequency())
	stageSeconds.WithLabelValues("forecast").Observe(time.Since(stage).Seconds())
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientData) {
			res.Status = domain.RunInsufficientData
			res.Figure = chart.Placeholder(title, fmt.Sprintf("Not enough data to forecast %s", inst.DisplayName()))
			return err
		}
		res.Status = domain.RunError
		res.Figure = chart.Placeholder(title, fmt.Sprintf("Forecast failed for %s", inst.DisplayName()))
		return err
	}
	smoothed := forecast.Smooth(raw, p.opts.SmoothingWindow)
	p.archiveForecast(ctx, smoothed, now)

	stage = time.Now()
	if inst.ExcludeWeekends {
		windowed, smoothed = chart.ExcludeWeekends(windowed, smoothed)
	}
	res.Series = windowed
	res.Forecast = smoothed
	res.Figure = chart.Assemble(inst, windowed, smoothed, now)
	stageSeconds.WithLabelValues("assemble").Observe(time.Since(stage).Seconds())
	return nil
}

// load retrieves the full history of inst. Fresh bars refresh the snapshot;
// when retrieval fails the snapshot is served instead.
func (p *Pipeline) load(ctx context.Context, inst domain.Instrument) (domain.Series, domain.RunStatus, error) {
	s, fetchErr := p.quotes.Fetch(ctx, quote.RequestFor(inst, time.Time{}, time.Time{}))
	if fetchErr == nil && !s.Empty() {
		if s.Symbol == "" {
			s.Symbol = inst.Symbol
		}
		s.Timeframe = inst.Timeframe
		p.snapshot(ctx, inst, s)
		return s, domain.RunOK, nil
	}
	if fetchErr == nil {
		fetchErr = fmt.Errorf("%s: %w", inst.Symbol, quote.ErrNoData)
	}
	if ctx.Err() != nil {
		return domain.Series{}, domain.RunError, ctx.Err()
	}
	p.log.Warn("quote retrieval failed", "symbol", inst.Symbol, "error", fetchErr)

	if p.bars != nil {
		bars, err := p.bars.ReadBars(ctx, inst.Symbol, inst.Timeframe, time.Time{}, time.Time{})
		if err != nil {
			p.log.Warn("reading bar snapshot failed", "symbol", inst.Symbol, "error", err)
		} else if len(bars) > 0 {
			p.log.Info("serving bar snapshot", "symbol", inst.Symbol, "bars", len(bars))
			return domain.Series{Symbol: inst.Symbol, Timeframe: inst.Timeframe, Bars: bars}, domain.RunSnapshot, nil
		}
	}
	return domain.Series{}, domain.RunNoData, fetchErr
}

func (p *Pipeline) snapshot(ctx context.Context, inst domain.Instrument, s domain.Series) {
	if p.bars == nil {
		return
	}
	bars := make([]domain.Bar, len(s.Bars))
	for i, b := range s.Bars {
		b.Symbol = inst.Symbol
		bars[i] = b
	}
	if err := p.bars.WriteBars(ctx, inst.Timeframe, bars); err != nil {
		p.log.Warn("writing bar snapshot failed", "symbol", inst.Symbol, "error", err)
	}
}

// window applies the instrument's predicate window, or the absolute
// lookback when it has none.
func (p *Pipeline) window(inst domain.Instrument, s domain.Series, now time.Time) (domain.Series, error) {
	pred, ok, err := series.PredicateFromWindow(inst.Window)
	if err != nil {
		return domain.Series{}, err
	}
	if ok {
		return series.Filter(s, pred)
	}
	return series.LastDays(s, now, p.opts.LookbackDays), nil
}

func (p *Pipeline) archiveForecast(ctx context.Context, f domain.Forecast, day time.Time) {
	if p.archive == nil {
		return
	}
	if err := p.archive.WriteForecast(ctx, f, day); err != nil {
		p.log.Warn("archiving forecast failed", "symbol", f.Symbol, "error", err)
	}
}

func (p *Pipeline) record(ctx context.Context, run domain.PipelineRun) {
	runsTotal.WithLabelValues(string(run.Status)).Inc()
	if p.runs == nil {
		return
	}
	if err := p.runs.SaveRun(ctx, &run); err != nil {
		p.log.Warn("saving run failed", "run_id", run.ID, "error", err)
	}
}
