// Package scheduler periodically refreshes the index panel and the last
// selected price chart.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"marketwatch/internal/chart"
	"marketwatch/internal/domain"
	"marketwatch/internal/pipeline"
	"marketwatch/internal/util"
)

// DefaultSpec refreshes every fifteen minutes.
const DefaultSpec = "@every 15m"

// DefaultRunTimeout bounds a single refresh.
const DefaultRunTimeout = 5 * time.Minute

// Runner is the part of the pipeline the refresher drives.
type Runner interface {
	RefreshIndices(ctx context.Context) chart.Panel
	Chart(ctx context.Context, inst domain.Instrument) (pipeline.ChartResult, error)
}

var _ Runner = (*pipeline.Pipeline)(nil)

// Refresher owns the cron schedule and the chart of the current selection.
// Ticks never overlap: a run that outlasts the interval delays the next one.
type Refresher struct {
	runner  Runner
	spec    string
	timeout time.Duration
	log     *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	selected domain.Instrument
	latest   *pipeline.ChartResult
}

// New creates a Refresher for the cron spec (robfig/cron standard syntax,
// descriptors such as "@every 15m" included). initial is the selection used
// until a page request changes it.
func New(runner Runner, spec string, initial domain.Instrument, log *slog.Logger) *Refresher {
	if spec == "" {
		spec = DefaultSpec
	}
	if log == nil {
		log = util.Discard()
	}
	log = log.With("component", "refresher")
	cl := cronLogger{log: log}
	return &Refresher{
		runner:   runner,
		spec:     spec,
		timeout:  DefaultRunTimeout,
		log:      log,
		selected: initial,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.DelayIfStillRunning(cl)),
		),
	}
}

// Interval returns the gap between two consecutive activations of spec.
// The page uses it as its reload period.
func Interval(spec string) (time.Duration, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("parse refresh spec %q: %w", spec, err)
	}
	first := sched.Next(time.Now())
	return sched.Next(first).Sub(first), nil
}

// Start registers the refresh job, runs it once immediately and starts the
// schedule. Jobs run under ctx until Stop.
func (r *Refresher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	id, err := r.cron.AddFunc(r.spec, func() { r.Tick(ctx) })
	if err != nil {
		cancel()
		return fmt.Errorf("register refresh job %q: %w", r.spec, err)
	}
	r.cancel = cancel

	// The wrapped job shares the DelayIfStillRunning lock with scheduled ticks.
	job := r.cron.Entry(id).WrappedJob
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		job.Run()
	}()
	r.cron.Start()
	r.log.Info("refresher started", "spec", r.spec)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.cron.Stop().Done()
	r.wg.Wait()
	r.log.Info("refresher stopped")
}

// Tick refreshes the index panel and the selected chart.
func (r *Refresher) Tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	r.runner.RefreshIndices(ctx)

	r.mu.Lock()
	inst := r.selected
	r.mu.Unlock()
	if inst.Symbol != "" {
		if _, err := r.run(ctx, inst); err != nil {
			r.log.Warn("chart refresh interrupted", "symbol", inst.Symbol, "error", err)
		}
	}
	r.log.Info("refresh finished", "symbol", inst.Symbol, "elapsed", time.Since(start))
}

// Select makes inst the current selection and returns its chart. A change
// of selection runs the pipeline synchronously; reselecting the current
// instrument returns the chart of the last run.
func (r *Refresher) Select(ctx context.Context, inst domain.Instrument) (pipeline.ChartResult, error) {
	r.mu.Lock()
	if r.latest != nil && sameInstrument(r.latest.Instrument, inst) {
		res := *r.latest
		r.selected = inst
		r.mu.Unlock()
		return res, nil
	}
	r.selected = inst
	r.mu.Unlock()
	return r.run(ctx, inst)
}

// Latest returns the chart of the last run, if any.
func (r *Refresher) Latest() (pipeline.ChartResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return pipeline.ChartResult{}, false
	}
	return *r.latest, true
}

// Selected returns the current selection.
func (r *Refresher) Selected() domain.Instrument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

func (r *Refresher) run(ctx context.Context, inst domain.Instrument) (pipeline.ChartResult, error) {
	res, err := r.runner.Chart(ctx, inst)
	if err != nil {
		return res, err
	}
	r.mu.Lock()
	if sameInstrument(r.selected, inst) {
		r.latest = &res
	}
	r.mu.Unlock()
	return res, nil
}

func sameInstrument(a, b domain.Instrument) bool {
	return strings.EqualFold(a.Symbol, b.Symbol) && a.Timeframe == b.Timeframe
}

// ---------------------------------------------------------------------------
// cron logging
// ---------------------------------------------------------------------------

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
