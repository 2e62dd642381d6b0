package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marketwatch/internal/chart"
	"marketwatch/internal/domain"
	"marketwatch/internal/quote"
	"marketwatch/internal/series"
)

// IndexLookbackDays is the window of the index panel.
const IndexLookbackDays = 365

// indexFetchLimit caps concurrent index fetches.
const indexFetchLimit = 4

type indexState struct {
	mu    sync.RWMutex
	panel chart.Panel
	ok    bool
}

// RefreshIndices fetches every index of the basket concurrently and stores
// the resulting panel. A failing index yields an empty subplot; the others
// still render.
func (p *Pipeline) RefreshIndices(ctx context.Context) chart.Panel {
	start := time.Now()
	now := p.opts.Now()
	from := now.AddDate(0, 0, -IndexLookbackDays)

	subplots := make([]chart.Subplot, len(p.opts.Indices))
	var g errgroup.Group
	g.SetLimit(indexFetchLimit)
	for i, spec := range p.opts.Indices {
		g.Go(func() error {
			subplots[i] = p.indexSubplot(ctx, spec, from, now)
			return nil
		})
	}
	_ = g.Wait()

	panel := chart.NewPanel(subplots, now)
	p.indices.mu.Lock()
	p.indices.panel = panel
	p.indices.ok = true
	p.indices.mu.Unlock()

	stageSeconds.WithLabelValues("indices").Observe(time.Since(start).Seconds())
	p.log.Info("index panel refreshed", "indices", len(subplots), "elapsed", time.Since(start))
	return panel
}

func (p *Pipeline) indexSubplot(ctx context.Context, spec IndexSpec, from, now time.Time) chart.Subplot {
	inst := domain.Instrument{Symbol: spec.Symbol, Label: spec.Name, Source: domain.SourceRemote, Timeframe: domain.TimeframeDaily}
	s, err := p.quotes.Fetch(ctx, quote.RequestFor(inst, from, time.Time{}))
	if err != nil {
		p.log.Warn("index fetch failed", "symbol", spec.Symbol, "error", err)
		return chart.EmptySubplot(spec.Symbol, spec.Name, err)
	}
	return chart.NewSubplot(spec.Symbol, spec.Name, series.LastDays(s, now, IndexLookbackDays))
}

// Indices returns the last refreshed panel. ok is false before the first
// refresh.
func (p *Pipeline) Indices() (panel chart.Panel, ok bool) {
	p.indices.mu.RLock()
	defer p.indices.mu.RUnlock()
	return p.indices.panel, p.indices.ok
}
