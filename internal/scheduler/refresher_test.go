package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/internal/chart"
	"marketwatch/internal/domain"
	"marketwatch/internal/pipeline"
)

type fakeRunner struct {
	mu      sync.Mutex
	indices int
	charts  []string
}

func (f *fakeRunner) RefreshIndices(context.Context) chart.Panel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indices++
	return chart.NewPanel(nil, time.Now())
}

func (f *fakeRunner) Chart(ctx context.Context, inst domain.Instrument) (pipeline.ChartResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.ChartResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charts = append(f.charts, inst.Symbol)
	return pipeline.ChartResult{
		RunID:      fmt.Sprintf("%s-%d", inst.Symbol, len(f.charts)),
		Instrument: inst,
		Status:     domain.RunOK,
	}, nil
}

func (f *fakeRunner) counts() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indices, append([]string(nil), f.charts...)
}

var (
	cad = domain.Instrument{Symbol: "CAD=X", Label: "USD/CAD", Timeframe: domain.TimeframeDaily}
	gld = domain.Instrument{Symbol: "GLD", Timeframe: domain.TimeframeDaily}
)

func TestSelectRunsOnChange(t *testing.T) {
	fr := &fakeRunner{}
	r := New(fr, "", cad, nil)
	ctx := context.Background()

	first, err := r.Select(ctx, cad)
	require.NoError(t, err)
	assert.Equal(t, "CAD=X", first.Instrument.Symbol)

	again, err := r.Select(ctx, cad)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, again.RunID, "reselecting returns the last run")

	other, err := r.Select(ctx, gld)
	require.NoError(t, err)
	assert.Equal(t, "GLD", other.Instrument.Symbol)
	assert.Equal(t, gld, r.Selected())

	_, charts := fr.counts()
	assert.Equal(t, []string{"CAD=X", "GLD"}, charts)

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, other.RunID, latest.RunID)
}

func TestTickRefreshesIndicesAndSelection(t *testing.T) {
	fr := &fakeRunner{}
	r := New(fr, "", gld, nil)

	r.Tick(context.Background())
	r.Tick(context.Background())

	indices, charts := fr.counts()
	assert.Equal(t, 2, indices)
	assert.Equal(t, []string{"GLD", "GLD"}, charts)

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, "GLD", latest.Instrument.Symbol)
}

func TestTickWithoutSelection(t *testing.T) {
	fr := &fakeRunner{}
	r := New(fr, "", domain.Instrument{}, nil)

	r.Tick(context.Background())
	indices, charts := fr.counts()
	assert.Equal(t, 1, indices)
	assert.Empty(t, charts)
	_, ok := r.Latest()
	assert.False(t, ok)
}

func TestStartRunsImmediately(t *testing.T) {
	fr := &fakeRunner{}
	r := New(fr, "@every 1h", cad, nil)

	require.NoError(t, r.Start(context.Background()))
	assert.Eventually(t, func() bool {
		indices, charts := fr.counts()
		return indices == 1 && len(charts) == 1
	}, 2*time.Second, 10*time.Millisecond)
	r.Stop()

	indices, _ := fr.counts()
	assert.Equal(t, 1, indices)
}

func TestStartRejectsBadSpec(t *testing.T) {
	r := New(&fakeRunner{}, "every now and then", cad, nil)
	err := r.Start(context.Background())
	assert.Error(t, err)
}

func TestInterval(t *testing.T) {
	tests := []struct {
		spec string
		want time.Duration
	}{
		{"", 15 * time.Minute},
		{"@every 15m", 15 * time.Minute},
		{"@hourly", time.Hour},
		{"*/5 * * * *", 5 * time.Minute},
	}
	for _, tt := range tests {
		got, err := Interval(tt.spec)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.want, got, tt.spec)
	}

	_, err := Interval("sometimes")
	assert.Error(t, err)
}
