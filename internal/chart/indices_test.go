package chart

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/internal/domain"
)

func TestNewSubplotMean(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.Series{Symbol: "GLD", Bars: []domain.Bar{
		{Timestamp: start, Close: 10},
		{Timestamp: start.AddDate(0, 0, 1), Close: 20},
		{Timestamp: start.AddDate(0, 0, 2), Close: 33},
	}}

	sp := NewSubplot("GLD", "Gold ETF", s)
	assert.InDelta(t, 21.0, sp.Mean, 1e-12)
	assert.Equal(t, "Avg: $21.00", sp.MeanLabel())
	assert.Len(t, sp.X, 3)
	assert.False(t, sp.Empty())
}

func TestEmptySubplot(t *testing.T) {
	sp := EmptySubplot("^VIX", "VIX Volatility Index", errors.New("timeout"))
	assert.True(t, sp.Empty())
	assert.True(t, math.IsNaN(sp.Mean))
	assert.Equal(t, "", sp.MeanLabel())
	assert.Equal(t, "timeout", sp.Error)

	data, err := json.Marshal(sp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mean":null`)

	var back Subplot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsNaN(back.Mean))
	assert.Equal(t, "timeout", back.Error)
}

func TestSubplotMeanDecodes(t *testing.T) {
	var sp Subplot
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"GLD","close":[1,null,3],"mean":2}`), &sp))
	assert.Equal(t, "GLD", sp.Symbol)
	assert.Equal(t, 2.0, sp.Mean)
	require.Len(t, sp.Close, 3)
	assert.True(t, math.IsNaN(sp.Close[1]))
}

func TestNewPanel(t *testing.T) {
	gen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPanel([]Subplot{EmptySubplot("A", "a", nil), EmptySubplot("B", "b", nil)}, gen)

	assert.Equal(t, PanelTitle, p.Title)
	assert.Equal(t, PanelWidth, p.Width)
	assert.Equal(t, PanelHeight, p.Height)
	assert.Len(t, p.Subplots, 2)
}
