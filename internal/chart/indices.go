package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"marketwatch/internal/domain"
)

// Index panel sizing.
const (
	PanelTitle  = "Market Watch 📈"
	PanelWidth  = 1500
	PanelHeight = 400
)

// Subplot is one instrument of the index panel: its close prices and a
// dashed reference line at their mean.
type Subplot struct {
	Symbol string      `json:"symbol"`
	Name   string      `json:"name"`
	X      []time.Time `json:"x"`
	Close  Values      `json:"close"`
	// Mean is NaN (null in JSON) when the subplot has no data.
	Mean  float64 `json:"-"`
	Error string  `json:"error,omitempty"`
}

// MeanLabel returns the annotation shown on the mean line.
func (s Subplot) MeanLabel() string {
	if math.IsNaN(s.Mean) {
		return ""
	}
	return fmt.Sprintf("Avg: $%.2f", s.Mean)
}

// MarshalJSON encodes Mean as null when undefined.
func (s Subplot) MarshalJSON() ([]byte, error) {
	type alias Subplot
	var mean *float64
	if !math.IsNaN(s.Mean) {
		m := s.Mean
		mean = &m
	}
	return json.Marshal(struct {
		alias
		Mean *float64 `json:"mean"`
	}{alias(s), mean})
}

// UnmarshalJSON decodes a null mean as NaN.
func (s *Subplot) UnmarshalJSON(data []byte) error {
	type alias Subplot
	aux := struct {
		*alias
		Mean *float64 `json:"mean"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Mean = math.NaN()
	if aux.Mean != nil {
		s.Mean = *aux.Mean
	}
	return nil
}

// Empty reports whether the subplot has no close prices.
func (s Subplot) Empty() bool { return len(s.Close) == 0 }

// Panel is the index snapshot: one subplot per reference instrument.
type Panel struct {
	Title     string    `json:"title"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Subplots  []Subplot `json:"subplots"`
	Generated time.Time `json:"generated"`
}

// NewSubplot builds a subplot from a close-price series.
func NewSubplot(symbol, name string, s domain.Series) Subplot {
	sp := Subplot{
		Symbol: symbol,
		Name:   name,
		X:      make([]time.Time, len(s.Bars)),
		Close:  make(Values, len(s.Bars)),
		Mean:   math.NaN(),
	}
	for i, b := range s.Bars {
		sp.X[i] = b.Timestamp
		sp.Close[i] = b.Close
	}
	if len(sp.Close) > 0 {
		sp.Mean = stat.Mean(sp.Close, nil)
	}
	return sp
}

// EmptySubplot is the subplot of an instrument whose data could not be
// retrieved.
func EmptySubplot(symbol, name string, err error) Subplot {
	sp := Subplot{Symbol: symbol, Name: name, Mean: math.NaN()}
	if err != nil {
		sp.Error = err.Error()
	}
	return sp
}

// NewPanel assembles the index panel from subplots in basket order.
func NewPanel(subplots []Subplot, generated time.Time) Panel {
	return Panel{
		Title:     PanelTitle,
		Width:     PanelWidth,
		Height:    PanelHeight,
		Subplots:  subplots,
		Generated: generated,
	}
}
