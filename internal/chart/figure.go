// Package chart assembles price, forecast and index data into chart figures.
// Figures serialise to Plotly-compatible JSON for API clients and render to
// HTML through go-echarts for the dashboard page.
package chart

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Values is a numeric column. NaN encodes as JSON null so undefined
// smoothed rows survive serialisation.
type Values []float64

// MarshalJSON implements json.Marshaler.
func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler; null decodes as NaN.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = nil
		return nil
	}
	out := make(Values, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *p
	}
	*v = out
	return nil
}

// Trace types.
const (
	TraceCandlestick = "candlestick"
	TraceScatter     = "scatter"
)

// Line styles a scatter trace.
type Line struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	Dash  string  `json:"dash,omitempty"`
}

// CandleStyle styles the increasing or decreasing candles.
type CandleStyle struct {
	Line      Line   `json:"line"`
	FillColor string `json:"fillcolor,omitempty"`
}

// Trace is one plotted series.
type Trace struct {
	Type string      `json:"type"`
	Name string      `json:"name"`
	X    []time.Time `json:"x"`

	// Candlestick columns.
	Open  Values `json:"open,omitempty"`
	High  Values `json:"high,omitempty"`
	Low   Values `json:"low,omitempty"`
	Close Values `json:"close,omitempty"`

	// Scatter column.
	Y    Values `json:"y,omitempty"`
	Mode string `json:"mode,omitempty"`
	Line *Line  `json:"line,omitempty"`

	Increasing *CandleStyle `json:"increasing,omitempty"`
	Decreasing *CandleStyle `json:"decreasing,omitempty"`
}

// Text is a title with an optional font.
type Text struct {
	Text string `json:"text"`
	Font *Font  `json:"font,omitempty"`
}

// Font describes text styling.
type Font struct {
	Family string `json:"family,omitempty"`
	Size   int    `json:"size,omitempty"`
	Color  string `json:"color,omitempty"`
}

// RangeButton is a quick-range selector button.
type RangeButton struct {
	Count    int    `json:"count"`
	Label    string `json:"label"`
	Step     string `json:"step"`
	StepMode string `json:"stepmode"`
}

// RangeSelector holds the quick-range buttons of an axis.
type RangeSelector struct {
	Buttons []RangeButton `json:"buttons"`
}

// RangeSlider toggles the axis range slider.
type RangeSlider struct {
	Visible bool `json:"visible"`
}

// Axis configures one chart axis.
type Axis struct {
	Title         *Text          `json:"title,omitempty"`
	TickPrefix    string         `json:"tickprefix,omitempty"`
	GridColor     string         `json:"gridcolor,omitempty"`
	RangeSlider   *RangeSlider   `json:"rangeslider,omitempty"`
	RangeSelector *RangeSelector `json:"rangeselector,omitempty"`
}

// Annotation is free text placed on the figure.
type Annotation struct {
	Text      string  `json:"text"`
	XRef      string  `json:"xref"`
	YRef      string  `json:"yref"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ShowArrow bool    `json:"showarrow"`
}

// Layout holds figure-level presentation settings.
type Layout struct {
	Title        Text         `json:"title"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	PaperBGColor string       `json:"paper_bgcolor,omitempty"`
	PlotBGColor  string       `json:"plot_bgcolor,omitempty"`
	Font         *Font        `json:"font,omitempty"`
	XAxis        Axis         `json:"xaxis"`
	YAxis        Axis         `json:"yaxis"`
	Annotations  []Annotation `json:"annotations,omitempty"`
}

// Figure is a complete chart: traces plus layout. A placeholder figure has
// no traces and explains why in Message.
type Figure struct {
	Data    []Trace `json:"data"`
	Layout  Layout  `json:"layout"`
	Message string  `json:"message,omitempty"`
}

// IsPlaceholder reports whether the figure carries no data.
func (f Figure) IsPlaceholder() bool { return len(f.Data) == 0 }

// Candlesticks returns the candlestick traces.
func (f Figure) Candlesticks() []Trace { return f.tracesOfType(TraceCandlestick) }

// Lines returns the scatter (line) traces.
func (f Figure) Lines() []Trace { return f.tracesOfType(TraceScatter) }

func (f Figure) tracesOfType(typ string) []Trace {
	var out []Trace
	for _, t := range f.Data {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}
