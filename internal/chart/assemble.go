package chart

import (
	"fmt"
	"time"

	"marketwatch/internal/domain"
	"marketwatch/internal/util"
)

// Palette and sizing of the price chart.
const (
	ChartWidth  = 1400
	ChartHeight = 800

	BackgroundColor = "#202123"
	GridColor       = "#444654"
	FontFamily      = "Rockwell"
	FontColor       = "white"

	IncreasingColor = "#F6FEFF"
	DecreasingColor = "#1CBDFB"
	PredictedColor  = "#B111D6"
	TrendColor      = "#0074BA"
	BandColor       = "#1E82CD"
)

// Trace names of the price chart.
const (
	NameCandlestick = "Candlestick"
	NamePredicted   = "Predicted Price"
	NameTrend       = "Predicted Trend"
	NameUpper       = "upper_band"
	NameLower       = "lower_band"
)

// Assemble builds the price chart: a candlestick trace of s followed by the
// predicted price, trend, upper band and lower band lines of f. generated
// stamps the "last generated" annotation.
func Assemble(inst domain.Instrument, s domain.Series, f domain.Forecast, generated time.Time) Figure {
	candle := Trace{
		Type:       TraceCandlestick,
		Name:       NameCandlestick,
		X:          make([]time.Time, len(s.Bars)),
		Open:       make(Values, len(s.Bars)),
		High:       make(Values, len(s.Bars)),
		Low:        make(Values, len(s.Bars)),
		Close:      make(Values, len(s.Bars)),
		Increasing: &CandleStyle{Line: Line{Color: IncreasingColor}, FillColor: IncreasingColor},
		Decreasing: &CandleStyle{Line: Line{Color: DecreasingColor}, FillColor: DecreasingColor},
	}
	for i, b := range s.Bars {
		candle.X[i] = b.Timestamp
		candle.Open[i] = b.Open
		candle.High[i] = b.High
		candle.Low[i] = b.Low
		candle.Close[i] = b.Close
	}

	x := make([]time.Time, len(f.Points))
	value := make(Values, len(f.Points))
	trend := make(Values, len(f.Points))
	upper := make(Values, len(f.Points))
	lower := make(Values, len(f.Points))
	for i, p := range f.Points {
		x[i] = p.Timestamp
		value[i] = p.Value
		trend[i] = p.Trend
		upper[i] = p.Upper
		lower[i] = p.Lower
	}
	line := func(name string, y Values, color string, width float64) Trace {
		return Trace{Type: TraceScatter, Name: name, X: x, Y: y, Mode: "lines", Line: &Line{Color: color, Width: width}}
	}

	fig := Figure{
		Data: []Trace{
			candle,
			line(NamePredicted, value, PredictedColor, 1),
			line(NameTrend, trend, TrendColor, 1),
			line(NameUpper, upper, BandColor, 2),
			line(NameLower, lower, BandColor, 2),
		},
		Layout: baseLayout(Title(inst), generated),
	}
	if inst.Timeframe == domain.TimeframeDaily || inst.Timeframe == "" {
		fig.Layout.XAxis.RangeSelector = &RangeSelector{Buttons: []RangeButton{
			{Count: 9, Label: "6M", Step: "month", StepMode: "todate"},
			{Count: 6, Label: "3M", Step: "month", StepMode: "todate"},
			{Count: 4, Label: "1M", Step: "month", StepMode: "todate"},
		}}
	}
	return fig
}

// Title returns the price chart title of inst.
func Title(inst domain.Instrument) string {
	return inst.DisplayName() + " Price Chart"
}

// Placeholder returns an empty figure titled title whose annotation carries
// message. It stands in for charts that could not be produced.
func Placeholder(title, message string) Figure {
	layout := baseLayout(title, time.Time{})
	layout.Annotations = []Annotation{{
		Text: message, XRef: "paper", YRef: "paper", X: 0.5, Y: 0.5,
	}}
	return Figure{Data: []Trace{}, Layout: layout, Message: message}
}

func baseLayout(title string, generated time.Time) Layout {
	l := Layout{
		Title:        Text{Text: title, Font: &Font{Family: FontFamily, Size: 24, Color: FontColor}},
		Width:        ChartWidth,
		Height:       ChartHeight,
		PaperBGColor: BackgroundColor,
		PlotBGColor:  BackgroundColor,
		Font:         &Font{Family: FontFamily, Size: 14, Color: FontColor},
		XAxis: Axis{
			GridColor:   GridColor,
			RangeSlider: &RangeSlider{Visible: false},
		},
		YAxis: Axis{
			Title:      &Text{Text: "Price"},
			TickPrefix: "$",
			GridColor:  GridColor,
		},
	}
	if !generated.IsZero() {
		l.Annotations = []Annotation{{
			Text: fmt.Sprintf("This graph was last generated on %s @ %s",
				generated.Format("2006-01-02"), generated.Format("15:04:05")),
			XRef: "paper", YRef: "paper", X: 0, Y: 1.05,
		}}
	}
	return l
}

// ExcludeWeekends drops Saturday and Sunday rows from both the price series
// and the forecast, keeping the remaining rows in order.
func ExcludeWeekends(s domain.Series, f domain.Forecast) (domain.Series, domain.Forecast) {
	bars := make([]domain.Bar, 0, len(s.Bars))
	for _, b := range s.Bars {
		if !util.IsWeekend(b.Timestamp) {
			bars = append(bars, b)
		}
	}
	points := make([]domain.ForecastPoint, 0, len(f.Points))
	for _, p := range f.Points {
		if !util.IsWeekend(p.Timestamp) {
			points = append(points, p)
		}
	}
	f.Points = points
	return s.WithBars(bars), f
}
