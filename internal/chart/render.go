package chart

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/render"
	"github.com/go-echarts/go-echarts/v2/types"
)

// DefaultAssetsHost serves the echarts JavaScript bundle.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// missing is the echarts placeholder for an absent value.
const missing = "-"

// RenderOptions configures HTML rendering.
type RenderOptions struct {
	AssetsHost string
	ChartID    string
}

func (o RenderOptions) assetsHost() string {
	if o.AssetsHost == "" {
		return DefaultAssetsHost
	}
	return o.AssetsHost
}

// HTMLChart is a chart rendered for embedding in a page.
type HTMLChart struct {
	ID      string
	Element template.HTML
	Script  template.HTML
}

// PriceChart converts a price figure to an echarts candlestick chart with
// the forecast lines overlaid on a shared time axis.
func PriceChart(fig Figure, o RenderOptions) *charts.Kline {
	axis := timeAxis(fig.Data)
	labels := make([]string, len(axis))
	for i, t := range axis {
		labels[i] = axisLabel(t)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(globalOptions(fig.Layout, o)...)
	kline.SetGlobalOptions(
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 0, End: 100}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom", TextStyle: &opts.TextStyle{Color: FontColor}}),
	)
	kline.SetXAxis(labels)

	for _, c := range fig.Candlesticks() {
		kline.AddSeries(c.Name, klineData(axis, c), charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        candleColor(c.Increasing, IncreasingColor),
			Color0:       candleColor(c.Decreasing, DecreasingColor),
			BorderColor:  candleColor(c.Increasing, IncreasingColor),
			BorderColor0: candleColor(c.Decreasing, DecreasingColor),
		}))
	}

	if lines := fig.Lines(); len(lines) > 0 {
		overlay := charts.NewLine()
		overlay.SetXAxis(labels)
		for _, l := range lines {
			style := opts.LineStyle{Width: 1}
			if l.Line != nil {
				style = opts.LineStyle{Color: l.Line.Color, Width: float32(l.Line.Width)}
			}
			overlay.AddSeries(l.Name, lineData(axis, l.X, l.Y),
				charts.WithLineStyleOpts(style),
				charts.WithItemStyleOpts(opts.ItemStyle{Color: style.Color}),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			)
		}
		kline.Overlap(overlay)
	}
	return kline
}

// PanelCharts converts the index panel to one small line chart per
// instrument, each with a dashed line at the mean close.
func PanelCharts(p Panel, o RenderOptions) []*charts.Line {
	width := p.Width
	if n := len(p.Subplots); n > 0 {
		width = p.Width / n
	}

	out := make([]*charts.Line, 0, len(p.Subplots))
	for i, sp := range p.Subplots {
		line := charts.NewLine()
		id := fmt.Sprintf("%sindex%d", o.ChartID, i)
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				Width:           fmt.Sprintf("%dpx", width),
				Height:          fmt.Sprintf("%dpx", p.Height),
				BackgroundColor: BackgroundColor,
				ChartID:         id,
				AssetsHost:      o.assetsHost(),
			}),
			charts.WithTitleOpts(opts.Title{
				Title:      sp.Name,
				Subtitle:   sp.Error,
				TitleStyle: &opts.TextStyle{Color: FontColor, FontFamily: FontFamily, FontSize: 14},
			}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithYAxisOpts(opts.YAxis{
				Scale:     opts.Bool(true),
				SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: GridColor}},
				AxisLabel: &opts.AxisLabel{Color: FontColor, Formatter: types.FuncStr("${value}")},
			}),
			charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: FontColor}}),
		)

		labels := make([]string, len(sp.X))
		for j, t := range sp.X {
			labels[j] = t.Format("2006-01-02")
		}
		line.SetXAxis(labels)

		seriesOpts := []charts.SeriesOpts{
			charts.WithLineStyleOpts(opts.LineStyle{Color: DecreasingColor, Width: 1}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: DecreasingColor}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		}
		if !math.IsNaN(sp.Mean) {
			seriesOpts = append(seriesOpts,
				charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "mean", YAxis: sp.Mean}),
				charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
					LineStyle: &opts.LineStyle{Color: FontColor, Type: "dashed", Width: 1},
					Label:     &opts.Label{Show: opts.Bool(true), Color: FontColor, Formatter: sp.MeanLabel()},
				}),
			)
		}
		line.AddSeries(sp.Symbol, lineData(sp.X, sp.X, sp.Close), seriesOpts...)
		out = append(out, line)
	}
	return out
}

// RenderPriceChart renders fig for embedding in a page.
func RenderPriceChart(fig Figure, o RenderOptions) HTMLChart {
	if o.ChartID == "" {
		o.ChartID = "price"
	}
	return snippet(o.ChartID, PriceChart(fig, o))
}

// RenderPanel renders the index panel for embedding in a page.
func RenderPanel(p Panel, o RenderOptions) []HTMLChart {
	lines := PanelCharts(p, o)
	out := make([]HTMLChart, len(lines))
	for i, l := range lines {
		out[i] = snippet(fmt.Sprintf("%sindex%d", o.ChartID, i), l)
	}
	return out
}

// WritePriceChart writes fig as a standalone HTML document.
func WritePriceChart(w io.Writer, fig Figure, o RenderOptions) error {
	return PriceChart(fig, o).Render(w)
}

func snippet(id string, r render.Renderer) HTMLChart {
	s := r.RenderSnippet()
	return HTMLChart{
		ID:      id,
		Element: template.HTML(s.Element),
		Script:  template.HTML(s.Script),
	}
}

func globalOptions(l Layout, o RenderOptions) []charts.GlobalOpts {
	title := opts.Title{Title: l.Title.Text, Left: "center"}
	if f := l.Title.Font; f != nil {
		title.TitleStyle = &opts.TextStyle{Color: f.Color, FontFamily: f.Family, FontSize: f.Size}
	}
	if len(l.Annotations) > 0 {
		title.Subtitle = l.Annotations[0].Text
	}

	prefix := l.YAxis.TickPrefix
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Width:           fmt.Sprintf("%dpx", l.Width),
			Height:          fmt.Sprintf("%dpx", l.Height),
			BackgroundColor: l.PaperBGColor,
			ChartID:         o.ChartID,
			PageTitle:       l.Title.Text,
			AssetsHost:      o.assetsHost(),
		}),
		charts.WithTitleOpts(title),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Color: FontColor},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: l.XAxis.GridColor}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      axisTitle(l.YAxis),
			Scale:     opts.Bool(true),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: l.YAxis.GridColor}},
			AxisLabel: &opts.AxisLabel{Color: FontColor, Formatter: types.FuncStr(prefix + "{value}")},
		}),
	}
}

func axisTitle(a Axis) string {
	if a.Title == nil {
		return ""
	}
	return a.Title.Text
}

func candleColor(s *CandleStyle, fallback string) string {
	if s == nil || s.Line.Color == "" {
		return fallback
	}
	return s.Line.Color
}

// timeAxis returns the sorted union of all trace timestamps.
func timeAxis(traces []Trace) []time.Time {
	seen := make(map[int64]time.Time)
	for _, t := range traces {
		for _, x := range t.X {
			seen[x.UnixNano()] = x
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func axisLabel(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04")
}

func klineData(axis []time.Time, c Trace) []opts.KlineData {
	idx := make(map[int64]int, len(c.X))
	for i, x := range c.X {
		idx[x.UnixNano()] = i
	}
	out := make([]opts.KlineData, len(axis))
	for i, t := range axis {
		j, ok := idx[t.UnixNano()]
		if !ok {
			out[i] = opts.KlineData{Value: missing}
			continue
		}
		// echarts orders candle values open, close, low, high.
		out[i] = opts.KlineData{Value: [4]float64{c.Open[j], c.Close[j], c.Low[j], c.High[j]}}
	}
	return out
}

func lineData(axis, x []time.Time, y Values) []opts.LineData {
	idx := make(map[int64]int, len(x))
	for i, t := range x {
		idx[t.UnixNano()] = i
	}
	out := make([]opts.LineData, len(axis))
	for i, t := range axis {
		j, ok := idx[t.UnixNano()]
		if !ok || j >= len(y) || math.IsNaN(y[j]) || math.IsInf(y[j], 0) {
			out[i] = opts.LineData{Value: missing}
			continue
		}
		out[i] = opts.LineData{Value: y[j]}
	}
	return out
}
