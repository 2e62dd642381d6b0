package httpapi

import (
	"bytes"
	"net/http"

	"marketwatch/internal/chart"
	"marketwatch/internal/dividend"
)

// tickerOption is one dropdown entry: the symbol submitted and the name shown.
type tickerOption struct {
	Value    string
	Label    string
	Selected bool
}

// pageData feeds pageTemplate.
type pageData struct {
	Title          string
	EChartsURL     string
	RefreshSeconds int
	Options        []tickerOption
	Generated      string
	Indices        []chart.HTMLChart
	IndexErrors    []string
	Price          chart.HTMLChart
	Status         string
	Dividends      dividend.Table
	DividendRows   [][]string
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
{{if .RefreshSeconds}}<meta http-equiv="refresh" content="{{.RefreshSeconds}}">{{end}}
<title>{{.Title}}</title>
<script src="{{.EChartsURL}}"></script>
<style>
body { background: #202123; color: white; font-family: Rockwell, sans-serif; margin: 16px; }
select, button { font-size: 14px; }
table.dividends { border-collapse: collapse; margin-top: 16px; }
table.dividends th, table.dividends td { border: 1px solid #444654; padding: 4px 10px; }
.note { color: #9a9ba3; }
.container { display: inline-block; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="indices">{{range .Indices}}{{.Element}}{{end}}</div>
{{range .IndexErrors}}<p class="note">{{.}}</p>{{end}}
<form method="get" action="/">
<label for="ticker">Ticker</label>
<select id="ticker" name="ticker" onchange="this.form.submit()">
{{range .Options}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>
{{end}}</select>
<noscript><button type="submit">Show</button></noscript>
</form>
<div class="price" data-status="{{.Status}}">{{.Price.Element}}</div>
<table class="dividends">
<thead><tr>{{range .Dividends.Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .DividendRows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
</table>
{{with .Dividends.Message}}<p class="note">{{.}}</p>{{end}}
<p class="note">Generated {{.Generated}}</p>
{{range .Indices}}{{.Script}}{{end}}
{{.Price.Script}}
</body>
</html>
`

// handlePage renders the dashboard for the ?ticker= selection, falling back
// to the default ticker. An optional ?timeframe= overrides the instrument's.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.catalog.Canonical(r.URL.Query().Get("ticker"))
	if !ok {
		ticker = s.catalog.Default()
	}
	inst, err := s.instrument(r, ticker)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.selector.Select(r.Context(), inst)
	if err != nil {
		s.log.Warn("page chart interrupted", "symbol", inst.Symbol, "error", err)
		http.Error(w, "chart unavailable", http.StatusServiceUnavailable)
		return
	}

	ro := chart.RenderOptions{AssetsHost: s.opts.AssetsHost}
	data := pageData{
		Title:          chart.PanelTitle,
		EChartsURL:     s.opts.AssetsHost + "echarts.min.js",
		RefreshSeconds: int(s.opts.RefreshEvery.Seconds()),
		Options:        s.tickerOptions(ticker),
		Price:          chart.RenderPriceChart(res.Figure, ro),
		Status:         string(res.Status),
	}
	if panel, ok := s.charts.Indices(); ok {
		data.Indices = chart.RenderPanel(panel, ro)
		data.Generated = panel.Generated.Format("2006-01-02 15:04:05")
		for _, sp := range panel.Subplots {
			if sp.Error != "" {
				data.IndexErrors = append(data.IndexErrors, sp.Name+": no data")
			}
		}
	}

	data.Dividends = s.charts.DividendTable(r.Context(), inst.Symbol)
	for _, row := range data.Dividends.Rows {
		data.DividendRows = append(data.DividendRows, data.Dividends.Cells(row))
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		s.log.Error("rendering page", "error", err)
		http.Error(w, "rendering page failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) tickerOptions(selected string) []tickerOption {
	tickers := s.catalog.Tickers()
	out := make([]tickerOption, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, tickerOption{
			Value:    t,
			Label:    s.catalog.Instrument(t).DisplayName(),
			Selected: t == selected,
		})
	}
	return out
}
