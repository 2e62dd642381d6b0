package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketwatch/internal/chart"
	"marketwatch/internal/dividend"
	"marketwatch/internal/domain"
	"marketwatch/internal/pipeline"
	"marketwatch/internal/scheduler"
	"marketwatch/internal/store"
	"marketwatch/internal/util"
)

// Charter runs chart pipelines and serves the index panel and dividends.
type Charter interface {
	Chart(ctx context.Context, inst domain.Instrument) (pipeline.ChartResult, error)
	Indices() (chart.Panel, bool)
	DividendTable(ctx context.Context, ticker string) dividend.Table
}

// Selector tracks the page selection; a new selection runs the pipeline.
type Selector interface {
	Select(ctx context.Context, inst domain.Instrument) (pipeline.ChartResult, error)
}

var (
	_ Charter  = (*pipeline.Pipeline)(nil)
	_ Selector = (*scheduler.Refresher)(nil)
)

// Options configures the page.
type Options struct {
	// AssetsHost serves echarts.min.js.
	AssetsHost string
	// RefreshEvery is the page reload period; zero disables reloading.
	RefreshEvery time.Duration
}

// Server serves the dashboard page and JSON API.
type Server struct {
	charts    Charter
	selector  Selector
	catalog   *pipeline.Catalog
	forecasts store.ForecastArchive
	runs      store.RunStore
	opts      Options
	log       *slog.Logger
	page      *template.Template
}

// NewServer creates a Server. selector may be nil, in which case the page
// runs the pipeline on every request. forecasts and runs may be nil; their
// endpoints then answer 404.
func NewServer(
	charts Charter,
	selector Selector,
	catalog *pipeline.Catalog,
	forecasts store.ForecastArchive,
	runs store.RunStore,
	opts Options,
	log *slog.Logger,
) *Server {
	if selector == nil {
		selector = chartSelector{charts}
	}
	if opts.AssetsHost == "" {
		opts.AssetsHost = chart.DefaultAssetsHost
	}
	if log == nil {
		log = util.Discard()
	}
	return &Server{
		charts:    charts,
		selector:  selector,
		catalog:   catalog,
		forecasts: forecasts,
		runs:      runs,
		opts:      opts,
		log:       log.With("component", "httpapi"),
		page:      template.Must(template.New("page").Parse(pageTemplate)),
	}
}

// chartSelector runs the pipeline for every selection.
type chartSelector struct{ charts Charter }

func (c chartSelector) Select(ctx context.Context, inst domain.Instrument) (pipeline.ChartResult, error) {
	return c.charts.Chart(ctx, inst)
}

// RegisterRoutes registers all routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /api/tickers", s.handleTickers)
	mux.HandleFunc("GET /api/chart/{symbol}", s.handleChart)
	mux.HandleFunc("GET /api/indices", s.handleIndices)
	mux.HandleFunc("GET /api/dividends/{ticker}", s.handleDividends)
	mux.HandleFunc("GET /api/forecasts/{symbol}", s.handleForecastDates)
	mux.HandleFunc("GET /api/forecasts/{symbol}/{date}", s.handleForecast)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// instrument resolves the symbol path value and optional timeframe query.
func (s *Server) instrument(r *http.Request, symbol string) (domain.Instrument, error) {
	inst := s.catalog.Instrument(symbol)
	if tf := r.URL.Query().Get("timeframe"); tf != "" {
		parsed, err := domain.ParseTimeframe(tf)
		if err != nil {
			return domain.Instrument{}, err
		}
		inst.Timeframe = parsed
	}
	return inst, nil
}

// ---------------------------------------------------------------------------
// JSON handlers
// ---------------------------------------------------------------------------

func (s *Server) handleTickers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, TickersJSON{Tickers: s.catalog.Tickers(), Default: s.catalog.Default()})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.PathValue("symbol"))
	inst, err := s.instrument(r, symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.charts.Chart(r.Context(), inst)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleIndices(w http.ResponseWriter, _ *http.Request) {
	panel, ok := s.charts.Indices()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "index panel not ready")
		return
	}
	writeJSON(w, panel)
}

func (s *Server) handleDividends(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
	writeJSON(w, DividendsJSON{Ticker: ticker, Table: s.charts.DividendTable(r.Context(), ticker)})
}

func (s *Server) handleForecastDates(w http.ResponseWriter, r *http.Request) {
	if s.forecasts == nil {
		writeError(w, http.StatusNotFound, "forecast archive disabled")
		return
	}
	symbol := strings.ToUpper(r.PathValue("symbol"))
	days, err := s.forecasts.ListForecastDays(r.Context(), symbol)
	if err != nil {
		s.log.Error("listing forecast days", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "listing forecasts failed")
		return
	}
	out := ForecastDatesJSON{Symbol: symbol, Dates: make([]string, len(days))}
	for i, d := range days {
		out.Dates[i] = d.Format(time.DateOnly)
	}
	writeJSON(w, out)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if s.forecasts == nil {
		writeError(w, http.StatusNotFound, "forecast archive disabled")
		return
	}
	symbol := strings.ToUpper(r.PathValue("symbol"))
	day, err := time.Parse(time.DateOnly, r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	f, err := s.forecasts.ReadForecast(r.Context(), symbol, day)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no forecast for "+symbol+" on "+day.Format(time.DateOnly))
		return
	}
	if err != nil {
		s.log.Error("reading forecast", "symbol", symbol, "date", day, "error", err)
		writeError(w, http.StatusInternalServerError, "reading forecast failed")
		return
	}
	writeJSON(w, toForecastJSON(f, day))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run log disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), r.URL.Query().Get("symbol"), limit)
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	if runs == nil {
		runs = []domain.PipelineRun{}
	}
	writeJSON(w, RunsJSON{Runs: runs})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
