package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketwatch/internal/api"
	"marketwatch/internal/config"
	"marketwatch/internal/dividend"
	"marketwatch/internal/forecast"
	"marketwatch/internal/holdings"
	"marketwatch/internal/httpapi"
	"marketwatch/internal/pipeline"
	"marketwatch/internal/quote"
	"marketwatch/internal/scheduler"
	"marketwatch/internal/store"
	"marketwatch/internal/util"
)

func main() {
	cfgPath := "config/marketwatch.yaml"
	if p := os.Getenv("MARKETWATCH_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/marketwatch-server-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, io.MultiWriter(os.Stdout, logFile))
	util.SetDefault(logger)

	// Quote sources.
	yahoo := quote.NewYahooSource(cfg.Quotes.Timeout, cfg.Quotes.Proxy, logger,
		quote.WithYahooBaseURL(cfg.Quotes.YahooBaseURL),
		quote.WithYahooAttempts(cfg.Quotes.Retries),
	)
	var alpaca, files quote.Source
	if cfg.Alpaca.Enabled() {
		alpaca = quote.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, logger)
	}
	if cfg.Quotes.Files.BaseDir != "" {
		fs, err := quote.NewFileSource(cfg.Quotes.Files.BaseDir, logger)
		if err != nil {
			log.Fatalf("file source: %v", err)
		}
		files = fs
	}
	router := quote.NewRouter(yahoo, alpaca, files, logger)
	router.OnError = pipeline.ObserveQuoteError

	// Storage.
	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	var sqlStore *store.SQLiteStore
	if cfg.Storage.SQLitePath != "" {
		sqlStore, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		defer sqlStore.Close()
	}

	weekStart, _ := cfg.WeekStart()
	fc := forecast.NewAdapter(forecast.Options{
		Horizon:       cfg.Forecast.Horizon,
		IntervalWidth: cfg.Forecast.IntervalWidth,
		WeekStart:     weekStart,
		Changepoints:  cfg.Forecast.Changepoints,
	}, logger)

	polygon := dividend.NewClient(cfg.Polygon.APIKey,
		dividend.WithBaseURL(cfg.Polygon.BaseURL),
		dividend.WithRateLimit(cfg.Polygon.RateLimitPerMin),
		dividend.WithLogger(logger),
	)
	var cache dividend.Cache
	if sqlStore != nil {
		cache = sqlStore
	}
	dividends := dividend.NewService(polygon, cache, logger)

	indices := make([]pipeline.IndexSpec, len(cfg.Dashboard.Indices))
	for i, ic := range cfg.Dashboard.Indices {
		indices[i] = pipeline.IndexSpec{Symbol: ic.Symbol, Name: ic.Name}
	}

	p := pipeline.New(router, fc, pipeline.Options{
		LookbackDays:    cfg.Quotes.LookbackDays,
		SmoothingWindow: cfg.Forecast.SmoothingWindow,
		Indices:         indices,
	}, logger).
		WithBarStore(pstore).
		WithForecastArchive(pstore).
		WithDividends(dividends)
	var runs store.RunStore
	if sqlStore != nil {
		p.WithRunStore(sqlStore)
		runs = sqlStore
	}

	// Ticker catalog: static basket, then holdings.
	basket := cfg.Instruments()
	symbols := make([]string, len(basket))
	for i, inst := range basket {
		symbols[i] = inst.Symbol
	}
	tickers := holdings.Tickers(symbols, holdings.Source{
		Path:   cfg.Holdings.Path,
		Sheet:  cfg.Holdings.Sheet,
		Column: cfg.Holdings.Column,
		Header: cfg.Holdings.Header,
	}, logger)
	catalog := pipeline.NewCatalog(basket, tickers, cfg.Dashboard.DefaultTicker)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	refresher := scheduler.New(p, cfg.Dashboard.Refresh, catalog.Instrument(catalog.Default()), logger)
	every, err := scheduler.Interval(cfg.Dashboard.Refresh)
	if err != nil {
		log.Fatalf("dashboard.refresh: %v", err)
	}
	if err := refresher.Start(ctx); err != nil {
		log.Fatalf("starting refresher: %v", err)
	}
	defer refresher.Stop()

	web := httpapi.NewServer(p, refresher, catalog, pstore, runs, httpapi.Options{
		AssetsHost:   cfg.Dashboard.AssetsHost,
		RefreshEvery: every,
	}, logger)
	svc := api.NewMarketWatchService(p, catalog, logger)
	srv := api.NewServer(cfg.Server.ListenAddr(), cfg.Server.GRPCAddr(), web.Handler(), svc, logger)

	slog.Info("starting marketwatch-server",
		"logFile", logFileName,
		"http", cfg.Server.ListenAddr(),
		"grpc", cfg.Server.GRPCAddr(),
		"tickers", len(tickers),
		"alpaca", cfg.Alpaca.Enabled(),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
