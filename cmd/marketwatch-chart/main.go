// One-shot tool: run the chart pipeline for a single ticker and write the
// result as a standalone HTML page or as the figure JSON.
//
// Usage:
//
//	go run cmd/marketwatch-chart/main.go -symbol GLD -timeframe 1wk -out gld.html
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"marketwatch/internal/chart"
	"marketwatch/internal/config"
	"marketwatch/internal/domain"
	"marketwatch/internal/forecast"
	"marketwatch/internal/pipeline"
	"marketwatch/internal/quote"
	"marketwatch/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "ticker to chart (default: dashboard.default_ticker)")
	timeframe := flag.String("timeframe", "", "bar timeframe: 1d, 1wk or 1h (default: the instrument's)")
	out := flag.String("out", "", "output file (default: <symbol>.html or <symbol>.json)")
	asJSON := flag.Bool("json", false, "write the figure JSON instead of HTML")
	flag.Parse()

	cfgPath := "config/marketwatch.yaml"
	if p := os.Getenv("MARKETWATCH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

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

	weekStart, _ := cfg.WeekStart()
	fc := forecast.NewAdapter(forecast.Options{
		Horizon:       cfg.Forecast.Horizon,
		IntervalWidth: cfg.Forecast.IntervalWidth,
		WeekStart:     weekStart,
		Changepoints:  cfg.Forecast.Changepoints,
	}, logger)
	p := pipeline.New(quote.NewRouter(yahoo, alpaca, files, logger), fc, pipeline.Options{
		LookbackDays:    cfg.Quotes.LookbackDays,
		SmoothingWindow: cfg.Forecast.SmoothingWindow,
	}, logger)

	catalog := pipeline.NewCatalog(cfg.Instruments(), nil, cfg.Dashboard.DefaultTicker)
	if *symbol == "" {
		*symbol = catalog.Default()
	}
	inst := catalog.Instrument(*symbol)
	if *timeframe != "" {
		tf, err := domain.ParseTimeframe(*timeframe)
		if err != nil {
			log.Fatalf("%v", err)
		}
		inst.Timeframe = tf
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := p.Chart(ctx, inst)
	if err != nil {
		log.Fatalf("chart interrupted: %v", err)
	}

	path := *out
	if path == "" {
		ext := ".html"
		if *asJSON {
			ext = ".json"
		}
		path = strings.NewReplacer("^", "", "=", "_", "/", "_").Replace(inst.Symbol) + ext
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	if *asJSON {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(res.Figure)
	} else {
		err = chart.WritePriceChart(f, res.Figure, chart.RenderOptions{AssetsHost: cfg.Dashboard.AssetsHost})
	}
	if err != nil {
		log.Fatalf("writing %s: %v", path, err)
	}

	fmt.Printf("%s: status=%s bars=%d forecast=%d -> %s\n",
		inst.DisplayName(), res.Status, res.Series.Len(), len(res.Forecast.Points), path)
	if res.Error != "" {
		fmt.Printf("  %s\n", res.Error)
	}
}
