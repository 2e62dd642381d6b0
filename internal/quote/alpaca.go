package quote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marketwatch/internal/domain"
	"marketwatch/internal/util"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// AlpacaSource fetches equity and crypto bars from the Alpaca market-data
// API. Crypto pairs written Yahoo-style ("BTC-USD") are translated to
// Alpaca's "BTC/USD" form.
type AlpacaSource struct {
	client *marketdata.Client
	feed   marketdata.Feed
	log    *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource. An empty dataURL uses the Alpaca
// default host; an empty feed selects "iex".
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string, log *slog.Logger) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "iex"
	}
	if log == nil {
		log = util.Discard()
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		feed:   marketdata.Feed(feed),
		log:    log.With("source", "alpaca"),
	}
}

// Name returns the source identifier.
func (s *AlpacaSource) Name() string { return "alpaca" }

// Fetch retrieves bars for req. Alpaca has no "max" range, so a zero Start
// requests the default lookback.
func (s *AlpacaSource) Fetch(ctx context.Context, req Request) (domain.Series, error) {
	if err := ctx.Err(); err != nil {
		return domain.Series{}, err
	}

	start, end := req.Start, req.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -defaultAlpacaLookbackDays)
	}

	var (
		bars []domain.Bar
		err  error
	)
	if pair, ok := CryptoPair(req.Symbol); ok {
		bars, err = s.cryptoBars(req.Symbol, pair, req.Timeframe, start, end)
	} else {
		bars, err = s.stockBars(req.Symbol, req.Timeframe, start, end)
	}
	if err != nil {
		return domain.Series{}, err
	}

	bars = normalize(bars, time.Time{}, time.Time{})
	if len(bars) == 0 {
		return domain.Series{}, fmt.Errorf("alpaca %s: %w", req.Symbol, ErrNoData)
	}
	s.log.Debug("bars fetched", "symbol", req.Symbol, "bars", len(bars))
	return domain.Series{Symbol: req.Symbol, Timeframe: req.Timeframe, Bars: bars}, nil
}

const defaultAlpacaLookbackDays = 730

func (s *AlpacaSource) stockBars(symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	raw, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(tf),
		Start:     start,
		End:       end,
		Feed:      s.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: alignBar(ab.Timestamp, tf),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	return bars, nil
}

func (s *AlpacaSource) cryptoBars(symbol, pair string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	raw, err := s.client.GetCryptoBars(pair, marketdata.GetCryptoBarsRequest{
		TimeFrame: alpacaTimeFrame(tf),
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCryptoBars %s: %w", pair, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, cb := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: alignBar(cb.Timestamp, tf),
			Open:      cb.Open,
			High:      cb.High,
			Low:       cb.Low,
			Close:     cb.Close,
			Volume:    int64(cb.Volume),
		})
	}
	return bars, nil
}

func alpacaTimeFrame(tf domain.Timeframe) marketdata.TimeFrame {
	switch tf {
	case domain.TimeframeHourly:
		return marketdata.OneHour
	case domain.TimeframeWeekly:
		return marketdata.NewTimeFrame(1, marketdata.Week)
	default:
		return marketdata.OneDay
	}
}

// alignBar pins daily and weekly bars to UTC midnight so they line up with
// the other sources.
func alignBar(t time.Time, tf domain.Timeframe) time.Time {
	t = t.UTC()
	if tf == domain.TimeframeHourly {
		return t
	}
	return util.StartOfDay(t)
}

// CryptoPair converts "BTC-USD" to "BTC/USD". It reports false for symbols
// that are not a crypto pair quoted in USD.
func CryptoPair(symbol string) (string, bool) {
	base, quote, ok := strings.Cut(strings.ToUpper(symbol), "-")
	if !ok || base == "" || quote != "USD" || strings.ContainsAny(base, "^=.") {
		return "", false
	}
	return base + "/" + quote, true
}
