package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketwatch/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the market watch dashboard.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Storage   Storage   `yaml:"storage"`
	Quotes    Quotes    `yaml:"quotes"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Polygon   Polygon   `yaml:"polygon"`
	Holdings  Holdings  `yaml:"holdings"`
	Dashboard Dashboard `yaml:"dashboard"`
	Forecast  Forecast  `yaml:"forecast"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Storage holds paths for data persistence. DataDir holds parquet bar
// snapshots and the forecast archive; SQLitePath the run log and dividend
// cache.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Quotes configures quote retrieval.
type Quotes struct {
	YahooBaseURL string        `yaml:"yahoo_base_url"`
	Proxy        string        `yaml:"proxy"`
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	LookbackDays int           `yaml:"lookback_days"`
	Files        Files         `yaml:"files"`
}

// Files configures the flat-file quote source.
type Files struct {
	BaseDir string `yaml:"base_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Enabled reports whether both Alpaca credentials are present.
func (a Alpaca) Enabled() bool {
	return a.APIKey != "" && a.APISecret != ""
}

// Polygon holds the dividend reference API settings.
type Polygon struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Holdings locates the spreadsheet whose ticker column extends the selectable
// ticker list.
type Holdings struct {
	Path   string `yaml:"path"`
	Sheet  string `yaml:"sheet"`
	Column string `yaml:"column"`
	Header string `yaml:"header"`
}

// Dashboard configures the page contents and refresh cadence.
type Dashboard struct {
	DefaultTicker string             `yaml:"default_ticker"`
	Refresh       string             `yaml:"refresh"`
	AssetsHost    string             `yaml:"assets_host"`
	Instruments   []InstrumentConfig `yaml:"instruments"`
	Indices       []IndexConfig      `yaml:"indices"`
}

// InstrumentConfig is one entry of the static instrument basket.
type InstrumentConfig struct {
	Symbol          string `yaml:"symbol"`
	Label           string `yaml:"label"`
	Source          string `yaml:"source"`
	Timeframe       string `yaml:"timeframe"`
	ExcludeWeekends bool   `yaml:"exclude_weekends"`
	WindowColumn    string `yaml:"window_column"`
	WindowThreshold string `yaml:"window_threshold"`
}

// IndexConfig is one benchmark of the index snapshot panel.
type IndexConfig struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

// Forecast tunes the forecast model and post-processing.
type Forecast struct {
	Horizon         int     `yaml:"horizon"`
	SmoothingWindow int     `yaml:"smoothing_window"`
	IntervalWidth   float64 `yaml:"interval_width"`
	WeekStart       string  `yaml:"week_start"`
	Changepoints    int     `yaml:"changepoints"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// DefaultInstruments is the static basket shown before the holdings tickers.
var DefaultInstruments = []InstrumentConfig{
	{Symbol: "CAD=X", Label: "USD/CAD"},
	{Symbol: "GLD"},
	{Symbol: "SPLG"},
	{Symbol: "BTC-USD"},
	{Symbol: "ETH-USD"},
}

// DefaultIndices is the benchmark basket of the index snapshot panel.
var DefaultIndices = []IndexConfig{
	{Symbol: "^VIX", Name: "VIX Volatility Index"},
	{Symbol: "^GSPC", Name: "S & P 500 Index"},
	{Symbol: "^IXIC", Name: "NASDAQ Index"},
	{Symbol: "GLD", Name: "Gold ETF"},
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8050
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Quotes.YahooBaseURL == "" {
		cfg.Quotes.YahooBaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.Quotes.Timeout == 0 {
		cfg.Quotes.Timeout = 30 * time.Second
	}
	if cfg.Quotes.Retries == 0 {
		cfg.Quotes.Retries = 3
	}
	if cfg.Quotes.LookbackDays == 0 {
		cfg.Quotes.LookbackDays = 730
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Polygon.BaseURL == "" {
		cfg.Polygon.BaseURL = "https://api.polygon.io"
	}
	if cfg.Polygon.RateLimitPerMin == 0 {
		cfg.Polygon.RateLimitPerMin = 5
	}
	if cfg.Holdings.Path == "" {
		cfg.Holdings.Path = "data/Dividend_Dashboard.xlsx"
	}
	if cfg.Holdings.Sheet == "" {
		cfg.Holdings.Sheet = "current_holdings"
	}
	if cfg.Holdings.Column == "" {
		cfg.Holdings.Column = "G"
	}
	if cfg.Holdings.Header == "" {
		cfg.Holdings.Header = "Ticker"
	}
	if cfg.Dashboard.DefaultTicker == "" {
		cfg.Dashboard.DefaultTicker = "CAD=X"
	}
	if cfg.Dashboard.Refresh == "" {
		cfg.Dashboard.Refresh = "@every 15m"
	}
	if cfg.Dashboard.AssetsHost == "" {
		cfg.Dashboard.AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"
	}
	if len(cfg.Dashboard.Instruments) == 0 {
		cfg.Dashboard.Instruments = append([]InstrumentConfig(nil), DefaultInstruments...)
	}
	if len(cfg.Dashboard.Indices) == 0 {
		cfg.Dashboard.Indices = append([]IndexConfig(nil), DefaultIndices...)
	}
	if cfg.Forecast.Horizon == 0 {
		cfg.Forecast.Horizon = 90
	}
	if cfg.Forecast.SmoothingWindow == 0 {
		cfg.Forecast.SmoothingWindow = 7
	}
	if cfg.Forecast.IntervalWidth == 0 {
		cfg.Forecast.IntervalWidth = 0.8
	}
	if cfg.Forecast.WeekStart == "" {
		cfg.Forecast.WeekStart = "sunday"
	}
	if cfg.Forecast.Changepoints == 0 {
		cfg.Forecast.Changepoints = 25
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// defaults and environment variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. Defaults, environment overrides and
// validation are applied in that order.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MARKETWATCH_FILES_DIR"); v != "" {
		cfg.Quotes.Files.BaseDir = v
	}
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Polygon.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars win over the short names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation and typed views
// ---------------------------------------------------------------------------

// Validate checks cross-field constraints. A file-backed instrument requires
// quotes.files.base_dir.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.WeekStart(); err != nil {
		errs = append(errs, fmt.Errorf("forecast.week_start: %w", err))
	}
	if c.Forecast.Horizon < 1 {
		errs = append(errs, errors.New("forecast.horizon must be positive"))
	}
	if c.Forecast.SmoothingWindow < 1 {
		errs = append(errs, errors.New("forecast.smoothing_window must be positive"))
	}
	if w := c.Forecast.IntervalWidth; w <= 0 || w >= 1 {
		errs = append(errs, fmt.Errorf("forecast.interval_width %v must be in (0, 1)", w))
	}

	seen := make(map[string]bool)
	for i, ic := range c.Dashboard.Instruments {
		if strings.TrimSpace(ic.Symbol) == "" {
			errs = append(errs, fmt.Errorf("dashboard.instruments[%d]: symbol required", i))
			continue
		}
		if seen[ic.Symbol] {
			errs = append(errs, fmt.Errorf("dashboard.instruments[%d]: duplicate symbol %q", i, ic.Symbol))
		}
		seen[ic.Symbol] = true

		if _, err := domain.ParseTimeframe(ic.Timeframe); err != nil {
			errs = append(errs, fmt.Errorf("dashboard.instruments[%d]: %w", i, err))
		}
		switch domain.SourceKind(ic.Source) {
		case "", domain.SourceRemote:
		case domain.SourceFile:
			if c.Quotes.Files.BaseDir == "" {
				errs = append(errs, fmt.Errorf("dashboard.instruments[%d]: %s is file-backed but quotes.files.base_dir is empty", i, ic.Symbol))
			}
		default:
			errs = append(errs, fmt.Errorf("dashboard.instruments[%d]: unknown source %q", i, ic.Source))
		}
	}

	return errors.Join(errs...)
}

// WeekStart returns the anchor weekday for weekly forecasts.
func (c *Config) WeekStart() (time.Weekday, error) {
	return domain.ParseWeekday(c.Forecast.WeekStart)
}

// Instruments converts the configured basket into domain instruments.
func (c *Config) Instruments() []domain.Instrument {
	out := make([]domain.Instrument, 0, len(c.Dashboard.Instruments))
	for _, ic := range c.Dashboard.Instruments {
		tf, _ := domain.ParseTimeframe(ic.Timeframe)
		src := domain.SourceKind(ic.Source)
		if src == "" {
			src = domain.SourceRemote
		}
		out = append(out, domain.Instrument{
			Symbol:          strings.TrimSpace(ic.Symbol),
			Label:           ic.Label,
			Source:          src,
			Timeframe:       tf,
			ExcludeWeekends: ic.ExcludeWeekends,
			Window:          domain.Window{Column: ic.WindowColumn, Threshold: ic.WindowThreshold},
		})
	}
	return out
}

// ListenAddr returns the HTTP listen address.
func (s Server) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCAddr returns the gRPC listen address, or "" when gRPC is disabled.
func (s Server) GRPCAddr() string {
	if s.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}
