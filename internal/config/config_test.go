package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marketwatch/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "MARKETWATCH_FILES_DIR", "POLYGON_API_KEY",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_DATA_URL", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  host: "0.0.0.0"
  port: 8080
  grpc_port: 9090
logging:
  level: "debug"
  format: "json"
storage:
  data_dir: "/tmp/marketwatch/data"
  sqlite_path: "/tmp/marketwatch/marketwatch.db"
quotes:
  timeout: 10s
  lookback_days: 365
  files:
    base_dir: "/srv/exports"
polygon:
  api_key: "yaml-polygon"
dashboard:
  default_ticker: "GLD"
  instruments:
    - symbol: "GLD"
    - symbol: "EURUSD"
      source: "file"
      timeframe: "60"
      exclude_weekends: true
      window_column: "date"
      window_threshold: "2023-01-01"
forecast:
  week_start: "monday"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.ListenAddr() != "0.0.0.0:8080" {
		t.Errorf("Server.ListenAddr() = %q, want %q", cfg.Server.ListenAddr(), "0.0.0.0:8080")
	}
	if cfg.Server.GRPCAddr() != "0.0.0.0:9090" {
		t.Errorf("Server.GRPCAddr() = %q, want %q", cfg.Server.GRPCAddr(), "0.0.0.0:9090")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if cfg.Storage.SQLitePath != "/tmp/marketwatch/marketwatch.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/marketwatch/marketwatch.db")
	}
	if cfg.Quotes.Timeout != 10*time.Second {
		t.Errorf("Quotes.Timeout = %v, want %v", cfg.Quotes.Timeout, 10*time.Second)
	}
	if cfg.Quotes.LookbackDays != 365 {
		t.Errorf("Quotes.LookbackDays = %d, want %d", cfg.Quotes.LookbackDays, 365)
	}
	if cfg.Polygon.APIKey != "yaml-polygon" {
		t.Errorf("Polygon.APIKey = %q, want %q", cfg.Polygon.APIKey, "yaml-polygon")
	}
	if cfg.Dashboard.DefaultTicker != "GLD" {
		t.Errorf("Dashboard.DefaultTicker = %q, want %q", cfg.Dashboard.DefaultTicker, "GLD")
	}

	ws, err := cfg.WeekStart()
	if err != nil || ws != time.Monday {
		t.Errorf("WeekStart() = %v, %v; want Monday", ws, err)
	}

	insts := cfg.Instruments()
	if len(insts) != 2 {
		t.Fatalf("len(Instruments()) = %d, want 2", len(insts))
	}
	if insts[0].Source != domain.SourceRemote || insts[0].Timeframe != domain.TimeframeDaily {
		t.Errorf("Instruments()[0] = %+v, want remote daily", insts[0])
	}
	fx := insts[1]
	if fx.Source != domain.SourceFile || fx.Timeframe != domain.TimeframeHourly || !fx.ExcludeWeekends {
		t.Errorf("Instruments()[1] = %+v, want file hourly with weekend exclusion", fx)
	}
	if fx.Window.Column != "date" || fx.Window.Threshold != "2023-01-01" {
		t.Errorf("Instruments()[1].Window = %+v", fx.Window)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}

	if cfg.Server.Port != 8050 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8050)
	}
	if cfg.Server.GRPCAddr() != "" {
		t.Errorf("Server.GRPCAddr() = %q, want empty when grpc_port unset", cfg.Server.GRPCAddr())
	}
	if cfg.Quotes.LookbackDays != 730 {
		t.Errorf("Quotes.LookbackDays = %d, want %d", cfg.Quotes.LookbackDays, 730)
	}
	if cfg.Forecast.Horizon != 90 || cfg.Forecast.SmoothingWindow != 7 {
		t.Errorf("Forecast = %+v, want horizon 90 and window 7", cfg.Forecast)
	}
	if cfg.Dashboard.Refresh != "@every 15m" {
		t.Errorf("Dashboard.Refresh = %q, want %q", cfg.Dashboard.Refresh, "@every 15m")
	}
	if cfg.Dashboard.DefaultTicker != "CAD=X" {
		t.Errorf("Dashboard.DefaultTicker = %q, want %q", cfg.Dashboard.DefaultTicker, "CAD=X")
	}
	if cfg.Holdings.Sheet != "current_holdings" || cfg.Holdings.Column != "G" {
		t.Errorf("Holdings = %+v, want current_holdings/G", cfg.Holdings)
	}

	var symbols []string
	for _, inst := range cfg.Instruments() {
		symbols = append(symbols, inst.Symbol)
	}
	if got := strings.Join(symbols, ","); got != "CAD=X,GLD,SPLG,BTC-USD,ETH-USD" {
		t.Errorf("default instruments = %q", got)
	}
	if cfg.Instruments()[0].DisplayName() != "USD/CAD" {
		t.Errorf("CAD=X label = %q, want %q", cfg.Instruments()[0].DisplayName(), "USD/CAD")
	}
	if len(cfg.Dashboard.Indices) != 4 || cfg.Dashboard.Indices[1].Name != "S & P 500 Index" {
		t.Errorf("Dashboard.Indices = %+v", cfg.Dashboard.Indices)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("POLYGON_API_KEY", "env-polygon")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if !cfg.Alpaca.Enabled() {
		t.Error("Alpaca.Enabled() = false, want true")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Polygon.APIKey != "env-polygon" {
		t.Errorf("Polygon.APIKey = %q, want %q (env override)", cfg.Polygon.APIKey, "env-polygon")
	}
}

func TestMissingPolygonKeyIsNotAnError(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}
	if cfg.Polygon.APIKey != "" {
		t.Errorf("Polygon.APIKey = %q, want empty", cfg.Polygon.APIKey)
	}
}

func TestValidateFileSourceRequiresBaseDir(t *testing.T) {
	clearEnv(t)
	_, err := Parse([]byte(`
dashboard:
  instruments:
    - symbol: "EURUSD"
      source: "file"
`))
	if err == nil {
		t.Fatal("Parse() should fail when a file instrument has no base_dir")
	}
	if !strings.Contains(err.Error(), "base_dir") {
		t.Errorf("error = %v, want mention of base_dir", err)
	}

	t.Setenv("MARKETWATCH_FILES_DIR", "/srv/exports")
	if _, err := Parse([]byte(`
dashboard:
  instruments:
    - symbol: "EURUSD"
      source: "file"
`)); err != nil {
		t.Errorf("Parse() with MARKETWATCH_FILES_DIR set returned error: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"timeframe":  "dashboard:\n  instruments:\n    - symbol: X\n      timeframe: 5m\n",
		"source":     "dashboard:\n  instruments:\n    - symbol: X\n      source: ftp\n",
		"duplicate":  "dashboard:\n  instruments:\n    - symbol: X\n    - symbol: X\n",
		"week_start": "forecast:\n  week_start: someday\n",
		"width":      "forecast:\n  interval_width: 1.5\n",
	}
	for name, doc := range tests {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: Parse() should fail", name)
		}
	}
}
