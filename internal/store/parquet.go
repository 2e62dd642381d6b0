package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketwatch/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ ForecastArchive = (*ParquetStore)(nil)

// ParquetStore implements BarStore and ForecastArchive using Parquet files on
// disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar snapshots.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ForecastRecord is the Parquet schema for archived forecast points.
// Undefined smoothed values are stored as NaN.
type ForecastRecord struct {
	Symbol    string  `parquet:"symbol"`
	Frequency string  `parquet:"frequency"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Value     float64 `parquet:"value"`
	Lower     float64 `parquet:"lower"`
	Upper     float64 `parquet:"upper"`
	Trend     float64 `parquet:"trend"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars to Parquet files organized by symbol and year:
//
//	<DataDir>/bars/<timeframe>/<SYMBOL>/<YYYY>.parquet
//
// Existing files are merged; incoming rows win on equal timestamps.
func (s *ParquetStore) WriteBars(ctx context.Context, tf domain.Timeframe, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		k := key{symbol: b.Symbol, year: ts.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    b.Symbol,
			Timestamp: ts.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.barPath(k.symbol, tf, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%s/%d: %w", k.symbol, tf, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars for the given symbol, timeframe and time range. A zero
// start reads from the earliest stored year.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	years, err := s.barYears(symbol, tf)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, year := range years {
		if (!start.IsZero() && year < start.UTC().Year()) || (!end.IsZero() && year > end.UTC().Year()) {
			continue
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, tf, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%s/%d: %w", symbol, tf, year, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if (!start.IsZero() && ts.Before(start)) || (!end.IsZero() && ts.After(end)) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:    r.Symbol,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bars at the given timeframe.
func (s *ParquetStore) ListSymbols(_ context.Context, tf domain.Timeframe) ([]string, error) {
	return listDirs(filepath.Join(s.DataDir, "bars", string(tf)))
}

func (s *ParquetStore) barYears(symbol string, tf domain.Timeframe) ([]int, error) {
	dir := filepath.Join(s.DataDir, "bars", string(tf), strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		var y int
		if _, err := fmt.Sscanf(e.Name(), "%d.parquet", &y); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// ForecastArchive implementation
// ---------------------------------------------------------------------------

// WriteForecast stores f at <DataDir>/forecasts/<SYMBOL>/<YYYY-MM-DD>.parquet.
// A later write for the same day replaces the file.
func (s *ParquetStore) WriteForecast(_ context.Context, f domain.Forecast, day time.Time) error {
	if len(f.Points) == 0 {
		return nil
	}
	records := make([]ForecastRecord, len(f.Points))
	for i, p := range f.Points {
		records[i] = ForecastRecord{
			Symbol:    f.Symbol,
			Frequency: f.Frequency.String(),
			Timestamp: p.Timestamp.UTC().UnixMilli(),
			Value:     p.Value,
			Lower:     p.Lower,
			Upper:     p.Upper,
			Trend:     p.Trend,
		}
	}
	path := s.forecastPath(f.Symbol, day)
	if err := writeParquetFile(path, records); err != nil {
		return fmt.Errorf("writing forecast for %s/%s: %w", f.Symbol, day.Format("2006-01-02"), err)
	}
	return nil
}

// ReadForecast returns the forecast archived for symbol on day.
func (s *ParquetStore) ReadForecast(_ context.Context, symbol string, day time.Time) (domain.Forecast, error) {
	path := s.forecastPath(symbol, day)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return domain.Forecast{}, fmt.Errorf("forecast %s/%s: %w", symbol, day.Format("2006-01-02"), ErrNotFound)
	}
	records, err := readParquetFile[ForecastRecord](path)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("reading forecast %s: %w", path, err)
	}

	f := domain.Forecast{Symbol: strings.ToUpper(symbol), Points: make([]domain.ForecastPoint, len(records))}
	for i, r := range records {
		if i == 0 {
			f.Symbol = r.Symbol
			f.Frequency = parseFrequency(r.Frequency)
		}
		f.Points[i] = domain.ForecastPoint{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Value:     r.Value,
			Lower:     r.Lower,
			Upper:     r.Upper,
			Trend:     r.Trend,
		}
	}
	return f, nil
}

// ListForecastDays returns the days with an archived forecast for symbol.
func (s *ParquetStore) ListForecastDays(_ context.Context, symbol string) ([]time.Time, error) {
	dir := filepath.Join(s.DataDir, "forecasts", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var days []time.Time
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".parquet")
		if d, err := time.Parse("2006-01-02", name); err == nil {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func parseFrequency(s string) domain.Frequency {
	for _, f := range []domain.Frequency{domain.Daily, domain.Hourly, domain.Weekly} {
		if f.String() == s {
			return f
		}
	}
	return domain.Daily
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/bars/<timeframe>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, tf domain.Timeframe, year int) string {
	return filepath.Join(s.DataDir, "bars", string(tf), strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// forecastPath returns the filesystem path for an archived forecast.
// Layout: <dataDir>/forecasts/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) forecastPath(symbol string, day time.Time) string {
	return filepath.Join(s.DataDir, "forecasts", strings.ToUpper(symbol), day.Format("2006-01-02")+".parquet")
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
