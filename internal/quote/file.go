package quote

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"marketwatch/internal/domain"
	"marketwatch/internal/series"
	"marketwatch/internal/util"
)

// Compile-time interface check.
var _ Source = (*FileSource)(nil)

// FileSource reads pre-exported OHLC rows from flat files named
// <baseDir>/<SYMBOL>_<periodCode>.csv. Rows are semicolon-delimited with
// no header and the fixed column order date;open;high;low;close.
type FileSource struct {
	baseDir string
	log     *slog.Logger
}

// NewFileSource creates a FileSource rooted at baseDir.
func NewFileSource(baseDir string, log *slog.Logger) (*FileSource, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("file source: base directory is required")
	}
	if log == nil {
		log = util.Discard()
	}
	return &FileSource{baseDir: baseDir, log: log.With("source", "file")}, nil
}

// Name returns the source identifier.
func (s *FileSource) Name() string { return "file" }

// Path returns the file backing symbol at timeframe tf.
func (s *FileSource) Path(symbol string, tf domain.Timeframe) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_%d.csv", symbol, tf.PeriodCode()))
}

// Fetch reads the file for req. A missing file yields ErrNoData. Rows that do
// not parse are skipped. Start and End bound the result when set.
func (s *FileSource) Fetch(ctx context.Context, req Request) (domain.Series, error) {
	if err := ctx.Err(); err != nil {
		return domain.Series{}, err
	}

	path := s.Path(req.Symbol, req.Timeframe)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Series{}, fmt.Errorf("%s: %w", path, ErrNoData)
		}
		return domain.Series{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	bars, skipped, err := parseRows(f, req.Symbol)
	if err != nil {
		return domain.Series{}, fmt.Errorf("reading CSV %s: %w", path, err)
	}
	if skipped > 0 {
		s.log.Warn("skipped malformed rows", "path", path, "rows", skipped)
	}

	bars = normalize(bars, req.Start, req.End)
	if len(bars) == 0 {
		return domain.Series{}, fmt.Errorf("%s: %w", path, ErrNoData)
	}
	return domain.Series{Symbol: req.Symbol, Timeframe: req.Timeframe, Bars: bars}, nil
}

// parseRows decodes date;open;high;low;close rows. Extra trailing columns
// (such as volume) are ignored.
func parseRows(r io.Reader, symbol string) ([]domain.Bar, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		bars    []domain.Bar
		skipped int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped++
				continue
			}
			return nil, skipped, err
		}
		bar, ok := parseRow(rec, symbol)
		if !ok {
			skipped++
			continue
		}
		bars = append(bars, bar)
	}
	return bars, skipped, nil
}

func parseRow(rec []string, symbol string) (domain.Bar, bool) {
	if len(rec) < 5 {
		return domain.Bar{}, false
	}
	ts, err := series.ParseTime(rec[0])
	if err != nil {
		return domain.Bar{}, false
	}
	var px [4]float64
	for i := range px {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return domain.Bar{}, false
		}
		px[i] = v
	}
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      px[0],
		High:      px[1],
		Low:       px[2],
		Close:     px[3],
	}, true
}
