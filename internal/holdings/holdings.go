// Package holdings reads the dividend portfolio spreadsheet and merges its
// tickers with the static instrument basket to form the selectable list.
package holdings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"marketwatch/internal/util"
)

// Source locates the ticker column of the holdings workbook.
type Source struct {
	Path   string
	Sheet  string
	Column string // spreadsheet column letter, e.g. "G"
	Header string // expected header cell, e.g. "Ticker"
}

// Load reads the ticker column. Values are trimmed, upper-cased,
// de-duplicated and sorted ascending. Blank cells are skipped.
func Load(src Source) ([]string, error) {
	col, err := excelize.ColumnNameToNumber(src.Column)
	if err != nil {
		return nil, fmt.Errorf("holdings column %q: %w", src.Column, err)
	}

	f, err := excelize.OpenFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", src.Path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(src.Sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", src.Sheet, src.Path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if got := cell(rows[0], col); !strings.EqualFold(got, src.Header) {
		return nil, fmt.Errorf("%s: column %s header = %q, want %q", src.Path, src.Column, got, src.Header)
	}

	seen := make(map[string]bool)
	var tickers []string
	for _, row := range rows[1:] {
		t := strings.ToUpper(cell(row, col))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, nil
}

// cell returns the trimmed value at 1-based column col, or "".
func cell(row []string, col int) string {
	if col < 1 || col > len(row) {
		return ""
	}
	return strings.TrimSpace(row[col-1])
}

// Tickers returns the selectable ticker list: the static basket in its
// configured order followed by the holdings not already in it. A missing or
// unreadable workbook degrades to the basket alone.
func Tickers(basket []string, src Source, log *slog.Logger) []string {
	if log == nil {
		log = util.Discard()
	}
	held, err := Load(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info("holdings workbook not found, using static basket", "path", src.Path)
		} else {
			log.Warn("reading holdings failed, using static basket", "path", src.Path, "error", err)
		}
	}
	return Merge(basket, held)
}

// Merge appends holdings to basket, dropping duplicates.
func Merge(basket, holdings []string) []string {
	out := make([]string, 0, len(basket)+len(holdings))
	seen := make(map[string]bool, cap(out))
	for _, list := range [][]string{basket, holdings} {
		for _, t := range list {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
