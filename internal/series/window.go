// Package series truncates price series before forecasting. Windowing only
// filters bars; it never re-orders them, and an empty result is a valid
// empty series.
package series

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketwatch/internal/domain"
)

// DefaultLookbackDays is the absolute window applied to remote series.
const DefaultLookbackDays = 730

// Since keeps the bars whose timestamp is at or after cutoff.
func Since(s domain.Series, cutoff time.Time) domain.Series {
	out := make([]domain.Bar, 0, len(s.Bars))
	for _, b := range s.Bars {
		if !b.Timestamp.Before(cutoff) {
			out = append(out, b)
		}
	}
	return s.WithBars(out)
}

// LastDays keeps the bars dated on or after now's calendar date minus days.
// The cutoff is UTC midnight of that date, the instant daily bars carry.
func LastDays(s domain.Series, now time.Time, days int) domain.Series {
	y, m, d := now.Date()
	return Since(s, time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days))
}

// ---------------------------------------------------------------------------
// Predicate windowing
// ---------------------------------------------------------------------------

// Column names a bar field that a predicate can compare against.
type Column string

const (
	ColumnDate  Column = "date"
	ColumnOpen  Column = "open"
	ColumnHigh  Column = "high"
	ColumnLow   Column = "low"
	ColumnClose Column = "close"
)

// ParseColumn validates a column name, case-insensitively.
func ParseColumn(name string) (Column, error) {
	c := Column(strings.ToLower(strings.TrimSpace(name)))
	switch c {
	case ColumnDate, ColumnOpen, ColumnHigh, ColumnLow, ColumnClose:
		return c, nil
	}
	return "", fmt.Errorf("unknown column %q", name)
}

// Predicate keeps the bars whose Column value is >= Threshold. Date
// thresholds use the layouts accepted by ParseTime; price thresholds are
// decimal numbers.
type Predicate struct {
	Column    Column
	Threshold string
}

// PredicateFromWindow builds a Predicate from an instrument window. ok is
// false when the window does not name a column.
func PredicateFromWindow(w domain.Window) (p Predicate, ok bool, err error) {
	if strings.TrimSpace(w.Column) == "" {
		return Predicate{}, false, nil
	}
	col, err := ParseColumn(w.Column)
	if err != nil {
		return Predicate{}, false, err
	}
	return Predicate{Column: col, Threshold: w.Threshold}, true, nil
}

// Filter applies the predicate. The error reports an unknown column or an
// unparseable threshold, never a data condition.
func Filter(s domain.Series, p Predicate) (domain.Series, error) {
	if p.Column == ColumnDate {
		cutoff, err := ParseTime(p.Threshold)
		if err != nil {
			return domain.Series{}, fmt.Errorf("date threshold: %w", err)
		}
		return Since(s, cutoff), nil
	}

	field, err := priceField(p.Column)
	if err != nil {
		return domain.Series{}, err
	}
	floor, err := strconv.ParseFloat(strings.TrimSpace(p.Threshold), 64)
	if err != nil {
		return domain.Series{}, fmt.Errorf("%s threshold %q: %w", p.Column, p.Threshold, err)
	}

	out := make([]domain.Bar, 0, len(s.Bars))
	for _, b := range s.Bars {
		if field(b) >= floor {
			out = append(out, b)
		}
	}
	return s.WithBars(out), nil
}

func priceField(c Column) (func(domain.Bar) float64, error) {
	switch c {
	case ColumnOpen:
		return func(b domain.Bar) float64 { return b.Open }, nil
	case ColumnHigh:
		return func(b domain.Bar) float64 { return b.High }, nil
	case ColumnLow:
		return func(b domain.Bar) float64 { return b.Low }, nil
	case ColumnClose:
		return func(b domain.Bar) float64 { return b.Close }, nil
	}
	return nil, fmt.Errorf("unknown column %q", c)
}

// timeLayouts are the timestamp formats found in exported quote files and
// configuration thresholds.
var timeLayouts = []string{
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006.01.02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// ParseTime parses s with the first matching layout, in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
