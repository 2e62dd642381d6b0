package dividend

import (
	"strconv"
)

// Columns of the dividend table, in display order.
var Columns = []string{"ticker", "cash_amount", "ex_dividend_date", "frequency", "pay_date"}

// Table is the rendered dividend table. Rows is empty, never nil, when no
// record is available.
type Table struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	Status  Status              `json:"status"`
	Stale   bool                `json:"stale,omitempty"`
	Message string              `json:"message,omitempty"`
}

// NewTable shapes a lookup result into a table with at most one row.
func NewTable(res Result) Table {
	t := Table{
		Columns: Columns,
		Rows:    []map[string]string{},
		Status:  res.Status,
		Stale:   res.Stale,
		Message: message(res),
	}
	if res.Record == nil {
		return t
	}
	rec := res.Record
	t.Rows = append(t.Rows, map[string]string{
		"ticker":           rec.Ticker,
		"cash_amount":      "$" + rec.CashAmount.StringFixed(2),
		"ex_dividend_date": rec.ExDividendDate,
		"frequency":        strconv.Itoa(rec.Frequency),
		"pay_date":         rec.PayDate,
	})
	return t
}

// Cells returns a row's values in column order.
func (t Table) Cells(row map[string]string) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = row[c]
	}
	return out
}

func message(res Result) string {
	switch {
	case res.Stale:
		return "Showing the last known dividend; the live lookup is unavailable."
	case res.Status == StatusNoData:
		return "No dividend data for " + res.Ticker + "."
	case res.Status == StatusNoCredentials:
		return "Dividend lookups are not configured."
	case res.Status == StatusUnavailable:
		return "Dividend data is temporarily unavailable."
	}
	return ""
}
