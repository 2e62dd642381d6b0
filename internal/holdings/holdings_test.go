package holdings

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeWorkbook creates a workbook whose sheet holds the given column G
// values, header first.
func writeWorkbook(t *testing.T, sheet string, values ...string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	require.NoError(t, f.SetCellValue(sheet, "A1", "Name"))
	for i, v := range values {
		require.NoError(t, f.SetCellValue(sheet, fmt.Sprintf("G%d", i+1), v))
	}
	path := filepath.Join(t.TempDir(), "Dividend_Dashboard.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func source(path string) Source {
	return Source{Path: path, Sheet: "current_holdings", Column: "G", Header: "Ticker"}
}

func TestLoad(t *testing.T) {
	path := writeWorkbook(t, "current_holdings", "Ticker", "VZ", " abbv ", "", "O", "VZ")

	got, err := Load(source(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"ABBV", "O", "VZ"}, got)
}

func TestLoadWrongHeader(t *testing.T) {
	path := writeWorkbook(t, "current_holdings", "Symbol", "VZ")

	_, err := Load(source(path))
	assert.Error(t, err)
}

func TestLoadMissingSheet(t *testing.T) {
	path := writeWorkbook(t, "other", "Ticker", "VZ")

	_, err := Load(source(path))
	assert.Error(t, err)
}

func TestTickersMergesAfterBasket(t *testing.T) {
	path := writeWorkbook(t, "current_holdings", "Ticker", "VZ", "GLD", "ABBV")
	basket := []string{"CAD=X", "GLD", "SPLG", "BTC-USD", "ETH-USD"}

	got := Tickers(basket, source(path), nil)
	assert.Equal(t, []string{"CAD=X", "GLD", "SPLG", "BTC-USD", "ETH-USD", "ABBV", "VZ"}, got)
}

func TestTickersMissingWorkbook(t *testing.T) {
	basket := []string{"CAD=X", "GLD"}
	got := Tickers(basket, source(filepath.Join(t.TempDir(), "none.xlsx")), nil)
	assert.Equal(t, basket, got)
}

func TestMerge(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, Merge([]string{"A", "B"}, []string{"B", "C", ""}))
	assert.Empty(t, Merge(nil, nil))
}
