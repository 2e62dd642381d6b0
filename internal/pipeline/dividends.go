package pipeline

import (
	"context"
	"strings"

	"marketwatch/internal/dividend"
)

// DividendLooker resolves the latest dividend of a ticker.
type DividendLooker interface {
	Lookup(ctx context.Context, ticker string) dividend.Result
}

var _ DividendLooker = (*dividend.Service)(nil)

// Dividends looks up the latest dividend for ticker. Without a configured
// looker the result is no_credentials.
func (p *Pipeline) Dividends(ctx context.Context, ticker string) dividend.Result {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	var res dividend.Result
	if p.dividends == nil {
		res = dividend.Result{Ticker: ticker, Status: dividend.StatusNoCredentials}
	} else {
		res = p.dividends.Lookup(ctx, ticker)
	}
	dividendLookups.WithLabelValues(string(res.Status)).Inc()
	if res.Err != nil {
		p.log.Warn("dividend lookup failed", "ticker", ticker, "status", string(res.Status), "error", res.Err)
	}
	return res
}

// DividendTable looks up ticker and formats the result as the page table.
func (p *Pipeline) DividendTable(ctx context.Context, ticker string) dividend.Table {
	return dividend.NewTable(p.Dividends(ctx, ticker))
}
