package pipeline

import (
	"strings"

	"marketwatch/internal/domain"
)

// Catalog is the selectable ticker list: the configured instrument basket
// followed by the holdings tickers.
type Catalog struct {
	instruments map[string]domain.Instrument
	tickers     []string
	def         string
}

// NewCatalog builds a catalog. tickers is the full dropdown order and must
// already include the basket; basket symbols missing from it are prepended.
// def is the default selection; when empty or unknown the first ticker is
// used.
func NewCatalog(basket []domain.Instrument, tickers []string, def string) *Catalog {
	c := &Catalog{instruments: make(map[string]domain.Instrument, len(basket))}
	seen := make(map[string]bool)
	for _, inst := range basket {
		sym := strings.ToUpper(inst.Symbol)
		c.instruments[sym] = inst
		if !seen[sym] {
			seen[sym] = true
			c.tickers = append(c.tickers, inst.Symbol)
		}
	}
	for _, t := range tickers {
		sym := strings.ToUpper(strings.TrimSpace(t))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		c.tickers = append(c.tickers, t)
	}

	c.def = def
	if def == "" || !seen[strings.ToUpper(def)] {
		c.def = ""
		if len(c.tickers) > 0 {
			c.def = c.tickers[0]
		}
	}
	return c
}

// Tickers returns the dropdown order.
func (c *Catalog) Tickers() []string {
	return append([]string(nil), c.tickers...)
}

// Default returns the default selection.
func (c *Catalog) Default() string { return c.def }

// Contains reports whether symbol is selectable.
func (c *Catalog) Contains(symbol string) bool {
	_, ok := c.Canonical(symbol)
	return ok
}

// Canonical returns the catalog spelling of symbol.
func (c *Catalog) Canonical(symbol string) (string, bool) {
	sym := strings.TrimSpace(symbol)
	for _, t := range c.tickers {
		if strings.EqualFold(t, sym) {
			return t, true
		}
	}
	return "", false
}

// Instrument resolves symbol to its configured instrument. Symbols outside
// the basket are remote daily instruments.
func (c *Catalog) Instrument(symbol string) domain.Instrument {
	sym := strings.TrimSpace(symbol)
	if inst, ok := c.instruments[strings.ToUpper(sym)]; ok {
		return inst
	}
	return domain.Instrument{
		Symbol:    strings.ToUpper(sym),
		Source:    domain.SourceRemote,
		Timeframe: domain.TimeframeDaily,
	}
}
