// Package quote retrieves historical OHLC series from remote market-data
// providers and from exported flat files.
package quote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"marketwatch/internal/domain"
)

// ErrNoData is returned when a source has no bars for the request.
var ErrNoData = errors.New("no quote data")

// Request describes one series retrieval.
type Request struct {
	Symbol    string
	Timeframe domain.Timeframe
	// Start is inclusive; zero requests the maximum available history.
	Start time.Time
	// End is inclusive; zero means now.
	End time.Time
	// Origin selects the retrieval strategy.
	Origin domain.SourceKind
}

// RequestFor builds a Request for an instrument.
func RequestFor(inst domain.Instrument, start, end time.Time) Request {
	return Request{
		Symbol:    inst.Symbol,
		Timeframe: inst.Timeframe,
		Start:     start,
		End:       end,
		Origin:    inst.Source,
	}
}

// Source fetches a time-ordered series for a request.
type Source interface {
	// Name returns the source identifier used in logs and metrics.
	Name() string
	// Fetch returns the bars for req in ascending time order.
	Fetch(ctx context.Context, req Request) (domain.Series, error)
}

// HTTPError is a non-2xx response from a remote quote provider.
type HTTPError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Source, e.StatusCode, e.Body)
}

// retryable reports whether a fetch error is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}

// normalize sorts bars ascending, drops duplicate timestamps (last wins) and
// keeps only bars inside [start, end] when those bounds are set.
func normalize(bars []domain.Bar, start, end time.Time) []domain.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	out := bars[:0]
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
