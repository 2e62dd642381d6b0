package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"marketwatch/internal/domain"
	"marketwatch/internal/util"
)

// Compile-time interface check.
var _ Source = (*Router)(nil)

// Router dispatches each request to the source suited to its origin and
// symbol:
//
//   - file-origin instruments go to the flat-file source;
//   - indices (^GSPC) and FX pairs (CAD=X) go to Yahoo;
//   - everything else goes to Alpaca when configured, falling back to Yahoo
//     on failure, and to Yahoo otherwise.
type Router struct {
	yahoo  Source
	alpaca Source
	files  Source
	log    *slog.Logger

	// OnError, when set, is called for every failed upstream fetch.
	OnError func(source string, err error)
}

// NewRouter creates a Router. yahoo is required; alpaca and files may be nil.
func NewRouter(yahoo, alpaca, files Source, log *slog.Logger) *Router {
	if log == nil {
		log = util.Discard()
	}
	return &Router{yahoo: yahoo, alpaca: alpaca, files: files, log: log.With("component", "quote-router")}
}

// Name returns the source identifier.
func (r *Router) Name() string { return "router" }

// Fetch routes req and returns the resulting series.
func (r *Router) Fetch(ctx context.Context, req Request) (domain.Series, error) {
	if req.Origin == domain.SourceFile {
		if r.files == nil {
			return domain.Series{}, fmt.Errorf("%s: file source not configured: %w", req.Symbol, ErrNoData)
		}
		return r.fetch(ctx, r.files, req)
	}

	if r.alpaca != nil && !YahooOnly(req.Symbol) {
		s, err := r.fetch(ctx, r.alpaca, req)
		if err == nil {
			return s, nil
		}
		if ctx.Err() != nil {
			return domain.Series{}, err
		}
		r.log.Info("falling back to yahoo", "symbol", req.Symbol, "error", err)
	}
	return r.fetch(ctx, r.yahoo, req)
}

func (r *Router) fetch(ctx context.Context, src Source, req Request) (domain.Series, error) {
	s, err := src.Fetch(ctx, req)
	if err != nil && r.OnError != nil && !errors.Is(err, context.Canceled) {
		r.OnError(src.Name(), err)
	}
	return s, err
}

// YahooOnly reports whether symbol is an index or FX pair that only the
// Yahoo source can serve.
func YahooOnly(symbol string) bool {
	return strings.HasPrefix(symbol, "^") || strings.HasSuffix(strings.ToUpper(symbol), "=X")
}
