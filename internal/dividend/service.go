package dividend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketwatch/internal/domain"
	"marketwatch/internal/store"
	"marketwatch/internal/util"
)

// Cache persists the last good record per ticker. GetDividend reports a
// miss with store.ErrNotFound.
type Cache interface {
	GetDividend(ctx context.Context, ticker string) (domain.DividendRecord, time.Time, error)
	PutDividend(ctx context.Context, rec domain.DividendRecord, fetchedAt time.Time) error
}

var _ Cache = (*store.SQLiteStore)(nil)

// Looker performs a live lookup.
type Looker interface {
	Latest(ctx context.Context, ticker string) Result
}

// Service performs lookups and falls back to the last cached record when
// the live lookup is unavailable.
type Service struct {
	client Looker
	cache  Cache
	log    *slog.Logger
}

// NewService creates a Service. cache may be nil.
func NewService(client Looker, cache Cache, log *slog.Logger) *Service {
	if log == nil {
		log = util.Discard()
	}
	return &Service{client: client, cache: cache, log: log.With("component", "dividends")}
}

// Lookup returns the latest dividend for ticker. Found records are cached;
// an unavailable lookup is answered from cache, marked stale, when possible.
func (s *Service) Lookup(ctx context.Context, ticker string) Result {
	res := s.client.Latest(ctx, ticker)
	if s.cache == nil {
		return res
	}

	switch res.Status {
	case StatusOK:
		if err := s.cache.PutDividend(ctx, *res.Record, res.FetchedAt); err != nil {
			s.log.Warn("caching dividend failed", "ticker", res.Ticker, "error", err)
		}
	case StatusUnavailable:
		rec, fetchedAt, err := s.cache.GetDividend(ctx, res.Ticker)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.log.Warn("reading dividend cache failed", "ticker", res.Ticker, "error", err)
			}
			return res
		}
		s.log.Info("serving cached dividend", "ticker", res.Ticker, "fetched_at", fetchedAt)
		res.Record = &rec
		res.Stale = true
		res.FetchedAt = fetchedAt
	}
	return res
}
