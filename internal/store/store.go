// Package store persists bar snapshots, forecast archives, pipeline run
// history and cached dividend records.
package store

import (
	"context"
	"errors"
	"time"

	"marketwatch/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists the last fetched bars per symbol and timeframe so a
// chart can still be drawn when the upstream source is down.
type BarStore interface {
	// WriteBars merges bars into storage, replacing rows with equal timestamps.
	WriteBars(ctx context.Context, tf domain.Timeframe, bars []domain.Bar) error

	// ReadBars returns bars for symbol at tf within [start, end], ascending.
	ReadBars(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols with stored bars at tf.
	ListSymbols(ctx context.Context, tf domain.Timeframe) ([]string, error)
}

// ForecastArchive keeps one smoothed forecast per symbol and day.
type ForecastArchive interface {
	// WriteForecast stores f under day, replacing any forecast already there.
	WriteForecast(ctx context.Context, f domain.Forecast, day time.Time) error

	// ReadForecast returns the forecast stored for symbol on day.
	ReadForecast(ctx context.Context, symbol string, day time.Time) (domain.Forecast, error)

	// ListForecastDays returns the archived days for symbol, ascending.
	ListForecastDays(ctx context.Context, symbol string) ([]time.Time, error)
}

// RunStore records pipeline runs.
type RunStore interface {
	// SaveRun inserts run, assigning an ID when it has none.
	SaveRun(ctx context.Context, run *domain.PipelineRun) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)

	// ListRuns returns the most recent runs, newest first, optionally
	// restricted to symbol, up to limit.
	ListRuns(ctx context.Context, symbol string, limit int) ([]domain.PipelineRun, error)
}

// DividendCache keeps the last good dividend record per ticker.
type DividendCache interface {
	// PutDividend upserts rec.
	PutDividend(ctx context.Context, rec domain.DividendRecord, fetchedAt time.Time) error

	// GetDividend returns the cached record for ticker and when it was fetched.
	GetDividend(ctx context.Context, ticker string) (domain.DividendRecord, time.Time, error)
}
