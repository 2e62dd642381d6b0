package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketwatch/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RunStore = (*SQLiteStore)(nil)
var _ DividendCache = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore and DividendCache backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pipeline runs.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id          TEXT PRIMARY KEY,
			symbol      TEXT NOT NULL,
			timeframe   TEXT NOT NULL,
			status      TEXT NOT NULL,
			bars        INTEGER NOT NULL DEFAULT 0,
			points      INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol ON pipeline_runs(symbol, started_at)`,

		`CREATE TABLE IF NOT EXISTS dividends (
			ticker           TEXT PRIMARY KEY,
			cash_amount      TEXT NOT NULL,
			ex_dividend_date TEXT NOT NULL DEFAULT '',
			frequency        INTEGER NOT NULL DEFAULT 0,
			pay_date         TEXT NOT NULL DEFAULT '',
			fetched_at       INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a pipeline run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.PipelineRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, symbol, timeframe, status, bars, points, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Symbol, string(run.Timeframe), string(run.Status), run.Bars, run.Points,
		run.Error, run.StartedAt.UTC().UnixMilli(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, timeframe, status, bars, points, error, started_at, duration_ms
		 FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, symbol string, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, symbol, timeframe, status, bars, points, error, started_at, duration_ms FROM pipeline_runs`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, strings.ToUpper(symbol))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.PipelineRun, error) {
	var (
		run                 domain.PipelineRun
		tf, status          string
		startedMs, duration int64
	)
	if err := sc.Scan(&run.ID, &run.Symbol, &tf, &status, &run.Bars, &run.Points, &run.Error, &startedMs, &duration); err != nil {
		return nil, err
	}
	run.Timeframe = domain.Timeframe(tf)
	run.Status = domain.RunStatus(status)
	run.StartedAt = time.UnixMilli(startedMs).UTC()
	run.Duration = time.Duration(duration) * time.Millisecond
	return &run, nil
}

// ---------------------------------------------------------------------------
// DividendCache implementation
// ---------------------------------------------------------------------------

// PutDividend inserts or replaces the cached record for rec.Ticker.
func (s *SQLiteStore) PutDividend(ctx context.Context, rec domain.DividendRecord, fetchedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO dividends (ticker, cash_amount, ex_dividend_date, frequency, pay_date, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(rec.Ticker), rec.CashAmount.String(), rec.ExDividendDate, rec.Frequency, rec.PayDate,
		fetchedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache dividend %s: %w", rec.Ticker, err)
	}
	return nil
}

// GetDividend returns the cached record for ticker.
func (s *SQLiteStore) GetDividend(ctx context.Context, ticker string) (domain.DividendRecord, time.Time, error) {
	var (
		rec       domain.DividendRecord
		cash      string
		fetchedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ticker, cash_amount, ex_dividend_date, frequency, pay_date, fetched_at
		 FROM dividends WHERE ticker = ?`, strings.ToUpper(ticker),
	).Scan(&rec.Ticker, &cash, &rec.ExDividendDate, &rec.Frequency, &rec.PayDate, &fetchedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DividendRecord{}, time.Time{}, fmt.Errorf("dividend %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return domain.DividendRecord{}, time.Time{}, fmt.Errorf("read dividend %s: %w", ticker, err)
	}

	amount, err := decimal.NewFromString(cash)
	if err != nil {
		return domain.DividendRecord{}, time.Time{}, fmt.Errorf("dividend %s cash amount %q: %w", ticker, cash, err)
	}
	rec.CashAmount = amount
	return rec, time.UnixMilli(fetchedMs).UTC(), nil
}
