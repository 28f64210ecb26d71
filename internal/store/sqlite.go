package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

// sqliteTimeLayout sorts lexicographically in time order, so ORDER BY on the
// text column is chronological.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// SQLiteStore persists observations in a SQLite table with the same shape as
// the PostgreSQL one. Times are stored as text wall clocks.
type SQLiteStore struct {
	path  string
	table string
	loc   *time.Location
}

// NewSQLiteStore creates a store backed by the database file at path.
func NewSQLiteStore(path, table string, loc *time.Location) *SQLiteStore {
	if loc == nil {
		loc = time.UTC
	}
	return &SQLiteStore{
		path:  path,
		table: quoteTable(table),
		loc:   loc,
	}
}

func (s *SQLiteStore) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *SQLiteStore) close(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("closing sqlite database failed", "error", err)
	}
}

// EnsureTable creates the table if it does not exist.
func (s *SQLiteStore) EnsureTable(ctx context.Context) error {
	db, err := s.open()
	if err != nil {
		return unavailable("create table", err)
	}
	defer s.close(db)

	_, err = db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (time TEXT PRIMARY KEY, temperature REAL)", s.table))
	if err != nil {
		return unavailable("create table", err)
	}
	return nil
}

// LastTimestamp returns the newest stored time as a wall clock tagged UTC.
func (s *SQLiteStore) LastTimestamp(ctx context.Context) weather.LastRead {
	db, err := s.open()
	if err != nil {
		return weather.Unavailable(fmt.Errorf("open: %w", err))
	}
	defer s.close(db)

	var raw any
	query := fmt.Sprintf("SELECT time FROM %s ORDER BY time DESC LIMIT 1", s.table)
	if err := db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return weather.Empty()
		}
		return weather.Unavailable(fmt.Errorf("query last timestamp: %w", err))
	}

	ts, err := parseSQLiteTime(raw)
	if err != nil {
		return weather.Unavailable(err)
	}
	return weather.Present(ts)
}

// UpsertBatch writes all eligible rows in one transaction.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, obs []weather.Observation) (int, error) {
	rows := weather.PrepareBatch(obs, s.loc)
	if len(rows) == 0 {
		return 0, nil
	}

	db, err := s.open()
	if err != nil {
		return 0, unavailable("upsert batch", err)
	}
	defer s.close(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("upsert batch", err)
	}
	if err := s.upsertRows(ctx, tx, rows); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("rollback failed", "error", rbErr)
		}
		return 0, unavailable("upsert batch", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("upsert batch", err)
	}
	return len(rows), nil
}

func (s *SQLiteStore) upsertRows(ctx context.Context, tx *sql.Tx, rows []weather.Row) error {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (time, temperature) VALUES (?, ?) "+
			"ON CONFLICT(time) DO UPDATE SET temperature = excluded.temperature", s.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Time.Format(sqliteTimeLayout), r.Temperature); err != nil {
			return err
		}
	}
	return nil
}

func parseSQLiteTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return weather.Localize(v, time.UTC), nil
	case string:
		return parseSQLiteText(v)
	case []byte:
		return parseSQLiteText(string(v))
	default:
		return time.Time{}, fmt.Errorf("unexpected time column type %T", raw)
	}
}

func parseSQLiteText(s string) (time.Time, error) {
	for _, layout := range []string{sqliteTimeLayout, "2006-01-02T15:04:05", time.RFC3339Nano} {
		if ts, err := time.Parse(layout, s); err == nil {
			return weather.Localize(ts, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable stored time %q", s)
}
