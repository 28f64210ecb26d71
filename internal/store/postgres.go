package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

// maxRowsPerStatement keeps a multi-row INSERT under PostgreSQL's limit of
// 65535 bind parameters (two per row).
const maxRowsPerStatement = 1000

// Conn is the subset of *pgx.Conn the store uses.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Connector opens a fresh connection.
type Connector func(ctx context.Context) (Conn, error)

// PostgresStore persists observations in a table with columns
// time (timestamp, unique) and temperature (double precision, nullable).
//
// A connection is opened per call and closed before returning, so nothing is
// held between cycles.
type PostgresStore struct {
	connect Connector
	table   string
	loc     *time.Location
}

// NewPostgresStore creates a store connecting with connString.
func NewPostgresStore(connString, table string, loc *time.Location) *PostgresStore {
	return NewPostgresStoreWithConnector(func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, connString)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}, table, loc)
}

// NewPostgresStoreWithConnector creates a store using connect for every call.
func NewPostgresStoreWithConnector(connect Connector, table string, loc *time.Location) *PostgresStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresStore{
		connect: connect,
		table:   quoteTable(table),
		loc:     loc,
	}
}

// EnsureTable creates the table if it does not exist.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	return s.withTx(ctx, "create table", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (time TIMESTAMP PRIMARY KEY, temperature DOUBLE PRECISION)",
			s.table))
		return err
	})
}

// LastTimestamp returns the newest stored time as a wall clock tagged UTC.
func (s *PostgresStore) LastTimestamp(ctx context.Context) weather.LastRead {
	conn, err := s.connect(ctx)
	if err != nil {
		return weather.Unavailable(fmt.Errorf("connect: %w", err))
	}
	defer s.close(ctx, conn)

	var ts time.Time
	query := fmt.Sprintf("SELECT time FROM %s ORDER BY time DESC LIMIT 1", s.table)
	if err := conn.QueryRow(ctx, query).Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return weather.Empty()
		}
		return weather.Unavailable(fmt.Errorf("query last timestamp: %w", err))
	}
	return weather.Present(weather.Localize(ts, time.UTC))
}

// UpsertBatch writes all eligible rows in one transaction. A row whose time
// already exists gets its temperature overwritten.
func (s *PostgresStore) UpsertBatch(ctx context.Context, obs []weather.Observation) (int, error) {
	rows := weather.PrepareBatch(obs, s.loc)
	if len(rows) == 0 {
		return 0, nil
	}

	err := s.withTx(ctx, "upsert batch", func(tx pgx.Tx) error {
		for lo := 0; lo < len(rows); lo += maxRowsPerStatement {
			hi := min(lo+maxRowsPerStatement, len(rows))
			query, args := s.upsertStatement(rows[lo:hi])
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *PostgresStore) upsertStatement(rows []weather.Row) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, 2*len(rows))

	fmt.Fprintf(&b, "INSERT INTO %s (time, temperature) VALUES ", s.table)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d)", 2*i+1, 2*i+2)
		args = append(args, r.Time, r.Temperature)
	}
	b.WriteString(" ON CONFLICT (time) DO UPDATE SET temperature = EXCLUDED.temperature")
	return b.String(), args
}

func (s *PostgresStore) withTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return unavailable(op, fmt.Errorf("connect: %w", err))
	}
	defer s.close(ctx, conn)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return unavailable(op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Warn("rollback failed", "op", op, "error", rbErr)
		}
		return unavailable(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *PostgresStore) close(ctx context.Context, conn Conn) {
	if err := conn.Close(ctx); err != nil {
		slog.Warn("closing postgres connection failed", "error", err)
	}
}
