// Package store holds the weather.Store implementations: PostgreSQL (the
// production target), SQLite and an in-memory store for dry runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

// Driver names accepted by New.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

var errUnknownDriver = errors.New("unknown store driver")

// Options selects and configures a store.
type Options struct {
	Driver string

	// PostgresURL is a pgx connection string, used by the postgres driver.
	PostgresURL string

	// SQLitePath is the database file, used by the sqlite driver.
	SQLitePath string

	// Table may be schema-qualified ("public.weather").
	Table string

	// Location is the time zone stored timestamps are written in.
	Location *time.Location
}

// Store is a weather.Store that can also create its table.
type Store interface {
	weather.Store
	EnsureTable(ctx context.Context) error
}

// New builds the store selected by opts.Driver.
func New(opts Options) (Store, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	switch opts.Driver {
	case DriverPostgres:
		return NewPostgresStore(opts.PostgresURL, opts.Table, opts.Location), nil
	case DriverSQLite:
		return NewSQLiteStore(opts.SQLitePath, opts.Table, opts.Location), nil
	case DriverMemory:
		return memoryTable{NewMemoryStore(opts.Location)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDriver, opts.Driver)
	}
}

type memoryTable struct {
	*MemoryStore
}

func (memoryTable) EnsureTable(context.Context) error { return nil }

// quoteTable renders a possibly schema-qualified table name as a quoted SQL
// identifier. PostgreSQL and SQLite share the double-quote syntax.
func quoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", weather.ErrStoreUnavailable, op, err)
}
