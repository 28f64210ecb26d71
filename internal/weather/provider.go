package weather

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable marks connection or query failures of a Store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrProvider marks network or service failures of a Provider.
	ErrProvider = errors.New("provider error")
)

// Provider abstracts the remote climate-data source (e.g. Open-Meteo, Meteostat).
//
// start and end are UTC instants; the returned observations should fall in
// [start, end). An empty result means no data is available and is not an error.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, point Point, start, end time.Time) ([]Observation, error)
}

// Store is the contract every persistent (and in-memory) observation store satisfies.
type Store interface {
	// LastTimestamp returns the newest stored time as stored, never conflating
	// an empty table with a failed read.
	LastTimestamp(ctx context.Context) LastRead

	// UpsertBatch writes rows atomically and returns the number of rows written.
	UpsertBatch(ctx context.Context, rows []Observation) (int, error)
}
