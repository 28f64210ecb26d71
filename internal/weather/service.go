package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeWritten Outcome = "written"
	OutcomeCurrent Outcome = "current"
	OutcomeNoData  Outcome = "no-data"
	OutcomeFailed  Outcome = "failed"
)

// CycleResult reports one fetch-and-write cycle. Err is set only when Outcome
// is OutcomeFailed and wraps ErrStoreUnavailable or ErrProvider.
type CycleResult struct {
	ID      string
	Outcome Outcome
	Window  SyncWindow
	Fetched int
	Written int
	Err     error
}

// Failed reports whether the cycle ended with a recoverable failure.
func (r CycleResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// DriverConfig is the immutable part of the application configuration the
// driver needs.
type DriverConfig struct {
	Point Point

	// Lookback is used only when the store holds no rows.
	Lookback time.Duration

	// StoreLocation is the time zone the store's naive timestamps are written in.
	StoreLocation *time.Location
}

// Driver orchestrates a single sync cycle: compute the window, fetch, write.
type Driver struct {
	store    Store
	provider Provider
	cfg      DriverConfig
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Driver.
type Option func(*Driver)

// WithClock overrides the driver's source of the current time.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// WithLogger sets the driver's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDriver creates a new Driver.
func NewDriver(store Store, provider Provider, cfg DriverConfig, opts ...Option) *Driver {
	if cfg.StoreLocation == nil {
		cfg.StoreLocation = time.UTC
	}
	d := &Driver{
		store:    store,
		provider: provider,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunCycle executes one cycle. Recoverable failures are reported in the
// result and logged; they never escape as panics or errors.
func (d *Driver) RunCycle(ctx context.Context) CycleResult {
	res := CycleResult{ID: uuid.NewString()}
	log := d.logger.With("cycle_id", res.ID, "location", d.cfg.Point.Name)

	// The sync state is re-derived from the store on every cycle.
	last := d.store.LastTimestamp(ctx)
	switch last.State {
	case ReadPresent:
		log.Info("last stored observation found", "time", last.Time.Format(time.DateTime))
	case ReadEmpty:
		log.Info("store is empty; bootstrapping from lookback window", "lookback", d.cfg.Lookback)
	}

	window, err := NextWindow(last, d.cfg.StoreLocation, d.cfg.Lookback, d.now())
	if err != nil {
		log.Warn("could not read last timestamp; skipping cycle", "error", err)
		return d.fail(res, err)
	}
	res.Window = window

	if window.IsEmpty() {
		log.Info("data already current; nothing to fetch",
			"start", window.Start.Format(time.RFC3339),
			"end", window.End.Format(time.RFC3339))
		res.Outcome = OutcomeCurrent
		return res
	}

	log.Info("requesting observations",
		"provider", d.provider.Name(),
		"start", window.Start.Format(time.RFC3339),
		"end", window.End.Format(time.RFC3339))

	rows, err := d.provider.Fetch(ctx, d.cfg.Point, window.Start.UTC(), window.End.UTC())
	if err != nil {
		if !errors.Is(err, ErrProvider) {
			err = fmt.Errorf("%w: %v", ErrProvider, err)
		}
		log.Warn("fetch failed", "provider", d.provider.Name(), "error", err)
		return d.fail(res, err)
	}
	res.Fetched = len(rows)

	if len(rows) == 0 {
		log.Info("provider returned no new observations", "provider", d.provider.Name())
		res.Outcome = OutcomeNoData
		return res
	}
	log.Info("observations received", "count", len(rows))

	written, err := d.store.UpsertBatch(ctx, rows)
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		log.Warn("batch write failed", "rows", len(rows), "error", err)
		return d.fail(res, err)
	}
	res.Written = written

	if written == 0 {
		log.Warn("no valid observations to write after filtering", "fetched", len(rows))
	} else {
		log.Info("observations written", "count", written)
	}
	res.Outcome = OutcomeWritten
	return res
}

func (d *Driver) fail(res CycleResult, err error) CycleResult {
	res.Outcome = OutcomeFailed
	res.Err = err
	return res
}
