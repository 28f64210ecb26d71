package weather_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/hourly-weather-sync/internal/store"
	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

type dayProvider struct {
	now   time.Time
	calls int
	fail  bool
}

func (p *dayProvider) Name() string { return "day" }

func (p *dayProvider) Fetch(_ context.Context, _ weather.Point, start, end time.Time) ([]weather.Observation, error) {
	p.calls++
	if p.fail {
		return nil, errors.New("service unavailable")
	}
	// The 24 most recent whole hours, inside [start, end).
	last := p.now.Truncate(time.Hour)
	var obs []weather.Observation
	for i := 23; i >= 0; i-- {
		ts := last.Add(-time.Duration(i) * time.Hour)
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		v := float64(i)
		obs = append(obs, weather.Observation{Time: ts, Temperature: &v})
	}
	return obs, nil
}

func newSQLite(t *testing.T, loc *time.Location) *store.SQLiteStore {
	t.Helper()
	s := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), "observations", loc)
	if err := s.EnsureTable(context.Background()); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	return s
}

func TestBootstrapCycleWritesLatestDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 6, 15, 12, 20, 0, 0, time.UTC)
	st := newSQLite(t, loc)
	prov := &dayProvider{now: now}

	d := weather.NewDriver(st, prov, weather.DriverConfig{
		Point:         weather.Point{Name: "Moscow", Lat: 55.75, Lon: 37.62},
		Lookback:      30 * 24 * time.Hour,
		StoreLocation: loc,
	}, weather.WithClock(func() time.Time { return now }),
		weather.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res := d.RunCycle(context.Background())
	if res.Outcome != weather.OutcomeWritten || res.Written != 24 {
		t.Fatalf("expected 24 rows written, got %+v", res)
	}

	last := st.LastTimestamp(context.Background())
	// 12:00 UTC stored as 15:00 in UTC+3.
	want := time.Date(2024, 6, 15, 15, 0, 0, 0, time.UTC)
	if last.State != weather.ReadPresent || !last.Time.Equal(want) {
		t.Fatalf("expected last timestamp %s, got %s %s", want, last.State, last.Time)
	}

	// The next cycle in the same hour would resume after the stored hour,
	// which is still in the future.
	res = d.RunCycle(context.Background())
	if res.Outcome != weather.OutcomeCurrent {
		t.Fatalf("expected already current, got %+v", res)
	}
	if prov.calls != 1 {
		t.Fatalf("expected no second fetch, got %d calls", prov.calls)
	}
	wantStart := time.Date(2024, 6, 15, 13, 0, 0, 0, time.UTC)
	if !res.Window.Start.Equal(wantStart) {
		t.Fatalf("expected resume at %s, got %s", wantStart, res.Window.Start)
	}
}

func TestProviderFailureDoesNotAffectNextCycle(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 20, 0, 0, time.UTC)
	st := store.NewMemoryStore(time.UTC)
	prov := &dayProvider{now: now, fail: true}

	d := weather.NewDriver(st, prov, weather.DriverConfig{Lookback: 24 * time.Hour, StoreLocation: time.UTC},
		weather.WithClock(func() time.Time { return now }),
		weather.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if res := d.RunCycle(context.Background()); !res.Failed() {
		t.Fatalf("expected failed cycle, got %+v", res)
	}

	prov.fail = false
	res := d.RunCycle(context.Background())
	if res.Outcome != weather.OutcomeWritten {
		t.Fatalf("expected recovery, got %+v", res)
	}
	if len(st.Rows()) != res.Written || res.Written == 0 {
		t.Fatalf("expected %d rows stored, got %d", res.Written, len(st.Rows()))
	}
}
