package weather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeStore struct {
	last      LastRead
	upserted  [][]Observation
	upsertErr error
}

func (s *fakeStore) LastTimestamp(context.Context) LastRead { return s.last }

func (s *fakeStore) UpsertBatch(_ context.Context, rows []Observation) (int, error) {
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.upserted = append(s.upserted, rows)
	return len(PrepareBatch(rows, time.UTC)), nil
}

type fetchCall struct {
	point      Point
	start, end time.Time
}

type fakeProvider struct {
	rows  []Observation
	err   error
	calls []fetchCall
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Fetch(_ context.Context, point Point, start, end time.Time) ([]Observation, error) {
	p.calls = append(p.calls, fetchCall{point: point, start: start, end: end})
	return p.rows, p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDriver(store Store, provider Provider, loc *time.Location, now time.Time) *Driver {
	cfg := DriverConfig{
		Point:         Point{Name: "Test", Lat: 55.75, Lon: 37.62},
		Lookback:      30 * 24 * time.Hour,
		StoreLocation: loc,
	}
	return NewDriver(store, provider, cfg,
		WithClock(func() time.Time { return now }),
		WithLogger(quietLogger()))
}

func TestRunCycleCallsProviderWithConvertedStart(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{last: Present(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC))}
	provider := &fakeProvider{}

	res := newTestDriver(store, provider, loc, now).RunCycle(context.Background())

	if len(provider.calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(provider.calls))
	}
	call := provider.calls[0]
	wantStart := time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)
	if !call.start.Equal(wantStart) || call.start.Location() != time.UTC {
		t.Fatalf("expected start %s UTC, got %s", wantStart, call.start)
	}
	if !call.end.Equal(now) {
		t.Fatalf("expected end %s, got %s", now, call.end)
	}
	if call.point.Lat != 55.75 || call.point.Lon != 37.62 {
		t.Fatalf("unexpected point %+v", call.point)
	}
	if res.Outcome != OutcomeNoData {
		t.Fatalf("expected outcome %s, got %s", OutcomeNoData, res.Outcome)
	}
	if len(store.upserted) != 0 {
		t.Fatalf("store must not be written on empty fetch")
	}
}

func TestRunCycleAlreadyCurrentIsNoOp(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// Last stored hour 23:00 local is 20:00 UTC, so start is 21:00 UTC.
	now := time.Date(2024, 1, 1, 20, 59, 0, 0, time.UTC)
	store := &fakeStore{last: Present(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC))}
	provider := &fakeProvider{}

	res := newTestDriver(store, provider, loc, now).RunCycle(context.Background())

	if res.Outcome != OutcomeCurrent {
		t.Fatalf("expected outcome %s, got %s", OutcomeCurrent, res.Outcome)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("provider must not be called, got %d calls", len(provider.calls))
	}
	if len(store.upserted) != 0 {
		t.Fatalf("store must not be written")
	}
}

func TestRunCycleUnavailableStoreSkipsCycle(t *testing.T) {
	store := &fakeStore{last: Unavailable(errors.New("dial tcp: connection refused"))}
	provider := &fakeProvider{}

	res := newTestDriver(store, provider, time.UTC, time.Now()).RunCycle(context.Background())

	if !res.Failed() {
		t.Fatalf("expected failed cycle, got %s", res.Outcome)
	}
	if !errors.Is(res.Err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", res.Err)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("a failed read must not trigger a lookback fetch")
	}
}

func TestRunCycleEmptyStoreUsesLookback(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{last: Empty()}
	provider := &fakeProvider{}

	newTestDriver(store, provider, time.UTC, now).RunCycle(context.Background())

	if len(provider.calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(provider.calls))
	}
	want := now.Add(-30 * 24 * time.Hour)
	if !provider.calls[0].start.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, provider.calls[0].start)
	}
}

func TestRunCycleProviderFailure(t *testing.T) {
	store := &fakeStore{last: Empty()}
	provider := &fakeProvider{err: errors.New("timeout")}

	res := newTestDriver(store, provider, time.UTC, time.Now()).RunCycle(context.Background())

	if !res.Failed() || !errors.Is(res.Err, ErrProvider) {
		t.Fatalf("expected provider failure, got %+v", res)
	}
	if len(store.upserted) != 0 {
		t.Fatalf("store must not be written after a failed fetch")
	}
}

func TestRunCycleWriteFailure(t *testing.T) {
	store := &fakeStore{last: Empty(), upsertErr: errors.New("deadlock detected")}
	provider := &fakeProvider{rows: []Observation{{Time: time.Now().UTC(), Temperature: temp(1)}}}

	res := newTestDriver(store, provider, time.UTC, time.Now()).RunCycle(context.Background())

	if !res.Failed() || !errors.Is(res.Err, ErrStoreUnavailable) {
		t.Fatalf("expected store failure, got %+v", res)
	}
	if res.Fetched != 1 {
		t.Fatalf("expected fetched=1, got %d", res.Fetched)
	}
}

func TestRunCycleWritesRows(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{last: Empty()}
	provider := &fakeProvider{rows: []Observation{
		{Time: now.Add(-2 * time.Hour), Temperature: temp(10)},
		{Time: now.Add(-time.Hour)},
	}}

	res := newTestDriver(store, provider, time.UTC, now).RunCycle(context.Background())

	if res.Outcome != OutcomeWritten {
		t.Fatalf("expected outcome %s, got %s (%v)", OutcomeWritten, res.Outcome, res.Err)
	}
	if res.Fetched != 2 || res.Written != 1 {
		t.Fatalf("expected fetched=2 written=1, got fetched=%d written=%d", res.Fetched, res.Written)
	}
	if res.ID == "" {
		t.Fatalf("expected a cycle id")
	}
}
