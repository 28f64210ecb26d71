package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/hourly-weather-sync/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Keys are wall clocks in the configured time zone, exactly as a table with a
// timestamp-without-time-zone column would hold them.
type MemoryStore struct {
	mu sync.RWMutex

	// key: stored wall clock, value: temperature
	data map[time.Time]float64

	loc *time.Location
}

// NewMemoryStore creates an empty MemoryStore writing wall clocks in loc.
func NewMemoryStore(loc *time.Location) *MemoryStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryStore{
		data: make(map[time.Time]float64),
		loc:  loc,
	}
}

// LastTimestamp returns the newest stored wall clock.
func (s *MemoryStore) LastTimestamp(_ context.Context) weather.LastRead {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return weather.Empty()
	}
	var newest time.Time
	for ts := range s.data {
		if ts.After(newest) {
			newest = ts
		}
	}
	return weather.Present(newest)
}

// UpsertBatch applies all eligible rows under a single lock.
func (s *MemoryStore) UpsertBatch(_ context.Context, obs []weather.Observation) (int, error) {
	rows := weather.PrepareBatch(obs, s.loc)
	if len(rows) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		s.data[r.Time] = r.Temperature
	}
	return len(rows), nil
}

// Rows returns a copy of the stored rows ordered by time.
func (s *MemoryStore) Rows() []weather.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]weather.Row, 0, len(s.data))
	for ts, v := range s.data {
		rows = append(rows, weather.Row{Time: ts, Temperature: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Time.Before(rows[j].Time)
	})
	return rows
}
