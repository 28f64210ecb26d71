package weather

import (
	"fmt"
	"time"
)

// Point is the fixed geographic location a process instance syncs.
type Point struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// String renders the point for logs.
func (p Point) String() string {
	return fmt.Sprintf("%s (%.4f,%.4f)", p.Name, p.Lat, p.Lon)
}

// Observation is one hourly reading. Time identifies the row; a nil
// Temperature means the provider had no value for that hour.
type Observation struct {
	Time        time.Time `json:"time"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// HasTemperature reports whether the observation carries a value worth storing.
func (o Observation) HasTemperature() bool {
	return o.Temperature != nil
}

// SyncWindow is the half-open range [Start, End) fetched by one cycle.
type SyncWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsEmpty reports whether the window contains no instants.
func (w SyncWindow) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// Contains reports whether t lies in [Start, End).
func (w SyncWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ReadState enumerates the outcomes of a last-timestamp read.
type ReadState int

const (
	ReadEmpty ReadState = iota
	ReadPresent
	ReadUnavailable
)

func (s ReadState) String() string {
	switch s {
	case ReadEmpty:
		return "empty"
	case ReadPresent:
		return "present"
	case ReadUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// LastRead is the result of Store.LastTimestamp. Time is only meaningful when
// State is ReadPresent and holds the stored wall clock, tagged UTC. Err is only
// set when State is ReadUnavailable.
type LastRead struct {
	State ReadState
	Time  time.Time
	Err   error
}

// Present builds a LastRead for a table holding rows.
func Present(t time.Time) LastRead {
	return LastRead{State: ReadPresent, Time: t}
}

// Empty builds a LastRead for a table with zero rows.
func Empty() LastRead {
	return LastRead{State: ReadEmpty}
}

// Unavailable builds a LastRead for a failed query. err is wrapped so that
// errors.Is(err, ErrStoreUnavailable) holds.
func Unavailable(err error) LastRead {
	return LastRead{State: ReadUnavailable, Err: fmt.Errorf("%w: %v", ErrStoreUnavailable, err)}
}
