package weather

import (
	"fmt"
	"time"
)

// Step is the resolution of the provider's data.
const Step = time.Hour

// Localize reinterprets the wall clock of a stored timestamp in loc.
// The location attached to naive is ignored. A wall clock repeated by a
// fall-back transition resolves to its first occurrence.
func Localize(naive time.Time, loc *time.Location) time.Time {
	return time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), loc)
}

// Naive returns the wall clock of t in loc, tagged UTC, which is how stores
// hand timestamps to columns without a time zone.
func Naive(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(),
		l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// NextWindow computes the fetch window of a cycle running at now.
//
// A present last timestamp T yields start = UTC(localize(T, loc)) + Step.
// An empty store yields start = now - lookback. end is always now in UTC.
// An unavailable read returns an error; the caller must skip the cycle.
func NextWindow(last LastRead, loc *time.Location, lookback time.Duration, now time.Time) (SyncWindow, error) {
	end := now.UTC()

	switch last.State {
	case ReadPresent:
		start := Localize(last.Time, loc).UTC().Add(Step)
		return SyncWindow{Start: start, End: end}, nil
	case ReadEmpty:
		return SyncWindow{Start: end.Add(-lookback), End: end}, nil
	case ReadUnavailable:
		if last.Err != nil {
			return SyncWindow{}, last.Err
		}
		return SyncWindow{}, ErrStoreUnavailable
	default:
		return SyncWindow{}, fmt.Errorf("unknown read state %d", last.State)
	}
}
