package weather

import (
	"sort"
	"time"
)

// Row is an observation prepared for writing: Time is the wall clock in the
// store's time zone (tagged UTC) and Temperature is always present.
type Row struct {
	Time        time.Time
	Temperature float64
}

// PrepareBatch turns provider observations into rows for a single upsert.
// Observations without a temperature are dropped. Observations whose instants
// collapse onto the same stored wall clock (the repeated hour of a DST
// fall-back) are merged and the later instant wins. Rows come back ordered by
// Time ascending.
func PrepareBatch(obs []Observation, loc *time.Location) []Row {
	type entry struct {
		instant time.Time
		temp    float64
	}

	byKey := make(map[time.Time]entry, len(obs))
	for _, o := range obs {
		if !o.HasTemperature() {
			continue
		}
		key := Naive(o.Time, loc)
		if prev, ok := byKey[key]; ok && prev.instant.After(o.Time) {
			continue
		}
		byKey[key] = entry{instant: o.Time, temp: *o.Temperature}
	}

	rows := make([]Row, 0, len(byKey))
	for k, e := range byKey {
		rows = append(rows, Row{Time: k, Temperature: e.temp})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Time.Before(rows[j].Time)
	})
	return rows
}
