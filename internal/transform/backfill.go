package transform

import "time"

// SeriesPoint is one (timestamp, price) observation on a regular grid.
type SeriesPoint struct {
	Timestamp time.Time
	Price     float64
}

// ForwardFill projects sparse observations onto a regular grid from
// start to end (inclusive) at the given step. Each grid point carries
// the most recent observation at or before it; grid points before the
// first observation are omitted. Observations must be ordered by
// timestamp ascending.
func ForwardFill(points []SeriesPoint, start, end time.Time, step time.Duration) []SeriesPoint {
	if len(points) == 0 || step <= 0 || end.Before(start) {
		return nil
	}

	var out []SeriesPoint
	idx := 0
	var last SeriesPoint
	seeded := false
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		for idx < len(points) && !points[idx].Timestamp.After(ts) {
			last = points[idx]
			seeded = true
			idx++
		}
		if !seeded {
			continue
		}
		out = append(out, SeriesPoint{Timestamp: ts, Price: last.Price})
	}
	return out
}
