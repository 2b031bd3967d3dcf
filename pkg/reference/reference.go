package reference

import (
	"apexcoach/pkg/model"
)

// coverage slack for sparse sampling at high speed
const coverageMargin = 5.0

// Table is a monotonic piecewise-linear map from lap distance to
// cumulative lap time, precomputed from one lap's samples.
type Table struct {
	dist []float64
	time []float64
}

// BuildTable derives the interpolation table from a lap. Samples with
// non-increasing distance are skipped; the start line is anchored at
// (0, 0).
func BuildTable(lap *model.Lap) *Table {
	t := &Table{}
	t.dist = append(t.dist, 0)
	t.time = append(t.time, 0)
	prev := 0.0
	for _, s := range lap.Samples {
		if s.LapDistance <= prev {
			continue
		}
		t.dist = append(t.dist, s.LapDistance)
		t.time = append(t.time, s.Timestamp-lap.StartedAt)
		prev = s.LapDistance
	}
	return t
}

// TimeAt interpolates cumulative time at the given distance. Queries
// outside the recorded range clamp to the nearest endpoint, they never
// extrapolate.
func (t *Table) TimeAt(distance float64) float64 {
	n := len(t.dist)
	if n == 0 {
		return 0
	}
	if distance <= t.dist[0] {
		return t.time[0]
	}
	if distance >= t.dist[n-1] {
		return t.time[n-1]
	}
	// binary search for the covering segment
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t.dist[mid] <= distance {
			lo = mid
		} else {
			hi = mid
		}
	}
	span := t.dist[hi] - t.dist[lo]
	if span == 0 {
		return t.time[lo]
	}
	frac := (distance - t.dist[lo]) / span
	return t.time[lo] + frac*(t.time[hi]-t.time[lo])
}

// MaxDistance returns the last recorded distance, the canonical track
// length for bin comparison.
func (t *Table) MaxDistance() float64 {
	if len(t.dist) == 0 {
		return 0
	}
	return t.dist[len(t.dist)-1]
}

// Covers reports whether the table has data across [from, to]. A delta
// computed over an uncovered range would be fabricated by clamping, so
// callers must report it unavailable instead.
func (t *Table) Covers(from, to float64) bool {
	if len(t.dist) == 0 {
		return false
	}
	return from >= t.dist[0]-coverageMargin && to <= t.dist[len(t.dist)-1]+coverageMargin
}

// Manager owns the session's personal best. Single consumer: only the
// engine goroutine calls it.
type Manager struct {
	lap        *model.Lap
	table      *Table
	generation uint64
}

func NewManager() *Manager {
	return &Manager{}
}

// Consider offers a finalized lap. It becomes the reference iff it is
// valid and strictly faster than the current one; ties keep the
// existing reference. Returns true when the lap became the new PB.
func (m *Manager) Consider(lap *model.Lap) bool {
	if lap == nil || !lap.Valid || lap.TotalTime <= 0 {
		return false
	}
	if m.lap != nil && lap.TotalTime >= m.lap.TotalTime {
		return false
	}
	if m.lap != nil {
		m.lap.IsPB = false
	}
	lap.IsPB = true
	m.lap = lap
	m.table = BuildTable(lap)
	m.generation++
	return true
}

// Seed installs a persisted PB from an earlier session. It only applies
// before any reference exists in this session.
func (m *Manager) Seed(lap *model.Lap) {
	if m.lap != nil || lap == nil || len(lap.Samples) == 0 {
		return
	}
	lap.IsPB = true
	m.lap = lap
	m.table = BuildTable(lap)
	m.generation++
}

func (m *Manager) HasReference() bool {
	return m.lap != nil
}

func (m *Manager) Lap() *model.Lap {
	return m.lap
}

func (m *Manager) Table() *Table {
	return m.table
}

// Generation increments on every replacement. Caches keyed on it (per
// corner reference segment metrics) drop their entries when it moves.
func (m *Manager) Generation() uint64 {
	return m.generation
}

// Reset clears the reference for a fresh session.
func (m *Manager) Reset() {
	m.lap = nil
	m.table = nil
	m.generation++
}
