package corners

import (
	"apexcoach/pkg/model"
	"apexcoach/pkg/reference"
)

const (
	defaultApproach          = 80.0
	defaultBrakeThreshold    = 0.15
	defaultThrottleThreshold = 0.5
)

// Analyzer measures laps against an immutable corner set. Reference
// segment metrics are cached per corner and recomputed when the
// reference generation moves. Single consumer, engine goroutine only.
type Analyzer struct {
	corners           []model.Corner
	approach          float64
	brakeThreshold    float64
	throttleThreshold float64

	refLap   *model.Lap
	refTable *reference.Table
	refGen   uint64
	refCache map[int]model.CornerMetric
}

func NewAnalyzer(set []model.Corner) *Analyzer {
	return &Analyzer{
		corners:           set,
		approach:          defaultApproach,
		brakeThreshold:    defaultBrakeThreshold,
		throttleThreshold: defaultThrottleThreshold,
		refCache:          make(map[int]model.CornerMetric),
	}
}

func (a *Analyzer) Corners() []model.Corner {
	return a.corners
}

// SetReference installs the reference lap the deltas are measured
// against. A generation change drops every cached reference metric; an
// analysis already in flight keeps the table it started with.
func (a *Analyzer) SetReference(lap *model.Lap, table *reference.Table, gen uint64) {
	if gen == a.refGen {
		return
	}
	a.refLap = lap
	a.refTable = table
	a.refGen = gen
	a.refCache = make(map[int]model.CornerMetric)
}

// Reference returns the reference lap's own metric for a turn. Its
// Delta is nil: the reference has nothing to be compared against.
func (a *Analyzer) Reference(turn int) (model.CornerMetric, bool) {
	if a.refLap == nil {
		return model.CornerMetric{}, false
	}
	if m, ok := a.refCache[turn]; ok {
		return m, true
	}
	for _, c := range a.corners {
		if c.TurnNumber != turn {
			continue
		}
		m := a.analyze(a.refLap, a.refTable, c)
		m.Delta = nil
		a.refCache[turn] = m
		return m, true
	}
	return model.CornerMetric{}, false
}

// Analyze measures a finalized lap through every corner.
func (a *Analyzer) Analyze(lap *model.Lap) []model.CornerMetric {
	if len(a.corners) == 0 || lap == nil || len(lap.Samples) == 0 {
		return nil
	}
	table := reference.BuildTable(lap)
	out := make([]model.CornerMetric, 0, len(a.corners))
	for _, c := range a.corners {
		out = append(out, a.analyze(lap, table, c))
	}
	return out
}

// AnalyzeOne measures a single corner, typically right after the car
// leaves it on an in-progress lap.
func (a *Analyzer) AnalyzeOne(lap *model.Lap, corner model.Corner) model.CornerMetric {
	return a.analyze(lap, reference.BuildTable(lap), corner)
}

func (a *Analyzer) analyze(lap *model.Lap, table *reference.Table, c model.Corner) model.CornerMetric {
	m := model.CornerMetric{TurnNumber: c.TurnNumber, LapNumber: lap.LapNumber}
	slice := sliceSamples(lap.Samples, c)
	if len(slice) == 0 {
		return m
	}

	m.EntrySpeed = slice[0].Speed
	m.ExitSpeed = slice[len(slice)-1].Speed
	apexIdx := 0
	for i, s := range slice {
		if s.Speed < slice[apexIdx].Speed {
			apexIdx = i
		}
	}
	m.ApexSpeed = slice[apexIdx].Speed
	m.ApexGear = slice[apexIdx].Gear

	// earliest brake application in the approach window or the corner
	// itself; no crossing means no brake point, not distance zero
	for _, s := range approachSlice(lap.Samples, c, a.approach) {
		if s.Brake > a.brakeThreshold {
			d := s.LapDistance
			m.BrakePoint = &d
			break
		}
	}

	// first throttle reapplication past the apex
	for _, s := range slice[apexIdx+1:] {
		if s.Throttle > a.throttleThreshold {
			d := s.LapDistance
			m.ThrottlePoint = &d
			break
		}
	}

	m.SegmentTime = segmentTime(table, lap.TotalTime, c)

	if a.refTable != nil && a.refLap != nil && coversCorner(a.refTable, c) &&
		coversCorner(table, c) && m.SegmentTime > 0 {
		refSeg := segmentTime(a.refTable, a.refLap.TotalTime, c)
		if refSeg > 0 {
			delta := m.SegmentTime - refSeg
			m.Delta = &delta
		}
	}
	return m
}

// segmentTime interpolates the time spent between corner entry and
// exit. Corners straddling the line need the lap's total time; for an
// unfinalized lap that part reports zero and the caller gets no delta.
func segmentTime(table *reference.Table, totalTime float64, c model.Corner) float64 {
	if c.Entry <= c.Exit {
		return table.TimeAt(c.Exit) - table.TimeAt(c.Entry)
	}
	if totalTime <= 0 {
		return 0
	}
	return (totalTime - table.TimeAt(c.Entry)) + table.TimeAt(c.Exit)
}

func coversCorner(table *reference.Table, c model.Corner) bool {
	if c.Entry <= c.Exit {
		return table.Covers(c.Entry, c.Exit)
	}
	return table.Covers(c.Entry, table.MaxDistance()) && table.Covers(0, c.Exit)
}

// sliceSamples returns the corner's samples in driving order. For a
// corner straddling the line the tail of the lap comes first; the two
// ends belong to consecutive traversals, acceptable under steady
// lapping.
func sliceSamples(samples []model.Sample, c model.Corner) []model.Sample {
	var out []model.Sample
	if c.Entry <= c.Exit {
		for _, s := range samples {
			if s.LapDistance >= c.Entry && s.LapDistance <= c.Exit {
				out = append(out, s)
			}
		}
		return out
	}
	for _, s := range samples {
		if s.LapDistance >= c.Entry {
			out = append(out, s)
		}
	}
	for _, s := range samples {
		if s.LapDistance <= c.Exit {
			out = append(out, s)
		}
	}
	return out
}

// approachSlice widens the corner by the approach window before its
// entry, for the brake-point scan.
func approachSlice(samples []model.Sample, c model.Corner, approach float64) []model.Sample {
	widened := c
	if widened.Entry >= approach {
		widened.Entry -= approach
	} else if widened.Entry <= widened.Exit {
		widened.Entry = 0
	} else {
		widened.Entry -= approach
	}
	return sliceSamples(samples, widened)
}
