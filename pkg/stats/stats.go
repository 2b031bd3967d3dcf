package stats

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"apexcoach/pkg/model"
)

// Thresholds are the minimum differences that count as a real gap when
// a lap is compared against the reference.
type Thresholds struct {
	BrakeDiff    float64 // meters
	SpeedDiff    float64 // km/h
	ThrottleDiff float64 // meters
}

type lapRecord struct {
	summary      model.LapSummary
	peakBrake    float64
	brakeSlope   float64
	throttleJerk float64
	steerRate    float64
}

// cornerRecord pairs one traversal with the reference metric it was
// measured against at the time.
type cornerRecord struct {
	metric model.CornerMetric
	ref    *model.CornerMetric
}

// Tracker accumulates rolling lap and corner history and derives the
// session insights from it. Not safe for concurrent use; the engine
// owns it from a single goroutine.
type Tracker struct {
	lapWindow    int
	cornerWindow int
	th           Thresholds

	laps    []lapRecord
	corners map[int][]cornerRecord

	bestSectors [3]*float64
	bestBins    []float64
}

func New(lapWindow, cornerWindow int, th Thresholds) *Tracker {
	if lapWindow <= 0 {
		lapWindow = 10
	}
	if cornerWindow <= 0 {
		cornerWindow = 12
	}
	return &Tracker{
		lapWindow:    lapWindow,
		cornerWindow: cornerWindow,
		th:           th,
		corners:      make(map[int][]cornerRecord),
	}
}

// AddLap folds a completed valid lap into the rolling window. Invalid
// laps never contribute, so one off-track moment cannot skew the stats.
func (t *Tracker) AddLap(lap *model.Lap) {
	if lap == nil || !lap.Valid {
		return
	}
	rec := lapRecord{summary: lap.Summary()}
	rec.peakBrake, rec.brakeSlope = brakeFeatures(lap.Samples)
	rec.throttleJerk = meanAbsStep(lap.Samples, func(s model.Sample) float64 { return s.Throttle })
	rec.steerRate = meanAbsStep(lap.Samples, func(s model.Sample) float64 { return s.Steer })

	t.laps = append(t.laps, rec)
	if len(t.laps) > t.lapWindow {
		t.laps = t.laps[1:]
	}

	for i, st := range lap.SectorTimes {
		if st <= 0 {
			continue
		}
		if t.bestSectors[i] == nil || st < *t.bestSectors[i] {
			v := st
			t.bestSectors[i] = &v
		}
	}
}

// AddCorners folds one lap's corner metrics into the per-corner history.
// ref resolves the reference metric for a turn, if any.
func (t *Tracker) AddCorners(metrics []model.CornerMetric, ref func(turn int) (model.CornerMetric, bool)) {
	for _, m := range metrics {
		rec := cornerRecord{metric: m}
		if ref != nil {
			if r, ok := ref(m.TurnNumber); ok {
				rec.ref = &r
			}
		}
		hist := append(t.corners[m.TurnNumber], rec)
		if len(hist) > t.cornerWindow {
			hist = hist[1:]
		}
		t.corners[m.TurnNumber] = hist
	}
}

// AddLapBins keeps the best time ever seen for each track slice.
func (t *Tracker) AddLapBins(times []float64) {
	if len(times) == 0 {
		return
	}
	if len(t.bestBins) != len(times) {
		t.bestBins = append([]float64(nil), times...)
		return
	}
	for i, v := range times {
		if v < t.bestBins[i] {
			t.bestBins[i] = v
		}
	}
}

// Laps reports how many laps sit in the rolling window.
func (t *Tracker) Laps() int { return len(t.laps) }

// BestSector reports the best valid time seen for one sector, 0-based.
func (t *Tracker) BestSector(i int) *float64 {
	if i < 0 || i > 2 {
		return nil
	}
	return t.bestSectors[i]
}

func (t *Tracker) Reset() {
	t.laps = nil
	t.corners = make(map[int][]cornerRecord)
	t.bestSectors = [3]*float64{}
	t.bestBins = nil
}

// Consistency reports how repeatable the driver is lap over lap.
func (t *Tracker) Consistency() model.ConsistencyStats {
	var out model.ConsistencyStats

	out.LapSigma = sigma(lo.Map(t.laps, func(r lapRecord, _ int) float64 { return r.summary.TotalTime }))
	for i := 0; i < 3; i++ {
		times := make([]float64, 0, len(t.laps))
		for _, r := range t.laps {
			if st := r.summary.SectorTimes[i]; st > 0 {
				times = append(times, st)
			}
		}
		out.SectorSigma[i] = sigma(times)
	}

	var bpSigmas []float64
	for _, turn := range t.turns() {
		segs := make([]float64, 0, len(t.corners[turn]))
		bps := make([]float64, 0, len(t.corners[turn]))
		for _, rec := range t.corners[turn] {
			if rec.metric.SegmentTime > 0 {
				segs = append(segs, rec.metric.SegmentTime)
			}
			if rec.metric.BrakePoint != nil {
				bps = append(bps, *rec.metric.BrakePoint)
			}
		}
		out.CornerSigma = append(out.CornerSigma, model.CornerSigma{TurnNumber: turn, Sigma: sigma(segs)})
		if s := sigma(bps); s != nil {
			bpSigmas = append(bpSigmas, *s)
		}
	}
	if len(bpSigmas) > 0 {
		m := mean(bpSigmas)
		out.BrakePointSigma = &m
	}

	// strict comparisons, so ties resolve to the lowest turn number
	var bestVal, worstVal float64
	for _, cs := range out.CornerSigma {
		if cs.Sigma == nil {
			continue
		}
		turn := cs.TurnNumber
		if out.MostConsistent == nil || *cs.Sigma < bestVal {
			v := turn
			out.MostConsistent = &v
			bestVal = *cs.Sigma
		}
		if out.LeastConsistent == nil || *cs.Sigma > worstVal {
			v := turn
			out.LeastConsistent = &v
			worstVal = *cs.Sigma
		}
	}
	return out
}

func (t *Tracker) turns() []int {
	turns := make([]int, 0, len(t.corners))
	for turn := range t.corners {
		turns = append(turns, turn)
	}
	sort.Ints(turns)
	return turns
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sigma is the sample standard deviation, nil below two data points.
func sigma(xs []float64) *float64 {
	if len(xs) < 2 {
		return nil
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	s := math.Sqrt(ss / float64(len(xs)-1))
	return &s
}

// brakeFeatures returns the peak pedal input and the mean application
// rate over the rising portions of the brake trace.
func brakeFeatures(samples []model.Sample) (peak, slope float64) {
	var riseSum, riseDur float64
	for i, s := range samples {
		if s.Brake > peak {
			peak = s.Brake
		}
		if i == 0 {
			continue
		}
		d := s.Brake - samples[i-1].Brake
		dt := s.Timestamp - samples[i-1].Timestamp
		if d > 0 && dt > 0 {
			riseSum += d
			riseDur += dt
		}
	}
	if riseDur > 0 {
		slope = riseSum / riseDur
	}
	return peak, slope
}

func meanAbsStep(samples []model.Sample, get func(model.Sample) float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		sum += math.Abs(get(samples[i]) - get(samples[i-1]))
	}
	return sum / float64(len(samples)-1)
}
