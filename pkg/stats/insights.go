package stats

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"apexcoach/pkg/model"
)

// Profile rule thresholds, tuned for normalized 0..1 pedal inputs.
const (
	peakBrakeHard = 0.95
	peakBrakeSoft = 0.80
	lateBiasM     = 5.0
	jerkSmooth    = 0.02
	jerkSnap      = 0.06
	steerBusy     = 0.05
	steerCalm     = 0.02

	trendBand = 0.05 // seconds between history halves before a trend counts
)

// Mastery scores each corner 0..100 from how close the recent
// traversals run to the reference. Corners without any measured delta
// are left out rather than scored on guesswork.
func (t *Tracker) Mastery() []model.CornerMastery {
	var out []model.CornerMastery
	for _, turn := range t.turns() {
		deltas := t.absDeltas(turn)
		if len(deltas) == 0 {
			continue
		}
		score := int(math.Round(100 * (1 - math.Min(mean(deltas), 1.0))))
		out = append(out, model.CornerMastery{
			TurnNumber: turn,
			Score:      score,
			Trend:      trend(deltas),
		})
	}
	return out
}

// trend compares the older and newer halves of the delta history.
// Below four entries there is not enough signal to call a direction.
func trend(deltas []float64) model.MasteryTrend {
	if len(deltas) < 4 {
		return model.TrendFlat
	}
	mid := len(deltas) / 2
	older, newer := mean(deltas[:mid]), mean(deltas[mid:])
	switch {
	case newer < older-trendBand:
		return model.TrendUp
	case newer > older+trendBand:
		return model.TrendDown
	}
	return model.TrendFlat
}

func (t *Tracker) absDeltas(turn int) []float64 {
	var out []float64
	for _, rec := range t.corners[turn] {
		if rec.metric.Delta != nil {
			out = append(out, math.Abs(*rec.metric.Delta))
		}
	}
	return out
}

// Profile characterizes driving style over the lap window. Each rule
// fires independently, so a driver can carry several tags at once.
func (t *Tracker) Profile() *model.DriverProfile {
	if len(t.laps) == 0 {
		return nil
	}
	p := &model.DriverProfile{
		PeakBrake:      meanOf(t.laps, func(r lapRecord) float64 { return r.peakBrake }),
		BrakeSlope:     meanOf(t.laps, func(r lapRecord) float64 { return r.brakeSlope }),
		ThrottleJerk:   meanOf(t.laps, func(r lapRecord) float64 { return r.throttleJerk }),
		SteerRate:      meanOf(t.laps, func(r lapRecord) float64 { return r.steerRate }),
		BrakePointBias: t.brakeBias(),
	}

	if p.PeakBrake >= peakBrakeHard {
		p.Tags = append(p.Tags, "aggressive braker")
	} else if p.PeakBrake > 0 && p.PeakBrake <= peakBrakeSoft {
		p.Tags = append(p.Tags, "progressive braker")
	}
	if p.BrakePointBias != nil {
		if *p.BrakePointBias >= lateBiasM {
			p.Tags = append(p.Tags, "late braker")
		} else if *p.BrakePointBias <= -lateBiasM {
			p.Tags = append(p.Tags, "early braker")
		}
	}
	if p.ThrottleJerk >= jerkSnap {
		p.Tags = append(p.Tags, "snap throttle")
	} else if p.ThrottleJerk > 0 && p.ThrottleJerk <= jerkSmooth {
		p.Tags = append(p.Tags, "smooth throttle")
	}
	if p.SteerRate >= steerBusy {
		p.Tags = append(p.Tags, "busy hands")
	} else if p.SteerRate > 0 && p.SteerRate <= steerCalm {
		p.Tags = append(p.Tags, "calm hands")
	}
	return p
}

// brakeBias is the mean brake point shift versus the reference across
// all recorded traversals. Positive means braking later.
func (t *Tracker) brakeBias() *float64 {
	var diffs []float64
	for _, turn := range t.turns() {
		for _, rec := range t.corners[turn] {
			if rec.metric.BrakePoint == nil || rec.ref == nil || rec.ref.BrakePoint == nil {
				continue
			}
			diffs = append(diffs, *rec.metric.BrakePoint-*rec.ref.BrakePoint)
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	m := mean(diffs)
	return &m
}

// Skills condenses the history into five 0..100 scores. A component
// with no data yet sits at a neutral 50.
func (t *Tracker) Skills() *model.SkillScores {
	if len(t.laps) == 0 {
		return nil
	}
	cons := t.Consistency()
	return &model.SkillScores{
		Braking:     scoreFrom(cons.BrakePointSigma, 20, 0),
		Throttle:    scoreVal(meanOf(t.laps, func(r lapRecord) float64 { return r.throttleJerk }), 0.08, 0.01),
		Exit:        scoreFrom(t.exitDeficit(), 50, 0),
		Consistency: scoreFrom(cons.LapSigma, 2, 0),
		Line:        scoreFrom(t.meanAbsDelta(), 1, 0),
	}
}

func scoreFrom(v *float64, worst, best float64) int {
	if v == nil {
		return 50
	}
	return scoreVal(*v, worst, best)
}

// scoreVal maps v linearly onto 0..100 between worst and best, clamped.
func scoreVal(v, worst, best float64) int {
	f := (v - worst) / (best - worst)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return int(math.Round(100 * f))
}

// exitDeficit is the mean exit speed given up versus the reference,
// in km/h. Corners faster than the reference contribute zero.
func (t *Tracker) exitDeficit() *float64 {
	var ds []float64
	for _, turn := range t.turns() {
		for _, rec := range t.corners[turn] {
			if rec.ref == nil {
				continue
			}
			d := rec.ref.ExitSpeed - rec.metric.ExitSpeed
			if d < 0 {
				d = 0
			}
			ds = append(ds, d)
		}
	}
	if len(ds) == 0 {
		return nil
	}
	m := mean(ds)
	return &m
}

func (t *Tracker) meanAbsDelta() *float64 {
	var ds []float64
	for _, turn := range t.turns() {
		ds = append(ds, t.absDeltas(turn)...)
	}
	if len(ds) == 0 {
		return nil
	}
	m := mean(ds)
	return &m
}

// Optimal combines best-ever sectors and best-ever track slices.
func (t *Tracker) Optimal() model.OptimalLap {
	var out model.OptimalLap
	if t.bestSectors[0] != nil && t.bestSectors[1] != nil && t.bestSectors[2] != nil {
		sum := *t.bestSectors[0] + *t.bestSectors[1] + *t.bestSectors[2]
		out.SectorBest = &sum
	}
	if len(t.bestBins) > 0 {
		sum := lo.Sum(t.bestBins)
		out.BinBest = &sum
	}
	return out
}

// TimeLoss ranks the corners where the driver gives up the most time,
// each with the dominant cause. Only corners losing time make the list.
func (t *Tracker) TimeLoss() []model.TimeLossEntry {
	var out []model.TimeLossEntry
	for _, turn := range t.turns() {
		var ds []float64
		for _, rec := range t.corners[turn] {
			if rec.metric.Delta != nil {
				ds = append(ds, *rec.metric.Delta)
			}
		}
		if len(ds) == 0 {
			continue
		}
		m := mean(ds)
		if m <= 0 {
			continue
		}
		out = append(out, model.TimeLossEntry{TurnNumber: turn, MeanDelta: m, Reason: t.lossReason(turn)})
	}
	// stable sort keeps the lowest turn first on equal losses
	sort.SliceStable(out, func(i, j int) bool { return out[i].MeanDelta > out[j].MeanDelta })
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// lossReason picks the first cause whose mean gap against the reference
// clears its threshold, checked in order of where time is usually won.
func (t *Tracker) lossReason(turn int) string {
	var brakeGap, entryGap, apexGap, exitGap, throttleGap []float64
	for _, rec := range t.corners[turn] {
		if rec.ref == nil {
			continue
		}
		if rec.metric.BrakePoint != nil && rec.ref.BrakePoint != nil {
			brakeGap = append(brakeGap, *rec.metric.BrakePoint-*rec.ref.BrakePoint)
		}
		entryGap = append(entryGap, rec.metric.EntrySpeed-rec.ref.EntrySpeed)
		apexGap = append(apexGap, rec.metric.ApexSpeed-rec.ref.ApexSpeed)
		exitGap = append(exitGap, rec.metric.ExitSpeed-rec.ref.ExitSpeed)
		if rec.metric.ThrottlePoint != nil && rec.ref.ThrottlePoint != nil {
			throttleGap = append(throttleGap, *rec.metric.ThrottlePoint-*rec.ref.ThrottlePoint)
		}
	}
	switch {
	case len(brakeGap) > 0 && mean(brakeGap) > t.th.BrakeDiff:
		return "brake earlier"
	case len(entryGap) > 0 && mean(entryGap) > t.th.SpeedDiff:
		return "entry speed"
	case len(apexGap) > 0 && mean(apexGap) < -t.th.SpeedDiff:
		return "apex too slow"
	case len(exitGap) > 0 && mean(exitGap) < -t.th.SpeedDiff:
		return "exit speed"
	case len(throttleGap) > 0 && mean(throttleGap) > t.th.ThrottleDiff:
		return "throttle late"
	}
	return "apex too slow"
}

func meanOf(recs []lapRecord, get func(lapRecord) float64) float64 {
	if len(recs) == 0 {
		return 0
	}
	return lo.SumBy(recs, get) / float64(len(recs))
}
