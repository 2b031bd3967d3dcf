package corners

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"

	"apexcoach/pkg/model"
)

// Detection thresholds, tuned on reference laps. Braking zones come
// from the smoothed brake trace with hysteresis; steering corners from
// sustained steering input. Nearby zones merge into one numbered turn.
const (
	brakeSmoothWindow = 5
	steerSmoothWindow = 7
	brakeEnter        = 0.2
	brakeExit         = 0.1
	steerThreshold    = 0.12
	minSteerSamples   = 6
	minCornerSpan     = 20.0
	exitBuffer        = 45.0
	mergeApexGap      = 80.0
)

// Detect derives the session's corner set from a reference lap. Run
// once when the first reference is established; the result is immutable
// for the session.
func Detect(lap *model.Lap) []model.Corner {
	if lap == nil || len(lap.Samples) < steerSmoothWindow {
		return nil
	}
	samples := lap.Samples

	brake := make([]float64, len(samples))
	steer := make([]float64, len(samples))
	for i, s := range samples {
		brake[i] = s.Brake
		steer[i] = abs(s.Steer)
	}
	brakeSmooth := rollingMean(brake, brakeSmoothWindow)
	steerSmooth := rollingMean(steer, steerSmoothWindow)

	type zone struct{ start, end float64 }
	var zones []zone

	// braking zones with enter/exit hysteresis
	in := false
	start := 0.0
	for i, s := range samples {
		if !in && brakeSmooth[i] > brakeEnter {
			in = true
			start = s.LapDistance
		}
		if in && (brakeSmooth[i] < brakeExit || i == len(samples)-1) {
			in = false
			zones = append(zones, zone{start, s.LapDistance + exitBuffer})
		}
	}

	// sustained steering runs
	in = false
	count := 0
	for i, s := range samples {
		if !in && steerSmooth[i] > steerThreshold {
			in = true
			start = s.LapDistance
			count = 0
		}
		if in {
			count++
			if steerSmooth[i] <= steerThreshold || i == len(samples)-1 {
				in = false
				if count >= minSteerSamples && s.LapDistance-start >= minCornerSpan {
					zones = append(zones, zone{start, s.LapDistance + exitBuffer})
				}
			}
		}
	}

	if len(zones) == 0 {
		return nil
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].start < zones[j].start })

	// merge overlapping and near zones into single turns
	merged := []zone{zones[0]}
	for _, z := range zones[1:] {
		last := &merged[len(merged)-1]
		if z.start <= last.end || z.start-last.end < mergeApexGap {
			if z.end > last.end {
				last.end = z.end
			}
			continue
		}
		merged = append(merged, z)
	}

	out := make([]model.Corner, 0, len(merged))
	for i, z := range merged {
		c := model.Corner{
			TurnNumber: i + 1,
			Entry:      z.start,
			Exit:       z.end,
		}
		c.Apex, c.Direction = apexOf(samples, z.start, z.end)
		out = append(out, c)
	}
	return out
}

// LoadFile reads a static corner set from a JSON file, used instead of
// geometry detection when configured.
func LoadFile(path string) ([]model.Corner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading corners file %s", path)
	}
	var out []model.Corner
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "parsing corners file %s", path)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	for i := range out {
		out[i].TurnNumber = i + 1
	}
	return out, nil
}

// apexOf finds the minimum-speed point inside a zone and the dominant
// steering direction through it.
func apexOf(samples []model.Sample, start, end float64) (float64, string) {
	apex := start
	minSpeed := -1.0
	steerSum := 0.0
	n := 0
	for _, s := range samples {
		if s.LapDistance < start || s.LapDistance > end {
			continue
		}
		if minSpeed < 0 || s.Speed < minSpeed {
			minSpeed = s.Speed
			apex = s.LapDistance
		}
		steerSum += s.Steer
		n++
	}
	dir := ""
	if n > 0 {
		mean := steerSum / float64(n)
		if mean > 0.02 {
			dir = "R"
		} else if mean < -0.02 {
			dir = "L"
		}
	}
	return apex, dir
}

// rollingMean is a trailing mean over the previous w values, partial
// windows included.
func rollingMean(vals []float64, w int) []float64 {
	out := make([]float64, len(vals))
	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= w {
			sum -= vals[i-w]
			out[i] = sum / float64(w)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
