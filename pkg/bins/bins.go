package bins

import (
	"apexcoach/pkg/model"
	"apexcoach/pkg/reference"
)

// DefaultCount splits a lap into slices of roughly 10-20m on typical circuits.
const DefaultCount = 320

// Width returns the distance covered by each bin for a given track length.
func Width(trackLength float64, count int) float64 {
	if count <= 0 {
		count = DefaultCount
	}
	return trackLength / float64(count)
}

// Times returns the elapsed reference time per bin. The reference table
// fixes the canonical track length, so every bin is covered.
func Times(ref *reference.Table, count int) []float64 {
	if ref == nil || ref.MaxDistance() <= 0 {
		return nil
	}
	if count <= 0 {
		count = DefaultCount
	}
	width := ref.MaxDistance() / float64(count)
	out := make([]float64, count)
	for i := range out {
		start := float64(i) * width
		out[i] = ref.TimeAt(start+width) - ref.TimeAt(start)
	}
	return out
}

// LapTimes returns the lap's own elapsed time per bin, or false when
// the lap does not cover the full canonical length.
func LapTimes(lap *model.Lap, trackLength float64, count int) ([]float64, bool) {
	if lap == nil || len(lap.Samples) < 2 || trackLength <= 0 {
		return nil, false
	}
	if count <= 0 {
		count = DefaultCount
	}
	cand := reference.BuildTable(lap)
	if !cand.Covers(0, trackLength) {
		return nil, false
	}
	width := trackLength / float64(count)
	out := make([]float64, count)
	for i := range out {
		start := float64(i) * width
		out[i] = cand.TimeAt(start+width) - cand.TimeAt(start)
	}
	return out, true
}

// Compare returns the per-bin time delta of a lap against the reference.
// Positive means time lost. Bins the lap has not fully covered stay nil.
func Compare(lap *model.Lap, ref *reference.Table, count int) []*float64 {
	if ref == nil || ref.MaxDistance() <= 0 {
		return nil
	}
	if count <= 0 {
		count = DefaultCount
	}
	out := make([]*float64, count)
	if lap == nil || len(lap.Samples) < 2 {
		return out
	}
	cand := reference.BuildTable(lap)
	width := ref.MaxDistance() / float64(count)
	for i := range out {
		start := float64(i) * width
		end := start + width
		if !cand.Covers(start, end) {
			continue
		}
		d := (cand.TimeAt(end) - cand.TimeAt(start)) - (ref.TimeAt(end) - ref.TimeAt(start))
		out[i] = &d
	}
	return out
}
