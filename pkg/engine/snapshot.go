package engine

import (
	"apexcoach/pkg/bins"
	"apexcoach/pkg/model"
	"apexcoach/pkg/pubsub"
)

func (e *Engine) publishSnapshot() {
	e.buses.Snapshots.Publish(pubsub.TopicSnapshots, e.snapshot())
}

// snapshot assembles one coherent view of the whole engine state.
// Slices are copied so later mutation never tears a published value.
func (e *Engine) snapshot() *model.Snapshot {
	snap := &model.Snapshot{
		SessionID: e.sessionID,
		TrackName: e.trackName,
		Active:    e.active,
		Live:      e.live,
		Laps:      append([]model.LapSummary(nil), e.laps...),
		BinMeta: model.BinMeta{
			Count:       e.opts.BinCount,
			Width:       bins.Width(e.trackLen, e.opts.BinCount),
			TrackLength: e.trackLen,
		},
		ReferenceBins: append([]float64(nil), e.refBins...),
		CurrentBins:   append([]*float64(nil), e.curBins...),
		LastLapBins:   append([]*float64(nil), e.lastBins...),
		CornerMetrics: append([]model.CornerMetric(nil), e.metrics...),
		TimeLoss:      e.analytics.timeLoss,
		Mastery:       e.analytics.mastery,
		Consistency:   e.analytics.consistency,
		Profile:       e.analytics.profile,
		Skills:        e.analytics.skills,
		Optimal:       e.analytics.optimal,
		TrackOutline:  e.outline,
		RecentCues:    append([]model.Cue(nil), e.recent...),
		Counters: model.Counters{
			SamplesSeen:      e.seenSamples,
			SamplesDiscarded: e.seg.Discarded(),
			SamplesDropped:   e.buses.Updates.Dropped(),
			CuesDropped:      e.voice.Queue().Dropped(),
		},
	}
	if e.fastest != nil {
		f := *e.fastest
		snap.FastestLap = &f
	}
	if e.an != nil {
		snap.Corners = e.an.Corners()
	}
	return snap
}

// outlineFrom downsamples the reference lap's world positions into a
// drawable track outline, one point every few car lengths.
func outlineFrom(lap *model.Lap) []model.TrackPoint {
	const step = 20.0
	var out []model.TrackPoint
	next := 0.0
	for _, s := range lap.Samples {
		if s.LapDistance < next {
			continue
		}
		if s.PosX == 0 && s.PosZ == 0 {
			continue
		}
		out = append(out, model.TrackPoint{X: s.PosX, Z: s.PosZ, D: s.LapDistance})
		next = s.LapDistance + step
	}
	return out
}
