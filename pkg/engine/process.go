package engine

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"apexcoach/log"
	"apexcoach/pkg/bins"
	"apexcoach/pkg/corners"
	"apexcoach/pkg/helper"
	"apexcoach/pkg/model"
	"apexcoach/pkg/pubsub"
	"apexcoach/pkg/segmenter"
	"apexcoach/pkg/telemetry"
)

func (e *Engine) handleUpdate(upd telemetry.Update) {
	switch upd.Kind {
	case telemetry.UpdateSample:
		if upd.Sample != nil {
			e.handleSample(*upd.Sample)
		}
	case telemetry.UpdateSession:
		if upd.Session != nil {
			e.handleSessionInfo(*upd.Session)
		}
	case telemetry.UpdateEvent:
		e.handleEvent(upd.Event)
	}
}

func (e *Engine) handleSessionInfo(info telemetry.SessionInfo) {
	changed := e.trackName != "" && e.trackName != info.TrackName
	e.trackName = info.TrackName
	if e.trackLen == 0 {
		// until a reference fixes the canonical length, trust the sim
		e.trackLen = info.TrackLength
	}
	if changed {
		log.Logger.Info("circuit changed", zap.String("track", info.TrackName))
		e.startSession()
		e.trackLen = info.TrackLength
	}
	e.seedFromStore()
	e.publishSnapshot()
}

// seedFromStore installs a persisted PB for the current track, at most
// once per track per session, and only before any reference exists.
func (e *Engine) seedFromStore() {
	if e.refs.HasReference() || e.opts.SeedLookup == nil || e.trackName == "" {
		return
	}
	if e.seedTried == e.trackName {
		return
	}
	e.seedTried = e.trackName
	lap := e.opts.SeedLookup(e.trackName)
	if lap == nil {
		return
	}
	e.refs.Seed(lap)
	if e.refs.HasReference() {
		e.adoptReference()
		log.Logger.Info("reference seeded from store",
			zap.String("track", e.trackName),
			zap.Float64("time", lap.TotalTime))
	}
}

func (e *Engine) handleEvent(code string) {
	switch code {
	case telemetry.EventSessionStarted:
		e.startSession()
		return
	case telemetry.EventSessionEnded:
		e.stopSession("session ended")
		return
	case telemetry.EventFlashback:
		e.seg.Rewind("flashback")
		e.statusCue(model.CueInvalid, model.PriorityMedium, "Flashback, this lap will not count")
	case telemetry.EventPenalty:
		e.statusCue(model.CueInvalid, model.PriorityMedium, "Penalty applied")
	}
	e.publishSnapshot()
}

func (e *Engine) handleSample(s model.Sample) {
	e.active = true
	e.seenSamples++

	before := e.seg.Discarded()
	ev := e.seg.Ingest(s)
	if e.seg.Discarded() > before {
		return
	}

	if s.TotalDistance > e.travel {
		e.travel = s.TotalDistance
	} else if s.TotalDistance == 0 && s.LapDistance > e.prevDist {
		// replayed streams may lack odometer data
		e.travel += s.LapDistance - e.prevDist
	}
	e.now = s.Timestamp

	if s.WallContact {
		e.statusCue(model.CueCrash, model.PriorityCritical, "Contact, check the car")
	}

	switch ev.Kind {
	case segmenter.EventLapCompleted:
		e.finalizeLap(ev.Lap)
	case segmenter.EventSectorCrossed:
		e.sectorCue(ev.Sector, ev.SectorTime)
		e.midLapCorners(s)
	default:
		e.midLapCorners(s)
	}
	e.prevDist = s.LapDistance

	e.updateLive(s)
	if e.refs.HasReference() {
		e.curBins = bins.Compare(e.seg.Current(), e.refs.Table(), e.opts.BinCount)
	}
	if cue, ok := e.voice.Next(e.travel, e.now); ok {
		e.emitCue(cue)
	}
	e.publishSnapshot()
}

func (e *Engine) updateLive(s model.Sample) {
	var lapTime float64
	if cur := e.seg.Current(); cur != nil {
		lapTime = s.Timestamp - cur.StartedAt
	}
	e.live = model.LiveTelemetry{
		Speed:          s.Speed,
		Gear:           s.Gear,
		RPM:            s.RPM,
		Throttle:       s.Throttle,
		Brake:          s.Brake,
		Steer:          s.Steer,
		LapNumber:      s.LapNumber,
		LapDistance:    s.LapDistance,
		CurrentLapTime: lapTime,
		Sector:         s.Sector,
	}
	if e.refs.HasReference() {
		if t := e.refs.Table(); t.Covers(0, s.LapDistance) {
			d := lapTime - t.TimeAt(s.LapDistance)
			e.live.DeltaVsPB = &d
		}
	}
}

// midLapCorners fires the corner callout as soon as the car crosses a
// corner's exit. Corners straddling the line are measured at finalize
// instead, so their callouts never fire mid-lap.
func (e *Engine) midLapCorners(s model.Sample) {
	if e.an == nil || !e.refs.HasReference() {
		return
	}
	cur := e.seg.Current()
	if cur == nil || len(cur.Samples) == 0 {
		return
	}
	for _, c := range e.an.Corners() {
		if c.Entry > c.Exit {
			continue
		}
		if e.prevDist < c.Exit && s.LapDistance >= c.Exit {
			m := e.an.AnalyzeOne(cur, c)
			ref, ok := e.an.Reference(c.TurnNumber)
			if !ok {
				continue
			}
			e.voice.CornerCue(e.travel, e.now, m, ref)
		}
	}
}

// sectorCue announces the color of a completed sector: purple for a
// session best, green for beating the reference, yellow otherwise.
func (e *Engine) sectorCue(sector int, t float64) {
	if t <= 0 {
		return
	}
	idx := sector - 1
	color := "yellow"
	if best := e.tracker.BestSector(idx); best == nil || t < *best {
		color = "purple"
	} else if ref := e.refs.Lap(); ref != nil && ref.SectorTimes[idx] > 0 && t < ref.SectorTimes[idx] {
		color = "green"
	}
	e.statusCue(model.CueSector, model.PriorityMedium,
		fmt.Sprintf("Sector %d %s, %s", sector, color, helper.ToSectorTime(t)))
}

func (e *Engine) finalizeLap(lap *model.Lap) {
	// sector 3 has no crossing event of its own
	if lap.Valid && lap.SectorTimes[2] > 0 {
		e.sectorCue(3, lap.SectorTimes[2])
	}

	improved := lap.Valid && e.refs.Consider(lap)
	if improved {
		e.adoptReference()
		for i := range e.laps {
			e.laps[i].IsPB = false
		}
		e.statusCue(model.CuePersonalBest, model.PriorityHigh,
			"Personal best, "+helper.SecondsToMinutes(lap.TotalTime))
	}
	if !lap.Valid {
		e.statusCue(invalidCategory(lap.InvalidReason), model.PriorityMedium,
			"Lap will not count, "+lap.InvalidReason)
	}

	sum := lap.Summary()
	e.laps = append(e.laps, sum)
	e.buses.Laps.Publish(pubsub.TopicLaps, sum)
	if improved {
		f := sum
		e.fastest = &f
		// finalized laps are immutable, safe to share with the store
		e.buses.PB.Publish(pubsub.TopicPB, lap)
	}

	if lap.Valid && e.refs.HasReference() {
		if e.an != nil {
			ms := e.an.Analyze(lap)
			e.metrics = ms
			e.tracker.AddCorners(ms, e.an.Reference)
		}
		if ts, ok := bins.LapTimes(lap, e.refs.Table().MaxDistance(), e.opts.BinCount); ok {
			e.tracker.AddLapBins(ts)
		}
		e.lastBins = bins.Compare(lap, e.refs.Table(), e.opts.BinCount)
	}
	if lap.Valid {
		e.tracker.AddLap(lap)
	}

	e.analytics = analytics{
		consistency: e.tracker.Consistency(),
		mastery:     e.tracker.Mastery(),
		profile:     e.tracker.Profile(),
		skills:      e.tracker.Skills(),
		optimal:     e.tracker.Optimal(),
		timeLoss:    e.tracker.TimeLoss(),
	}
	e.voice.LapReset()
	e.curBins = nil

	log.Logger.Info("lap finalized",
		zap.Int("lap", lap.LapNumber),
		zap.Bool("valid", lap.Valid),
		zap.Float64("time", lap.TotalTime),
		zap.Bool("personalBest", improved))
}

func (e *Engine) startSession() {
	e.closeCurrentLap("session restart")

	e.sessionID = uuid.New().String()
	e.active = true
	e.seg.Reset()
	e.refs.Reset()
	e.an = nil
	if len(e.opts.Corners) > 0 {
		e.an = corners.NewAnalyzer(e.opts.Corners)
	}
	e.tracker.Reset()
	e.voice.Reset()
	e.live = model.LiveTelemetry{}
	e.laps = nil
	e.fastest = nil
	e.refBins = nil
	e.curBins = nil
	e.lastBins = nil
	e.metrics = nil
	e.outline = nil
	e.recent = nil
	e.analytics = analytics{}
	e.travel = 0
	e.prevDist = 0
	e.trackLen = 0
	e.seedTried = ""

	log.Logger.Info("session started", zap.String("session", e.sessionID), zap.String("track", e.trackName))
	e.publishSnapshot()
}

func (e *Engine) stopSession(reason string) {
	e.closeCurrentLap(reason)
	if e.active {
		log.Logger.Info("session stopped",
			zap.String("session", e.sessionID),
			zap.Int("laps", len(e.laps)))
	}
	e.active = false
	e.publishSnapshot()
}

// closeCurrentLap flushes the in-progress lap as invalid and records
// it like any other finalized lap, minus the analytics it cannot have.
func (e *Engine) closeCurrentLap(reason string) {
	lap := e.seg.Flush(reason)
	if lap == nil {
		return
	}
	sum := lap.Summary()
	e.laps = append(e.laps, sum)
	e.buses.Laps.Publish(pubsub.TopicLaps, sum)
}

func (e *Engine) statusCue(cat model.CueCategory, p model.CuePriority, text string) {
	e.voice.Status(e.travel, e.now, cat, p, text)
}

func (e *Engine) emitCue(cue model.Cue) {
	e.buses.Cues.Publish(pubsub.TopicCues, cue)
	e.recent = append(e.recent, cue)
	if len(e.recent) > recentCueLen {
		e.recent = e.recent[1:]
	}
}

func invalidCategory(reason string) model.CueCategory {
	if reason == "wall contact" {
		return model.CueDamage
	}
	return model.CueInvalid
}
