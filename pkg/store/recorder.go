package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"apexcoach/log"
	"apexcoach/pkg/engine"
	"apexcoach/pkg/model"
	"apexcoach/pkg/pubsub"
	"apexcoach/pkg/telemetry"
)

const (
	lapBufferLen  = 64
	tickBufferLen = 512
)

// Recorder is the persistence consumer: it follows the engine's buses
// and writes the session index, the per-sample CSV tick log, the
// per-track reference and the periodic reports. It runs on its own
// goroutine; when it falls behind, the bounded subscriber buffers drop
// ticks rather than stall the engine.
type Recorder struct {
	store    *Manager
	dir      string
	interval int // laps between periodic reports, 0 disables
	buses    *engine.Buses

	cur      SessionRecord
	last     *model.Snapshot
	ticks    *TickWriter
	sinceRep int
}

func NewRecorder(store *Manager, dir string, interval int, buses *engine.Buses) *Recorder {
	return &Recorder{
		store:    store,
		dir:      dir,
		interval: interval,
		buses:    buses,
	}
}

// Run consumes until the context is canceled, then closes out the
// running session with a final report.
func (r *Recorder) Run(ctx context.Context) error {
	snaps := r.buses.Snapshots.Subscribe(pubsub.TopicSnapshots, 1)
	defer r.buses.Snapshots.Unsubscribe(pubsub.TopicSnapshots, snaps)
	laps := r.buses.Laps.Subscribe(pubsub.TopicLaps, lapBufferLen)
	defer r.buses.Laps.Unsubscribe(pubsub.TopicLaps, laps)
	pbs := r.buses.PB.Subscribe(pubsub.TopicPB, 4)
	defer r.buses.PB.Unsubscribe(pubsub.TopicPB, pbs)
	updates := r.buses.Updates.Subscribe(pubsub.TopicSamples, tickBufferLen)
	defer r.buses.Updates.Unsubscribe(pubsub.TopicSamples, updates)

	for {
		select {
		case <-ctx.Done():
			r.finishSession()
			return nil
		case snap := <-snaps:
			// lap rows queued before this snapshot belong to the session
			// that produced them, flush those first
			for drained := false; !drained; {
				select {
				case sum := <-laps:
					r.handleLap(sum)
				default:
					drained = true
				}
			}
			r.handleSnapshot(snap)
		case sum := <-laps:
			r.handleLap(sum)
		case lap := <-pbs:
			if err := r.store.SaveReference(r.cur.Track, lap); err != nil {
				log.Logger.Warn("saving reference failed", zap.Error(err))
			}
		case upd := <-updates:
			r.handleUpdate(upd)
		}
	}
}

func (r *Recorder) handleSnapshot(snap *model.Snapshot) {
	if snap == nil {
		return
	}
	if snap.SessionID != r.cur.ID {
		r.finishSession()
		r.cur = SessionRecord{
			ID:        snap.SessionID,
			Track:     snap.TrackName,
			StartedAt: time.Now(),
		}
		r.sinceRep = 0
		if err := r.store.UpsertSession(r.cur); err != nil {
			log.Logger.Warn("saving session failed", zap.Error(err))
		}
		ticks, err := NewTickWriter(r.dir, snap.SessionID)
		if err != nil {
			log.Logger.Warn("tick log unavailable", zap.Error(err))
		} else {
			log.Logger.Info("recording session",
				zap.String("session", snap.SessionID),
				zap.String("ticks", ticks.Path()))
		}
		r.ticks = ticks
	} else if snap.TrackName != "" && snap.TrackName != r.cur.Track {
		r.cur.Track = snap.TrackName
		if err := r.store.UpsertSession(r.cur); err != nil {
			log.Logger.Warn("saving session failed", zap.Error(err))
		}
	}
	r.last = snap
}

func (r *Recorder) handleLap(sum model.LapSummary) {
	if r.cur.ID == "" {
		return
	}
	r.cur.Laps++
	if sum.Valid {
		r.cur.ValidLaps++
		if r.cur.BestLap == nil || sum.TotalTime < *r.cur.BestLap {
			v := sum.TotalTime
			r.cur.BestLap = &v
		}
	}
	if err := r.store.SaveLap(r.cur.ID, sum); err != nil {
		log.Logger.Warn("saving lap failed", zap.Error(err))
	}
	if err := r.store.UpsertSession(r.cur); err != nil {
		log.Logger.Warn("saving session failed", zap.Error(err))
	}

	r.sinceRep++
	if r.interval > 0 && r.sinceRep >= r.interval {
		r.emitReport()
		r.sinceRep = 0
	}
}

func (r *Recorder) handleUpdate(upd telemetry.Update) {
	if upd.Kind != telemetry.UpdateSample || upd.Sample == nil || r.ticks == nil {
		return
	}
	if err := r.ticks.Append(*upd.Sample); err != nil {
		log.Logger.Debug("tick write failed", zap.Error(err))
	}
}

// emitReport renders the report from the latest snapshot, publishes it
// on the reports topic and stores it with the session.
func (r *Recorder) emitReport() {
	if r.last == nil || r.cur.ID == "" {
		return
	}
	text := RenderReport(r.last)
	r.buses.Reports.Publish(pubsub.TopicReports, text)
	if err := r.store.SaveReport(r.cur.ID, text); err != nil {
		log.Logger.Warn("saving report failed", zap.Error(err))
	}
	if _, err := WriteJSONReport(r.dir, r.last); err != nil {
		log.Logger.Warn("writing json report failed", zap.Error(err))
	}
}

func (r *Recorder) finishSession() {
	if r.cur.ID == "" {
		return
	}
	r.emitReport()
	r.cur.EndedAt = time.Now()
	if err := r.store.UpsertSession(r.cur); err != nil {
		log.Logger.Warn("closing session failed", zap.Error(err))
	}
	if r.ticks != nil {
		if err := r.ticks.Close(); err != nil {
			log.Logger.Warn("closing tick log failed", zap.Error(err))
		}
		r.ticks = nil
	}
	r.cur = SessionRecord{}
	r.last = nil
}
