package sink

import (
	"apexcoach/log"
	"apexcoach/pkg/engine"
	"apexcoach/pkg/model"
	"apexcoach/pkg/pubsub"
	"apexcoach/pkg/telemetry"
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	ticksTable    = "laps_ticks"
	poolSize      = 2
	tickBufferLen = 512
)

// Sink streams every decoded tick into QuestDB over ILP. Rows buffer
// client-side and flush on lap boundaries, so a slow or absent QuestDB
// costs log noise, never engine latency.
type Sink struct {
	pool  *SenderPool
	buses *engine.Buses

	sessionID string
	track     string
	lastLap   int
}

func New(addr string, buses *engine.Buses) (*Sink, error) {
	pool, err := NewSenderPool(poolSize, addr)
	if err != nil {
		return nil, errors.Wrap(err, "questdb sink")
	}
	return &Sink{pool: pool, buses: buses}, nil
}

// Run consumes ticks until ctx is cancelled. Session identity comes
// off the snapshot topic; ticks arriving before the first snapshot are
// skipped rather than written unattributed.
func (s *Sink) Run(ctx context.Context) error {
	updates := s.buses.Updates.Subscribe(pubsub.TopicSamples, tickBufferLen)
	defer s.buses.Updates.Unsubscribe(pubsub.TopicSamples, updates)
	snaps := s.buses.Snapshots.Subscribe(pubsub.TopicSnapshots, 1)
	defer s.buses.Snapshots.Unsubscribe(pubsub.TopicSnapshots, snaps)

	log.Logger.Info("questdb sink running", zap.String("table", ticksTable))
	for {
		select {
		case <-ctx.Done():
			s.pool.Close()
			return nil
		case snap := <-snaps:
			s.sessionID = snap.SessionID
			s.track = snap.TrackName
		case upd := <-updates:
			if upd.Kind != telemetry.UpdateSample || upd.Sample == nil {
				continue
			}
			s.writeTick(ctx, *upd.Sample)
		}
	}
}

func (s *Sink) writeTick(ctx context.Context, sample model.Sample) {
	if s.sessionID == "" {
		return
	}
	sender := s.pool.Get()
	defer s.pool.Return(sender)

	err := sender.Table(ticksTable).
		Symbol("session", s.sessionID).
		Symbol("track", s.track).
		Int64Column("lap", int64(sample.LapNumber)).
		Int64Column("gear", int64(sample.Gear)).
		Int64Column("rpm", int64(sample.RPM)).
		Int64Column("sector", int64(sample.Sector)).
		Float64Column("session_time", sample.Timestamp).
		Float64Column("lap_distance", sample.LapDistance).
		Float64Column("total_distance", sample.TotalDistance).
		Float64Column("speed", sample.Speed).
		Float64Column("throttle", sample.Throttle).
		Float64Column("brake", sample.Brake).
		Float64Column("steer", sample.Steer).
		Float64Column("pos_x", sample.PosX).
		Float64Column("pos_z", sample.PosZ).
		BoolColumn("off_track", sample.OffTrack).
		BoolColumn("wall_contact", sample.WallContact).
		BoolColumn("penalty", sample.Penalty).
		At(ctx, time.Now())
	if err != nil {
		log.Logger.Warn("questdb write failed", zap.Error(err))
		return
	}

	if sample.LapNumber != s.lastLap {
		s.lastLap = sample.LapNumber
		if err := sender.Flush(ctx); err != nil {
			log.Logger.Warn("questdb flush failed", zap.Error(err))
		}
	}
}
