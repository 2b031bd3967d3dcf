package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"apexcoach/log"
	"apexcoach/pkg/bins"
	"apexcoach/pkg/coach"
	"apexcoach/pkg/corners"
	"apexcoach/pkg/model"
	"apexcoach/pkg/pubsub"
	"apexcoach/pkg/reference"
	"apexcoach/pkg/segmenter"
	"apexcoach/pkg/stats"
	"apexcoach/pkg/telemetry"
)

const (
	// sample backlog before the oldest updates are shed
	sampleQueueLen = 256

	// cues kept on the snapshot for the dashboard ticker
	recentCueLen = 20
)

// Buses are the fan-out surfaces between the pipeline stages. The
// telemetry listener publishes on Updates; everything downstream of
// the engine subscribes to the rest.
type Buses struct {
	Updates   *pubsub.PubSub[telemetry.Update]
	Snapshots *pubsub.PubSub[*model.Snapshot]
	Cues      *pubsub.PubSub[model.Cue]
	Laps      *pubsub.PubSub[model.LapSummary]
	PB        *pubsub.PubSub[*model.Lap]
	Reports   *pubsub.PubSub[string]
}

func NewBuses() *Buses {
	return &Buses{
		Updates:   pubsub.NewPubSub[telemetry.Update](),
		Snapshots: pubsub.NewPubSub[*model.Snapshot](),
		Cues:      pubsub.NewPubSub[model.Cue](),
		Laps:      pubsub.NewPubSub[model.LapSummary](),
		PB:        pubsub.NewPubSub[*model.Lap](),
		Reports:   pubsub.NewPubSub[string](),
	}
}

// Options tune the analytics pipeline.
type Options struct {
	BinCount          int
	LapWindow         int
	CornerHistory     int
	MaxCornerCallouts int
	GapTimeout        float64
	Thresholds        stats.Thresholds
	Corners           []model.Corner // fixed corner set, skips detection
	SeedLap           *model.Lap     // stored reference from an earlier session

	// SeedLookup resolves a persisted reference for a track once its
	// name is known. Called from the engine goroutine, so it may hit
	// the store; nil result means no stored PB.
	SeedLookup func(track string) *model.Lap
}

type command int

const (
	cmdStartSession command = iota
	cmdStopSession
)

// Engine is the single-goroutine analytics pipeline: it segments the
// sample stream into laps, maintains the reference, measures corners,
// updates the rolling stats and drives the coach. All mutable state is
// owned by the Run goroutine; the outside world only ever sees the
// immutable snapshots it publishes.
type Engine struct {
	opts  Options
	buses *Buses

	seg     *segmenter.Segmenter
	refs    *reference.Manager
	an      *corners.Analyzer
	tracker *stats.Tracker
	voice   *coach.Coach

	sessionID string
	trackName string
	trackLen  float64
	active    bool
	seedTried string // track name already asked of SeedLookup

	live        model.LiveTelemetry
	laps        []model.LapSummary
	fastest     *model.LapSummary
	refBins     []float64
	curBins     []*float64
	lastBins    []*float64
	metrics     []model.CornerMetric
	outline     []model.TrackPoint
	recent      []model.Cue
	analytics   analytics
	travel      float64
	now         float64
	prevDist    float64
	seenSamples uint64

	ctrl chan command
}

// analytics holds the snapshot sections derived from lap history,
// recomputed only when a lap finalizes.
type analytics struct {
	consistency model.ConsistencyStats
	mastery     []model.CornerMastery
	profile     *model.DriverProfile
	skills      *model.SkillScores
	optimal     model.OptimalLap
	timeLoss    []model.TimeLossEntry
}

func New(buses *Buses, opts Options) *Engine {
	e := &Engine{
		opts:      opts,
		buses:     buses,
		seg:       segmenter.New(opts.GapTimeout),
		refs:      reference.NewManager(),
		tracker:   stats.New(opts.LapWindow, opts.CornerHistory, opts.Thresholds),
		voice:     coach.New(opts.MaxCornerCallouts, opts.Thresholds),
		sessionID: uuid.New().String(),
		ctrl:      make(chan command, 4),
	}
	if len(opts.Corners) > 0 {
		e.an = corners.NewAnalyzer(opts.Corners)
	}
	if opts.SeedLap != nil {
		e.refs.Seed(opts.SeedLap)
		if e.refs.HasReference() {
			e.adoptReference()
		}
	}
	return e
}

// SessionID returns the current session identity.
func (e *Engine) SessionID() string { return e.sessionID }

// StartSession asks the engine to abandon the current session and
// begin a fresh one. Safe from any goroutine.
func (e *Engine) StartSession() { e.ctrl <- cmdStartSession }

// StopSession asks the engine to finalize and close the session.
func (e *Engine) StopSession() { e.ctrl <- cmdStopSession }

// Run owns the pipeline until the context is canceled. On shutdown the
// in-progress lap is flushed as invalid so its samples are never lost.
func (e *Engine) Run(ctx context.Context) error {
	updates := e.buses.Updates.Subscribe(pubsub.TopicSamples, sampleQueueLen)
	defer e.buses.Updates.Unsubscribe(pubsub.TopicSamples, updates)

	log.Logger.Info("engine up", zap.String("session", e.sessionID))
	e.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			e.stopSession("session stopped")
			return nil
		case cmd := <-e.ctrl:
			switch cmd {
			case cmdStartSession:
				e.startSession()
			case cmdStopSession:
				e.stopSession("session stopped")
			}
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			e.handleUpdate(upd)
		}
	}
}

// adoptReference rewires everything derived from the reference lap:
// the corner set on first establishment, the analyzer's tables, the
// per-bin reference times and the track outline.
func (e *Engine) adoptReference() {
	lap := e.refs.Lap()
	table := e.refs.Table()
	if e.an == nil {
		e.an = corners.NewAnalyzer(corners.Detect(lap))
	}
	e.an.SetReference(lap, table, e.refs.Generation())
	e.refBins = bins.Times(table, e.opts.BinCount)
	e.trackLen = table.MaxDistance()
	e.outline = outlineFrom(lap)
}
