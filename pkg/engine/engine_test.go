package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apexcoach/pkg/model"
	"apexcoach/pkg/pubsub"
	"apexcoach/pkg/stats"
)

const testTrackLen = 4000.0

func testOptions() Options {
	return Options{
		BinCount:          16,
		LapWindow:         10,
		CornerHistory:     12,
		MaxCornerCallouts: 4,
		GapTimeout:        2.0,
		Thresholds:        stats.Thresholds{BrakeDiff: 10, SpeedDiff: 5, ThrottleDiff: 15},
	}
}

// driveLapWith feeds one full lap at constant pace, 100m per sample,
// with a final sample just short of the line. The next lap's first
// sample closes it.
func driveLapWith(e *Engine, start float64, lapNum int, total float64, mutate func(*model.Sample)) float64 {
	feed := func(d float64) {
		sector := 1
		switch {
		case d >= 2*testTrackLen/3:
			sector = 3
		case d >= testTrackLen/3:
			sector = 2
		}
		s := model.Sample{
			Timestamp:   start + total*d/testTrackLen,
			LapNumber:   lapNum,
			LapDistance: d,
			Sector:      sector,
			Speed:       200,
			Throttle:    1,
		}
		if mutate != nil {
			mutate(&s)
		}
		e.handleSample(s)
	}
	for d := 0.0; d <= 3900; d += 100 {
		feed(d)
	}
	feed(3999)
	return start + total
}

func driveLap(e *Engine, start float64, lapNum int, total float64) float64 {
	return driveLapWith(e, start, lapNum, total, nil)
}

func TestEngine_FastestValidLapBecomesReference(t *testing.T) {
	e := New(NewBuses(), testOptions())

	clock := driveLap(e, 0, 1, 92) // out-lap
	clock = driveLap(e, clock, 2, 90)
	clock = driveLap(e, clock, 3, 88.5)
	clock = driveLap(e, clock, 4, 89.2)
	driveLap(e, clock, 5, 91) // closes lap 4

	snap := e.snapshot()
	require.Len(t, snap.Laps, 4)
	require.NotNil(t, snap.FastestLap)
	assert.InDelta(t, 88.5, snap.FastestLap.TotalTime, 0.01)
	assert.True(t, snap.FastestLap.IsPB)

	require.True(t, e.refs.HasReference())
	assert.InDelta(t, 88.5, e.refs.Lap().TotalTime, 0.01)

	// exactly one lap wears the PB flag
	var pbs int
	for _, l := range snap.Laps {
		if l.IsPB {
			pbs++
		}
	}
	assert.Equal(t, 1, pbs)

	assert.Len(t, snap.ReferenceBins, 16)
	assert.NotNil(t, snap.LastLapBins)
	require.NotNil(t, snap.Skills)
	assert.NotNil(t, snap.Optimal.SectorBest)
}

func TestEngine_OffTrackLapNeverBecomesReference(t *testing.T) {
	e := New(NewBuses(), testOptions())

	clock := driveLap(e, 0, 1, 92)
	clock = driveLap(e, clock, 2, 90)
	// four seconds faster, but two wheels over the line at half distance
	clock = driveLapWith(e, clock, 3, 86, func(s *model.Sample) {
		if s.LapDistance == 2000 {
			s.OffTrack = true
		}
	})
	driveLap(e, clock, 4, 91) // closes lap 3

	snap := e.snapshot()
	require.NotNil(t, snap.FastestLap)
	assert.InDelta(t, 90, snap.FastestLap.TotalTime, 0.01)

	require.Len(t, snap.Laps, 3)
	assert.False(t, snap.Laps[2].Valid)
	assert.Equal(t, "off-track", snap.Laps[2].InvalidReason)
}

func TestEngine_LateBrakingGetsCalledOut(t *testing.T) {
	opts := testOptions()
	opts.Corners = []model.Corner{{TurnNumber: 1, Entry: 900, Exit: 1200, Apex: 1050, Direction: "R"}}
	e := New(NewBuses(), opts)

	brakeAt := func(from, to float64) func(*model.Sample) {
		return func(s *model.Sample) {
			if s.LapDistance >= from && s.LapDistance < to {
				s.Brake = 1
				s.Throttle = 0
				s.Speed = 120
			}
		}
	}

	clock := driveLapWith(e, 0, 1, 92, brakeAt(800, 1000))
	clock = driveLapWith(e, clock, 2, 90, brakeAt(800, 1000)) // becomes reference
	driveLapWith(e, clock, 3, 90.5, brakeAt(1000, 1100))      // brakes 100m late

	var found *model.Cue
	for i := range e.recent {
		if e.recent[i].Category == model.CueBraking {
			found = &e.recent[i]
		}
	}
	require.NotNil(t, found, "expected a braking callout")
	assert.Contains(t, found.Text, "Brake earlier into turn 1")
	assert.Equal(t, model.PriorityHigh, found.Priority)
}

func TestEngine_NoCalloutWithoutReference(t *testing.T) {
	opts := testOptions()
	opts.Corners = []model.Corner{{TurnNumber: 1, Entry: 900, Exit: 1200}}
	e := New(NewBuses(), opts)

	// only an out-lap so far: nothing to compare against
	driveLap(e, 0, 1, 92)

	for _, c := range e.recent {
		assert.NotEqual(t, model.CueBraking, c.Category)
		assert.NotEqual(t, model.CueCorner, c.Category)
	}
}

func TestEngine_StopFlushesInProgressLap(t *testing.T) {
	e := New(NewBuses(), testOptions())
	clock := driveLap(e, 0, 1, 92)
	e.handleSample(model.Sample{Timestamp: clock, LapNumber: 2, LapDistance: 10, Sector: 1, Speed: 200})
	e.handleSample(model.Sample{Timestamp: clock + 5, LapNumber: 2, LapDistance: 500, Sector: 1, Speed: 200})

	e.stopSession("session stopped")

	snap := e.snapshot()
	assert.False(t, snap.Active)
	require.Len(t, snap.Laps, 2)
	flushed := snap.Laps[1]
	assert.False(t, flushed.Valid)
	assert.Equal(t, "session stopped", flushed.InvalidReason)
}

func TestEngine_StartSessionResetsEverything(t *testing.T) {
	e := New(NewBuses(), testOptions())
	clock := driveLap(e, 0, 1, 92)
	clock = driveLap(e, clock, 2, 90)
	driveLap(e, clock, 3, 89)
	old := e.SessionID()
	require.True(t, e.refs.HasReference())

	e.startSession()

	snap := e.snapshot()
	assert.NotEqual(t, old, snap.SessionID)
	assert.True(t, snap.Active)
	assert.Empty(t, snap.Laps)
	assert.Nil(t, snap.FastestLap)
	assert.False(t, e.refs.HasReference())
	assert.Empty(t, snap.ReferenceBins)
}

func TestEngine_LiveDeltaNeedsReference(t *testing.T) {
	e := New(NewBuses(), testOptions())

	clock := driveLap(e, 0, 1, 92)
	assert.Nil(t, e.snapshot().Live.DeltaVsPB)

	clock = driveLap(e, clock, 2, 90)
	// a few samples into lap 3, at reference pace
	e.handleSample(model.Sample{Timestamp: clock, LapNumber: 3, LapDistance: 10, Sector: 1, Speed: 200})
	e.handleSample(model.Sample{Timestamp: clock + 22.5, LapNumber: 3, LapDistance: 1000, Sector: 1, Speed: 200})

	snap := e.snapshot()
	require.NotNil(t, snap.Live.DeltaVsPB)
	assert.InDelta(t, 0, *snap.Live.DeltaVsPB, 0.2)
}

func TestEngine_LapPublishedOnFinalize(t *testing.T) {
	buses := NewBuses()
	laps := buses.Laps.Subscribe(pubsub.TopicLaps, 8)
	e := New(buses, testOptions())

	clock := driveLap(e, 0, 1, 92)
	driveLap(e, clock, 2, 90)

	select {
	case sum := <-laps:
		assert.Equal(t, 1, sum.LapNumber)
		assert.False(t, sum.Valid) // out-lap
	default:
		t.Fatal("expected a lap summary on the bus")
	}
}
