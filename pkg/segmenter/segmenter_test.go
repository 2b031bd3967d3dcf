package segmenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apexcoach/pkg/model"
)

func sample(ts, dist float64, lapNum, sector int) model.Sample {
	return model.Sample{
		Timestamp:   ts,
		LapNumber:   lapNum,
		LapDistance: dist,
		Sector:      sector,
		Speed:       200,
	}
}

// drive one full lap ending just short of the line
func feedLap(t *testing.T, sg *Segmenter, start float64, lapNum int) {
	t.Helper()
	sg.Ingest(sample(start, 0, lapNum, 1))
	sg.Ingest(sample(start+1, 1000, lapNum, 1))
	sg.Ingest(sample(start+2, 2000, lapNum, 2))
	sg.Ingest(sample(start+3, 3000, lapNum, 3))
	sg.Ingest(sample(start+4, 3990, lapNum, 3))
}

func TestIngest_WrapFinalizesLap(t *testing.T) {
	sg := New(2.0)
	feedLap(t, sg, 0, 1)

	ev := sg.Ingest(sample(5, 10, 2, 1))
	require.Equal(t, EventLapCompleted, ev.Kind)
	require.NotNil(t, ev.Lap)

	// the first lap never crossed the line at its start
	assert.False(t, ev.Lap.Valid)
	assert.Equal(t, "out-lap", ev.Lap.InvalidReason)

	sum := ev.Lap.SectorTimes[0] + ev.Lap.SectorTimes[1] + ev.Lap.SectorTimes[2]
	assert.InDelta(t, ev.Lap.TotalTime, sum, 0.001)

	// second traversal is a flying lap
	sg.Ingest(sample(6, 1000, 2, 1))
	sg.Ingest(sample(7, 2000, 2, 2))
	sg.Ingest(sample(8, 3000, 2, 3))
	sg.Ingest(sample(9, 3990, 2, 3))
	ev = sg.Ingest(sample(10, 10, 3, 1))
	require.Equal(t, EventLapCompleted, ev.Kind)
	assert.True(t, ev.Lap.Valid)
	assert.InDelta(t, 5.0, ev.Lap.TotalTime, 0.05)
	sum = ev.Lap.SectorTimes[0] + ev.Lap.SectorTimes[1] + ev.Lap.SectorTimes[2]
	assert.InDelta(t, ev.Lap.TotalTime, sum, 0.001)
}

func TestIngest_SectorCrossingInterpolated(t *testing.T) {
	sg := New(2.0)
	sg.Ingest(sample(0, 0, 1, 1))
	sg.Ingest(sample(1, 1000, 1, 1))

	ev := sg.Ingest(sample(2, 2000, 1, 2))
	require.Equal(t, EventSectorCrossed, ev.Kind)
	assert.Equal(t, 1, ev.Sector)
	// midpoint of the straddling samples
	assert.InDelta(t, 1.5, ev.SectorTime, 0.001)
}

func TestIngest_BackwardJumpDiscarded(t *testing.T) {
	sg := New(2.0)
	sg.Ingest(sample(0, 0, 1, 1))
	sg.Ingest(sample(1, 1000, 1, 1))
	before := len(sg.Current().Samples)

	ev := sg.Ingest(sample(1.1, 995, 1, 1))

	assert.Equal(t, EventNone, ev.Kind)
	assert.Equal(t, uint64(1), sg.Discarded())
	assert.Len(t, sg.Current().Samples, before)

	// the stream continues unharmed
	ev = sg.Ingest(sample(1.2, 1010, 1, 1))
	assert.Equal(t, EventNone, ev.Kind)
	assert.Len(t, sg.Current().Samples, before+1)
}

func TestIngest_DuplicateDiscarded(t *testing.T) {
	sg := New(2.0)
	sg.Ingest(sample(0, 0, 1, 1))
	sg.Ingest(sample(1, 1000, 1, 1))

	ev := sg.Ingest(sample(1, 1000, 1, 1))

	assert.Equal(t, EventNone, ev.Kind)
	assert.Equal(t, uint64(1), sg.Discarded())
}

func TestIngest_GapResetsTracking(t *testing.T) {
	sg := New(2.0)
	sg.Ingest(sample(0, 0, 1, 1))
	sg.Ingest(sample(1, 1000, 1, 1))

	// 3.5s of silence: way past the 2s timeout
	ev := sg.Ingest(sample(4.5, 1200, 1, 1))

	assert.Equal(t, EventNone, ev.Kind)
	assert.Equal(t, uint64(1), sg.Resets())
	require.NotNil(t, sg.Current())
	assert.Len(t, sg.Current().Samples, 1)
	assert.Equal(t, 4.5, sg.Current().StartedAt)
	assert.False(t, sg.Current().Valid)
}

func TestIngest_FlagInvalidatesForGood(t *testing.T) {
	sg := New(2.0)
	feedLap(t, sg, 0, 1)
	sg.Ingest(sample(5, 10, 2, 1))

	sg.Ingest(sample(6, 1000, 2, 1))
	off := sample(6.5, 1500, 2, 1)
	off.OffTrack = true
	sg.Ingest(off)
	// clean samples afterwards do not restore validity
	sg.Ingest(sample(7, 2000, 2, 2))
	sg.Ingest(sample(8, 3000, 2, 3))
	sg.Ingest(sample(9, 3990, 2, 3))

	ev := sg.Ingest(sample(10, 10, 3, 1))
	require.Equal(t, EventLapCompleted, ev.Kind)
	assert.False(t, ev.Lap.Valid)
	assert.Equal(t, "off-track", ev.Lap.InvalidReason)
}

func TestIngest_LapNumberIncrementFinalizes(t *testing.T) {
	sg := New(2.0)
	feedLap(t, sg, 0, 1)

	// telemetry advances the lap counter without a sharp distance drop
	ev := sg.Ingest(sample(5, 3995, 2, 3))
	require.Equal(t, EventLapCompleted, ev.Kind)
	assert.Equal(t, 1, ev.Lap.LapNumber)
}

func TestFlush_FinalizesIncompleteLap(t *testing.T) {
	sg := New(2.0)
	sg.Ingest(sample(0, 0, 1, 1))
	sg.Ingest(sample(1, 1000, 1, 1))

	lap := sg.Flush("incomplete")

	require.NotNil(t, lap)
	assert.False(t, lap.Valid)
	assert.Nil(t, sg.Current())

	// flushing twice is harmless
	assert.Nil(t, sg.Flush("incomplete"))
}

func TestRewind_FlashbackReanchors(t *testing.T) {
	sg := New(2.0)
	feedLap(t, sg, 0, 1)
	ev := sg.Ingest(sample(5, 10, 2, 1))
	require.Equal(t, EventLapCompleted, ev.Kind)
	sg.Ingest(sample(6, 1000, 2, 1))
	sg.Ingest(sample(7, 2000, 2, 2))
	before := sg.Discarded()

	// flashback teleports the car 500m back up the road
	sg.Rewind("flashback")
	sg.Ingest(sample(9, 1500, 2, 2))

	require.NotNil(t, sg.Current())
	assert.False(t, sg.Current().Valid)
	assert.Equal(t, "flashback", sg.Current().InvalidReason)
	// the regression is accepted, not counted as noise
	assert.Equal(t, before, sg.Discarded())

	// tracking continues normally from the rewound position
	sg.Ingest(sample(10, 2500, 2, 2))
	n := len(sg.Current().Samples)
	assert.InDelta(t, 2500, sg.Current().Samples[n-1].LapDistance, 0.001)
}
