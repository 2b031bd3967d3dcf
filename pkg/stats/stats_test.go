package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apexcoach/pkg/model"
)

func ptr(v float64) *float64 { return &v }

func makeLap(n int, total float64, sectors [3]float64) *model.Lap {
	lap := &model.Lap{LapNumber: n, TotalTime: total, SectorTimes: sectors, Valid: true}
	for i := 0; i < 10; i++ {
		lap.Samples = append(lap.Samples, model.Sample{
			Timestamp:   float64(i),
			LapDistance: float64(i) * 100,
		})
	}
	return lap
}

func TestConsistency_NeedsTwoLaps(t *testing.T) {
	tr := New(10, 12, Thresholds{})

	tr.AddLap(makeLap(1, 90, [3]float64{30, 30, 30}))
	assert.Nil(t, tr.Consistency().LapSigma)

	tr.AddLap(makeLap(2, 92, [3]float64{31, 30, 31}))
	got := tr.Consistency()
	require.NotNil(t, got.LapSigma)
	assert.InDelta(t, math.Sqrt2, *got.LapSigma, 0.001)
	require.NotNil(t, got.SectorSigma[0])
	assert.InDelta(t, math.Sqrt2/2, *got.SectorSigma[0], 0.001)
	require.NotNil(t, got.SectorSigma[1])
	assert.InDelta(t, 0, *got.SectorSigma[1], 0.001)
}

func TestAddLap_IgnoresInvalid(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	bad := makeLap(1, 300, [3]float64{100, 100, 100})
	bad.Valid = false

	tr.AddLap(bad)

	assert.Equal(t, 0, tr.Laps())
	assert.Nil(t, tr.BestSector(0))
}

func TestAddLap_WindowEvictsButBestsSurvive(t *testing.T) {
	tr := New(2, 12, Thresholds{})
	tr.AddLap(makeLap(1, 95, [3]float64{30, 32.5, 32.5}))
	tr.AddLap(makeLap(2, 90, [3]float64{30.5, 30, 29.5}))
	tr.AddLap(makeLap(3, 90, [3]float64{30.5, 30, 29.5}))

	assert.Equal(t, 2, tr.Laps())
	got := tr.Consistency()
	require.NotNil(t, got.LapSigma)
	assert.InDelta(t, 0, *got.LapSigma, 1e-9)

	// session bests are not windowed, lap 1 still holds sector 1
	require.NotNil(t, tr.BestSector(0))
	assert.InDelta(t, 30, *tr.BestSector(0), 0.001)
}

func TestConsistency_CornerTiesPickLowestTurn(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	for _, seg := range []float64{10.0, 10.2} {
		tr.AddCorners([]model.CornerMetric{
			{TurnNumber: 1, SegmentTime: seg},
			{TurnNumber: 2, SegmentTime: seg},
		}, nil)
	}

	got := tr.Consistency()
	require.NotNil(t, got.MostConsistent)
	require.NotNil(t, got.LeastConsistent)
	assert.Equal(t, 1, *got.MostConsistent)
	assert.Equal(t, 1, *got.LeastConsistent)
}

func TestConsistency_MostAndLeastConsistent(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	for i, seg := range []float64{10.0, 10.01} {
		loose := []float64{10.0, 11.0}[i]
		tr.AddCorners([]model.CornerMetric{
			{TurnNumber: 1, SegmentTime: seg},
			{TurnNumber: 2, SegmentTime: loose},
		}, nil)
	}

	got := tr.Consistency()
	require.NotNil(t, got.MostConsistent)
	assert.Equal(t, 1, *got.MostConsistent)
	require.NotNil(t, got.LeastConsistent)
	assert.Equal(t, 2, *got.LeastConsistent)
}

func TestMastery_ScoreAndTrend(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	for _, d := range []float64{0.8, 0.6, 0.3, 0.2} {
		tr.AddCorners([]model.CornerMetric{{TurnNumber: 3, SegmentTime: 10, Delta: ptr(d)}}, nil)
	}

	got := tr.Mastery()
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].TurnNumber)
	assert.Equal(t, 53, got[0].Score) // mean |delta| 0.475
	assert.Equal(t, model.TrendUp, got[0].Trend)
}

func TestMastery_ShortHistoryIsFlat(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	for _, d := range []float64{0.9, 0.1, 0.1} {
		tr.AddCorners([]model.CornerMetric{{TurnNumber: 1, SegmentTime: 10, Delta: ptr(d)}}, nil)
	}

	got := tr.Mastery()
	require.Len(t, got, 1)
	assert.Equal(t, model.TrendFlat, got[0].Trend)
}

func TestMastery_SkipsCornersWithoutDeltas(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	tr.AddCorners([]model.CornerMetric{{TurnNumber: 1, SegmentTime: 10}}, nil)

	assert.Empty(t, tr.Mastery())
}

func TestAddCorners_WindowEvictsOldest(t *testing.T) {
	tr := New(10, 2, Thresholds{})
	for _, d := range []float64{1.0, 0.2, 0.2} {
		tr.AddCorners([]model.CornerMetric{{TurnNumber: 1, SegmentTime: 10, Delta: ptr(d)}}, nil)
	}

	got := tr.Mastery()
	require.Len(t, got, 1)
	// only the two newest traversals remain
	assert.Equal(t, 80, got[0].Score)
}

func TestProfile_TagsFireIndependently(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	lap := &model.Lap{LapNumber: 1, Valid: true, TotalTime: 90, SectorTimes: [3]float64{30, 30, 30}}
	for i := 0; i < 100; i++ {
		s := model.Sample{Timestamp: float64(i) * 0.1, LapDistance: float64(i) * 40}
		if i%2 == 0 {
			s.Throttle = 1
		}
		s.Steer = float64(i%2) * 0.5
		if i >= 50 && i < 60 {
			s.Brake = 1
		}
		lap.Samples = append(lap.Samples, s)
	}

	tr.AddLap(lap)
	p := tr.Profile()

	require.NotNil(t, p)
	assert.InDelta(t, 1.0, p.PeakBrake, 0.001)
	assert.Contains(t, p.Tags, "aggressive braker")
	assert.Contains(t, p.Tags, "snap throttle")
	assert.Contains(t, p.Tags, "busy hands")
	assert.Nil(t, p.BrakePointBias)
}

func TestProfile_LateBrakerFromBias(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	tr.AddLap(makeLap(1, 90, [3]float64{30, 30, 30}))

	ref := func(turn int) (model.CornerMetric, bool) {
		return model.CornerMetric{TurnNumber: turn, BrakePoint: ptr(950)}, true
	}
	tr.AddCorners([]model.CornerMetric{{TurnNumber: 1, SegmentTime: 9, BrakePoint: ptr(958)}}, ref)

	p := tr.Profile()
	require.NotNil(t, p)
	require.NotNil(t, p.BrakePointBias)
	assert.InDelta(t, 8, *p.BrakePointBias, 0.001)
	assert.Contains(t, p.Tags, "late braker")
}

func TestProfile_NilWithoutLaps(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	assert.Nil(t, tr.Profile())
}

func TestSkills_DeterministicAndNeutralWithoutCornerData(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	assert.Nil(t, tr.Skills())

	tr.AddLap(makeLap(1, 90, [3]float64{30, 30, 30}))
	tr.AddLap(makeLap(2, 91, [3]float64{30, 30, 31}))

	s := tr.Skills()
	require.NotNil(t, s)
	assert.Equal(t, 65, s.Consistency) // lap sigma 0.707s
	assert.Equal(t, 100, s.Throttle)   // perfectly steady trace
	assert.Equal(t, 50, s.Braking)
	assert.Equal(t, 50, s.Exit)
	assert.Equal(t, 50, s.Line)

	assert.Equal(t, s, tr.Skills())
}

func TestOptimal_SectorAndBinBests(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	assert.Nil(t, tr.Optimal().SectorBest)

	tr.AddLap(makeLap(1, 92, [3]float64{31, 30.5, 30.5}))
	tr.AddLap(makeLap(2, 91, [3]float64{30, 31, 30}))

	opt := tr.Optimal()
	require.NotNil(t, opt.SectorBest)
	assert.InDelta(t, 90.5, *opt.SectorBest, 0.001)

	tr.AddLapBins([]float64{1, 2, 3})
	tr.AddLapBins([]float64{2, 1, 3})
	opt = tr.Optimal()
	require.NotNil(t, opt.BinBest)
	assert.InDelta(t, 5, *opt.BinBest, 0.001)
}

func TestTimeLoss_RanksTopThreeWithReasons(t *testing.T) {
	tr := New(10, 12, Thresholds{BrakeDiff: 10, SpeedDiff: 5, ThrottleDiff: 15})
	ref := func(turn int) (model.CornerMetric, bool) {
		return model.CornerMetric{
			TurnNumber: turn, EntrySpeed: 200, ApexSpeed: 120, ExitSpeed: 180,
			BrakePoint: ptr(1000), ThrottlePoint: ptr(1100),
		}, true
	}
	add := func(turn int, delta float64, m model.CornerMetric) {
		m.TurnNumber = turn
		m.Delta = ptr(delta)
		m.SegmentTime = 10
		tr.AddCorners([]model.CornerMetric{m}, ref)
	}

	add(1, 0.5, model.CornerMetric{EntrySpeed: 200, ApexSpeed: 120, ExitSpeed: 180, BrakePoint: ptr(1020)})
	add(2, 0.3, model.CornerMetric{EntrySpeed: 200, ApexSpeed: 110, ExitSpeed: 180, BrakePoint: ptr(1000)})
	add(3, -0.2, model.CornerMetric{EntrySpeed: 200, ApexSpeed: 125, ExitSpeed: 185, BrakePoint: ptr(1000)})
	add(4, 0.1, model.CornerMetric{EntrySpeed: 200, ApexSpeed: 120, ExitSpeed: 170, BrakePoint: ptr(1000)})
	add(5, 0.05, model.CornerMetric{EntrySpeed: 200, ApexSpeed: 120, ExitSpeed: 180, BrakePoint: ptr(1000), ThrottlePoint: ptr(1120)})

	got := tr.TimeLoss()
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].TurnNumber)
	assert.Equal(t, "brake earlier", got[0].Reason)
	assert.Equal(t, 2, got[1].TurnNumber)
	assert.Equal(t, "apex too slow", got[1].Reason)
	assert.Equal(t, 4, got[2].TurnNumber)
	assert.Equal(t, "exit speed", got[2].Reason)
}

func TestReset_ClearsEverything(t *testing.T) {
	tr := New(10, 12, Thresholds{})
	tr.AddLap(makeLap(1, 90, [3]float64{30, 30, 30}))
	tr.AddCorners([]model.CornerMetric{{TurnNumber: 1, SegmentTime: 10, Delta: ptr(0.5)}}, nil)
	tr.AddLapBins([]float64{1, 2})

	tr.Reset()

	assert.Equal(t, 0, tr.Laps())
	assert.Nil(t, tr.BestSector(0))
	assert.Empty(t, tr.Mastery())
	assert.Nil(t, tr.Optimal().BinBest)
}
