package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apexcoach/pkg/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "coach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func ptr(v float64) *float64 { return &v }

func TestManager_SessionRoundtrip(t *testing.T) {
	m := newTestManager(t)

	first := SessionRecord{
		ID:        "s-1",
		Track:     "Monza",
		StartedAt: time.Unix(1700000000, 0),
	}
	require.NoError(t, m.UpsertSession(first))

	second := SessionRecord{
		ID:        "s-2",
		Track:     "Spa",
		StartedAt: time.Unix(1700001000, 0),
	}
	require.NoError(t, m.UpsertSession(second))

	// close out the first session
	first.EndedAt = time.Unix(1700000900, 0)
	first.Laps = 8
	first.ValidLaps = 6
	first.BestLap = ptr(88.5)
	require.NoError(t, m.UpsertSession(first))

	sessions, err := m.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// newest first
	assert.Equal(t, "s-2", sessions[0].ID)
	assert.True(t, sessions[0].EndedAt.IsZero())
	assert.Nil(t, sessions[0].BestLap)

	got := sessions[1]
	assert.Equal(t, "s-1", got.ID)
	assert.Equal(t, "Monza", got.Track)
	assert.Equal(t, 8, got.Laps)
	assert.Equal(t, 6, got.ValidLaps)
	require.NotNil(t, got.BestLap)
	assert.InDelta(t, 88.5, *got.BestLap, 1e-9)
	assert.Equal(t, int64(1700000900), got.EndedAt.Unix())
}

func TestManager_LapsRoundtrip(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.UpsertSession(SessionRecord{ID: "s-1", StartedAt: time.Now()}))

	laps := []model.LapSummary{
		{LapNumber: 1, TotalTime: 92.0, SectorTimes: [3]float64{31, 30, 31}, Valid: false, InvalidReason: "out-lap"},
		{LapNumber: 2, TotalTime: 90.0, SectorTimes: [3]float64{30.5, 29.5, 30}, Valid: true},
		{LapNumber: 3, TotalTime: 88.5, SectorTimes: [3]float64{30, 29, 29.5}, Valid: true, IsPB: true},
	}
	for _, sum := range laps {
		require.NoError(t, m.SaveLap("s-1", sum))
	}

	got, err := m.Laps("s-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, laps, got)

	empty, err := m.Laps("nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestManager_ReportRoundtrip(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.UpsertSession(SessionRecord{ID: "s-1", StartedAt: time.Now()}))

	_, err := m.Report("s-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SaveReport("s-1", "eight laps, one of them tidy"))

	text, err := m.Report("s-1")
	require.NoError(t, err)
	assert.Equal(t, "eight laps, one of them tidy", text)

	_, err = m.Report("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_UpsertKeepsReport(t *testing.T) {
	m := newTestManager(t)
	rec := SessionRecord{ID: "s-1", Track: "Monza", StartedAt: time.Now()}
	require.NoError(t, m.UpsertSession(rec))
	require.NoError(t, m.SaveReport("s-1", "mid-session report"))

	rec.Laps = 4
	require.NoError(t, m.UpsertSession(rec))

	text, err := m.Report("s-1")
	require.NoError(t, err)
	assert.Equal(t, "mid-session report", text)
}

func TestManager_ReferenceRoundtrip(t *testing.T) {
	m := newTestManager(t)

	lap := &model.Lap{
		LapNumber:   5,
		TotalTime:   88.5,
		SectorTimes: [3]float64{30, 29, 29.5},
		Valid:       true,
		IsPB:        true,
		StartedAt:   120.25,
		Samples: []model.Sample{
			{Timestamp: 120.25, LapDistance: 0, Speed: 280, Gear: 7},
			{Timestamp: 121.0, LapDistance: 55.5, Speed: 290, Gear: 8},
		},
	}
	require.NoError(t, m.SaveReference("Monza", lap))

	got, err := m.LoadReference("Monza")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, lap.TotalTime, got.TotalTime)
	assert.Equal(t, lap.SectorTimes, got.SectorTimes)
	require.Len(t, got.Samples, 2)
	assert.Equal(t, lap.Samples[1], got.Samples[1])

	// faster lap replaces the stored one
	faster := &model.Lap{LapNumber: 9, TotalTime: 87.9, Valid: true, Samples: lap.Samples}
	require.NoError(t, m.SaveReference("Monza", faster))
	got, err = m.LoadReference("Monza")
	require.NoError(t, err)
	assert.InDelta(t, 87.9, got.TotalTime, 1e-9)

	none, err := m.LoadReference("Suzuka")
	require.NoError(t, err)
	assert.Nil(t, none)
}
