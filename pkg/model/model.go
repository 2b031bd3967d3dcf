package model

import "fmt"

// Sample is one normalized telemetry frame for the player car. It is
// immutable once recorded: the segmenter owns it until it is attached
// to a Lap, the Lap owns it afterwards.
type Sample struct {
	Timestamp     float64 `json:"timestamp"` // session time, seconds
	LapNumber     int     `json:"lapNumber"`
	LapDistance   float64 `json:"lapDistance"`   // meters from the start line
	TotalDistance float64 `json:"totalDistance"` // meters since session start
	PosX          float64 `json:"posX"`
	PosZ          float64 `json:"posZ"`
	Speed         float64 `json:"speed"` // km/h
	Gear          int     `json:"gear"`
	RPM           int     `json:"rpm"`
	Throttle      float64 `json:"throttle"` // [0,1]
	Brake         float64 `json:"brake"`    // [0,1]
	Steer         float64 `json:"steer"`    // [-1,1]
	Sector        int     `json:"sector"`   // 1..3
	OffTrack      bool    `json:"offTrack"`
	WallContact   bool    `json:"wallContact"`
	Penalty       bool    `json:"penalty"`
}

// Flagged reports whether the sample carries any lap-invalidating flag.
func (s Sample) Flagged() bool {
	return s.OffTrack || s.WallContact || s.Penalty
}

// Lap is an ordered run of samples for one circuit traversal plus the
// derived timing fields. Finalized laps are read-only.
type Lap struct {
	LapNumber     int        `json:"lapNumber"`
	Samples       []Sample   `json:"-"`
	TotalTime     float64    `json:"totalTime"`
	SectorTimes   [3]float64 `json:"sectorTimes"`
	Valid         bool       `json:"valid"`
	IsPB          bool       `json:"isPB"`
	InvalidReason string     `json:"invalidReason,omitempty"`
	StartedAt     float64    `json:"startedAt"` // session time at lap start
}

// MaxDistance returns the largest lap distance recorded on this lap.
func (l *Lap) MaxDistance() float64 {
	if len(l.Samples) == 0 {
		return 0
	}
	return l.Samples[len(l.Samples)-1].LapDistance
}

// Summary strips the sample payload for lists and persistence.
func (l *Lap) Summary() LapSummary {
	return LapSummary{
		LapNumber:     l.LapNumber,
		TotalTime:     l.TotalTime,
		SectorTimes:   l.SectorTimes,
		Valid:         l.Valid,
		IsPB:          l.IsPB,
		InvalidReason: l.InvalidReason,
	}
}

type LapSummary struct {
	LapNumber     int        `json:"lapNumber"`
	TotalTime     float64    `json:"totalTime"`
	SectorTimes   [3]float64 `json:"sectorTimes"`
	Valid         bool       `json:"valid"`
	IsPB          bool       `json:"isPB"`
	InvalidReason string     `json:"invalidReason,omitempty"`
}

// Corner is a static definition derived once per session from the
// reference lap geometry, or loaded from a corners file. Immutable.
type Corner struct {
	TurnNumber int     `json:"turnNumber"`
	Entry      float64 `json:"entry"` // meters from the start line
	Exit       float64 `json:"exit"`
	Apex       float64 `json:"apex"`      // estimated, from detection
	Direction  string  `json:"direction"` // "L", "R" or ""
}

// Contains reports whether a lap distance falls inside the corner
// range, handling corners that straddle the start line.
func (c Corner) Contains(distance float64) bool {
	if c.Entry <= c.Exit {
		return distance >= c.Entry && distance <= c.Exit
	}
	// wraps around the line
	return distance >= c.Entry || distance <= c.Exit
}

// CornerMetric is the per-lap measurement of one corner. BrakePoint and
// ThrottlePoint are nil when no crossing was detected; Delta is nil when
// the reference has no coverage for the corner. Nil never means zero.
type CornerMetric struct {
	TurnNumber    int      `json:"turnNumber"`
	LapNumber     int      `json:"lapNumber"`
	EntrySpeed    float64  `json:"entrySpeed"`
	ApexSpeed     float64  `json:"apexSpeed"`
	ApexGear      int      `json:"apexGear"`
	ExitSpeed     float64  `json:"exitSpeed"`
	BrakePoint    *float64 `json:"brakePoint"`
	ThrottlePoint *float64 `json:"throttlePoint"`
	SegmentTime   float64  `json:"segmentTime"`
	Delta         *float64 `json:"delta"`
}

type CueCategory string

const (
	CueBraking  CueCategory = "braking"
	CueGear     CueCategory = "gear"
	CueThrottle CueCategory = "throttle"
	CueSpeed    CueCategory = "speed"
	CueCorner   CueCategory = "corner"

	// status cues, outside the per-tick coaching policy
	CuePersonalBest CueCategory = "personal_best"
	CueSector       CueCategory = "sector"
	CueCrash        CueCategory = "crash"
	CueDamage       CueCategory = "damage"
	CueInvalid      CueCategory = "invalid"
)

// CuePriority orders cues in the dispatch queue. Lower value wins.
type CuePriority int

const (
	PriorityCritical CuePriority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// Cue is a text coaching payload handed off fire-and-forget to the
// delivery channels. Distance and Timestamp mark where it fired so the
// dispatcher can drop stale entries.
type Cue struct {
	Category  CueCategory `json:"category"`
	Text      string      `json:"text"`
	Priority  CuePriority `json:"priority"`
	Distance  float64     `json:"distance"`
	Timestamp float64     `json:"timestamp"`
}

func (c Cue) String() string {
	return fmt.Sprintf("[%s/p%d] %s", c.Category, c.Priority, c.Text)
}
