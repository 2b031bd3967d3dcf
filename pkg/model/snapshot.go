package model

// LiveTelemetry is the fast-cadence echo of the car state for the
// dashboard. DeltaVsPB is nil until a reference lap exists.
type LiveTelemetry struct {
	Speed          float64  `json:"speed"`
	Gear           int      `json:"gear"`
	RPM            int      `json:"rpm"`
	Throttle       float64  `json:"throttle"`
	Brake          float64  `json:"brake"`
	Steer          float64  `json:"steer"`
	LapNumber      int      `json:"lapNumber"`
	LapDistance    float64  `json:"lapDistance"`
	CurrentLapTime float64  `json:"currentLapTime"`
	Sector         int      `json:"sector"`
	DeltaVsPB      *float64 `json:"deltaVsPB"`
}

type BinMeta struct {
	Count       int     `json:"count"`
	Width       float64 `json:"width"`
	TrackLength float64 `json:"trackLength"`
}

// CornerSigma is the per-corner spread of segment deltas. Sigma is nil
// below two history entries.
type CornerSigma struct {
	TurnNumber int      `json:"turnNumber"`
	Sigma      *float64 `json:"sigma"`
}

// ConsistencyStats carries the rolling variability measures. Every
// sigma is nil ("no data") below two entries, never zero.
type ConsistencyStats struct {
	LapSigma        *float64      `json:"lapSigma"`
	SectorSigma     [3]*float64   `json:"sectorSigma"`
	CornerSigma     []CornerSigma `json:"cornerSigma"`
	BrakePointSigma *float64      `json:"brakePointSigma"`
	MostConsistent  *int          `json:"mostConsistent"`  // turn number
	LeastConsistent *int          `json:"leastConsistent"` // turn number
}

type MasteryTrend string

const (
	TrendUp   MasteryTrend = "up"
	TrendDown MasteryTrend = "down"
	TrendFlat MasteryTrend = "flat"
)

type CornerMastery struct {
	TurnNumber int          `json:"turnNumber"`
	Score      int          `json:"score"` // 0..100
	Trend      MasteryTrend `json:"trend"`
}

// DriverProfile is the heuristic style read: the underlying rolling
// stats plus the tags whose rules currently hold.
type DriverProfile struct {
	Tags           []string `json:"tags"`
	PeakBrake      float64  `json:"peakBrake"`
	BrakeSlope     float64  `json:"brakeSlope"`
	ThrottleJerk   float64  `json:"throttleJerk"`
	SteerRate      float64  `json:"steerRate"`
	BrakePointBias *float64 `json:"brakePointBias"` // m vs reference, nil without one
}

// SkillScores are five deterministic 0..100 normalizations of the
// rolling stats. Same inputs always produce the same scores.
type SkillScores struct {
	Braking     int `json:"braking"`
	Throttle    int `json:"throttle"`
	Exit        int `json:"exit"`
	Consistency int `json:"consistency"`
	Line        int `json:"line"`
}

// OptimalLap combines best-ever sectors and best-ever bins over valid
// laps. Either sum is nil until enough coverage exists.
type OptimalLap struct {
	SectorBest *float64 `json:"sectorBest"`
	BinBest    *float64 `json:"binBest"`
}

type TimeLossEntry struct {
	TurnNumber int     `json:"turnNumber"`
	MeanDelta  float64 `json:"meanDelta"`
	Reason     string  `json:"reason"`
}

// TrackPoint is one downsampled outline point for the map view.
type TrackPoint struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
	D float64 `json:"d"`
}

// Counters are engine diagnostics surfaced on the snapshot.
type Counters struct {
	SamplesSeen      uint64 `json:"samplesSeen"`
	SamplesDiscarded uint64 `json:"samplesDiscarded"`
	SamplesDropped   uint64 `json:"samplesDropped"`
	CuesDropped      uint64 `json:"cuesDropped"`
}

// Snapshot is the immutable dashboard state. The engine builds a fresh
// value after each atomic update unit and publishes it wholesale;
// readers never observe a lap finalized but its metrics missing.
type Snapshot struct {
	SessionID     string           `json:"sessionId"`
	TrackName     string           `json:"trackName"`
	Active        bool             `json:"active"`
	Live          LiveTelemetry    `json:"live"`
	Laps          []LapSummary     `json:"laps"`
	FastestLap    *LapSummary      `json:"fastestLap"`
	BinMeta       BinMeta          `json:"binMeta"`
	ReferenceBins []float64        `json:"referenceBins"`
	CurrentBins   []*float64       `json:"currentBins"`
	LastLapBins   []*float64       `json:"lastLapBins"`
	Corners       []Corner         `json:"corners"`
	CornerMetrics []CornerMetric   `json:"cornerMetrics"`
	TimeLoss      []TimeLossEntry  `json:"timeLoss"`
	Mastery       []CornerMastery  `json:"mastery"`
	Consistency   ConsistencyStats `json:"consistency"`
	Profile       *DriverProfile   `json:"profile"`
	Skills        *SkillScores     `json:"skills"`
	Optimal       OptimalLap       `json:"optimal"`
	TrackOutline  []TrackPoint     `json:"trackOutline,omitempty"`
	RecentCues    []Cue            `json:"recentCues"`
	Counters      Counters         `json:"counters"`
}
