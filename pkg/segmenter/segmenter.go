package segmenter

import (
	"apexcoach/pkg/model"
)

// EventKind classifies what a single ingested sample produced.
type EventKind int

const (
	EventNone EventKind = iota
	EventSectorCrossed
	EventLapCompleted
)

// Event is the segmenter's per-sample output. Sector and SectorTime are
// set for EventSectorCrossed (the sector just completed), Lap for
// EventLapCompleted.
type Event struct {
	Kind       EventKind
	Sector     int
	SectorTime float64
	Lap        *model.Lap
}

const (
	// backward jumps larger than this are lap wraps, smaller ones are
	// out-of-order samples
	minWrapDrop = 200.0

	// tolerance for backward movement before a sample counts as
	// out-of-order
	backwardEps = 0.01

	// a flying lap must begin within this many meters of the line
	startLineWindow = 150.0
)

// Segmenter folds the raw sample stream into laps and sectors. It is
// single-consumer: exactly one goroutine calls Ingest, in arrival
// order.
type Segmenter struct {
	gapTimeout float64

	current *model.Lap
	last    model.Sample
	haveLast bool

	// sector crossing timestamps within the current lap
	sector     int
	s1End      float64
	s2End      float64
	s1Seen     bool
	s2Seen     bool

	outLap    bool
	maxDist   float64 // largest lap distance seen on any lap
	discarded uint64
	resets    uint64
}

// New builds a segmenter. gapTimeout is the stream silence, in seconds,
// after which lap tracking resets defensively.
func New(gapTimeout float64) *Segmenter {
	return &Segmenter{gapTimeout: gapTimeout}
}

// Current returns the in-progress lap, or nil. The returned lap is
// still being appended to; callers run on the same goroutine as Ingest
// and must not retain it across calls.
func (sg *Segmenter) Current() *model.Lap {
	return sg.current
}

// Discarded counts duplicate and out-of-order samples dropped so far.
func (sg *Segmenter) Discarded() uint64 {
	return sg.discarded
}

// Resets counts defensive resets triggered by stream gaps.
func (sg *Segmenter) Resets() uint64 {
	return sg.resets
}

// Ingest consumes one sample and reports whether it closed a sector or
// a lap. Malformed input never corrupts the in-progress lap: it is
// discarded and counted.
func (sg *Segmenter) Ingest(sample model.Sample) Event {
	if sample.LapDistance < 0 {
		sg.discarded++
		return Event{Kind: EventNone}
	}

	if sg.current == nil {
		sg.startLap(sample, true)
		return Event{Kind: EventNone}
	}

	// stream gap: the partial lap cannot be timed anymore, start over
	if sg.haveLast && sample.Timestamp-sg.last.Timestamp > sg.gapTimeout {
		sg.resets++
		sg.startLap(sample, true)
		return Event{Kind: EventNone}
	}

	if sg.haveLast {
		if lap := sg.lapBoundary(sample); lap != nil {
			return Event{Kind: EventLapCompleted, Lap: lap}
		}

		// non-monotonic without a wrap: discard, state unchanged
		if sample.Timestamp < sg.last.Timestamp ||
			sample.LapDistance < sg.last.LapDistance-backwardEps {
			sg.discarded++
			return Event{Kind: EventNone}
		}
		if sample.LapDistance == sg.last.LapDistance &&
			sample.Timestamp == sg.last.Timestamp {
			sg.discarded++
			return Event{Kind: EventNone}
		}
	}

	ev := Event{Kind: EventNone}
	if sg.haveLast && sample.Sector == sg.sector+1 && sample.Sector <= 3 {
		// crossing time interpolated between the straddling samples
		cross := (sg.last.Timestamp + sample.Timestamp) / 2
		switch sg.sector {
		case 1:
			sg.s1End = cross
			sg.s1Seen = true
			ev = Event{Kind: EventSectorCrossed, Sector: 1, SectorTime: cross - sg.current.StartedAt}
		case 2:
			sg.s2End = cross
			sg.s2Seen = true
			ev = Event{Kind: EventSectorCrossed, Sector: 2, SectorTime: cross - sg.s1End}
		}
		sg.sector = sample.Sector
	}

	sg.append(sample)
	return ev
}

// Flush finalizes the in-progress lap as invalid (incomplete) and
// clears all tracking state. Safe to call at any point; returns nil
// when no lap was in progress.
func (sg *Segmenter) Flush(reason string) *model.Lap {
	if sg.current == nil {
		return nil
	}
	lap := sg.current
	lap.Valid = false
	if lap.InvalidReason == "" {
		lap.InvalidReason = reason
	}
	if sg.haveLast {
		lap.TotalTime = sg.last.Timestamp - lap.StartedAt
	}
	sg.fillSectors(lap, lap.StartedAt+lap.TotalTime)
	sg.reset()
	return lap
}

// Reset drops all tracking state without emitting anything.
func (sg *Segmenter) Reset() {
	sg.reset()
}

// Rewind marks the current lap invalid and re-anchors tracking on the
// next sample. Used when the sim teleports the car backward, such as a
// flashback, where the distance regression is real rather than noise.
func (sg *Segmenter) Rewind(reason string) {
	if sg.current != nil && sg.current.Valid {
		sg.current.Valid = false
		sg.current.InvalidReason = reason
	}
	sg.haveLast = false
}

func (sg *Segmenter) reset() {
	sg.current = nil
	sg.haveLast = false
	sg.sector = 0
	sg.s1Seen = false
	sg.s2Seen = false
	sg.outLap = false
}

func (sg *Segmenter) startLap(sample model.Sample, outLap bool) {
	sg.current = &model.Lap{
		LapNumber: sample.LapNumber,
		Valid:     !outLap,
		StartedAt: sample.Timestamp,
	}
	sg.outLap = outLap
	if outLap {
		sg.current.InvalidReason = "out-lap"
	} else if sample.LapDistance > startLineWindow {
		// lap counter moved without the car being anywhere near the
		// line, cannot have been timed from its start
		sg.current.Valid = false
		sg.current.InvalidReason = "missed line"
	}
	sg.sector = 1
	if sample.Sector > 1 {
		sg.sector = sample.Sector
	}
	sg.s1Seen = false
	sg.s2Seen = false
	sg.append(sample)
}

// lapBoundary finalizes the current lap when the sample starts a new
// one, and seeds the next lap. Returns nil when no boundary occurred.
func (sg *Segmenter) lapBoundary(sample model.Sample) *model.Lap {
	drop := sg.last.LapDistance - sample.LapDistance
	wrapped := drop > minWrapDrop && drop > sg.maxDist/2
	numbered := sample.LapNumber > sg.current.LapNumber
	if !wrapped && !numbered {
		return nil
	}

	// crossing time from the straddling samples, weighted by how far
	// each sits from the line
	length := sg.last.LapDistance
	if sg.maxDist > length {
		length = sg.maxDist
	}
	before := length - sg.last.LapDistance
	after := sample.LapDistance
	cross := sample.Timestamp
	if span := before + after; span > 0 {
		cross = sg.last.Timestamp + (sample.Timestamp-sg.last.Timestamp)*(before/span)
	}

	lap := sg.current
	lap.TotalTime = cross - lap.StartedAt
	sg.fillSectors(lap, cross)
	if sg.last.LapDistance > sg.maxDist {
		sg.maxDist = sg.last.LapDistance
	}

	sg.startLap(sample, false)
	sg.current.StartedAt = cross
	return lap
}

// fillSectors derives the three sector times from the recorded crossing
// timestamps. The last observed boundary closes at end, so the sum of
// the sector times always equals the total time.
func (sg *Segmenter) fillSectors(lap *model.Lap, end float64) {
	switch {
	case sg.s1Seen && sg.s2Seen:
		lap.SectorTimes[0] = sg.s1End - lap.StartedAt
		lap.SectorTimes[1] = sg.s2End - sg.s1End
		lap.SectorTimes[2] = end - sg.s2End
	case sg.s1Seen:
		lap.SectorTimes[0] = sg.s1End - lap.StartedAt
		lap.SectorTimes[1] = end - sg.s1End
		lap.SectorTimes[2] = 0
		if lap.Valid {
			lap.Valid = false
			lap.InvalidReason = "missing sector"
		}
	default:
		lap.SectorTimes[0] = end - lap.StartedAt
		lap.SectorTimes[1] = 0
		lap.SectorTimes[2] = 0
		if lap.Valid {
			lap.Valid = false
			lap.InvalidReason = "missing sector"
		}
	}
}

func (sg *Segmenter) append(sample model.Sample) {
	if sample.Flagged() && sg.current.Valid {
		sg.current.Valid = false
		switch {
		case sample.OffTrack:
			sg.current.InvalidReason = "off-track"
		case sample.WallContact:
			sg.current.InvalidReason = "wall contact"
		default:
			sg.current.InvalidReason = "penalty"
		}
	}
	sg.current.Samples = append(sg.current.Samples, sample)
	sg.last = sample
	sg.haveLast = true
}
