package pubsub

// Topic names on the fan-out buses.
const (
	TopicSamples   = "samples"   // telemetry.Update, every decoded wire item
	TopicSnapshots = "snapshots" // *model.Snapshot, after each atomic update
	TopicCues      = "cues"      // model.Cue, fire-and-forget
	TopicLaps      = "laps"      // model.LapSummary, on finalize
	TopicPB        = "pb"        // *model.Lap, on reference replacement
	TopicReports   = "reports"   // rendered session report text
)
