package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"apexcoach/pkg/helper"
	"apexcoach/pkg/model"
)

// RenderReport turns a snapshot into the session report text: lap
// table, corner time loss, mastery, skills and driver profile.
func RenderReport(snap *model.Snapshot) string {
	var b bytes.Buffer

	valid := lo.CountBy(snap.Laps, func(l model.LapSummary) bool { return l.Valid })
	fmt.Fprintf(&b, "Session report: %s\n", snap.TrackName)
	fmt.Fprintf(&b, "Session %s, %d laps (%d valid)\n", snap.SessionID, len(snap.Laps), valid)
	if snap.FastestLap != nil {
		fmt.Fprintf(&b, "Best lap %s\n", helper.SecondsToMinutes(snap.FastestLap.TotalTime))
	}
	b.WriteString("\n")

	renderLapTable(&b, snap.Laps)

	if len(snap.TimeLoss) > 0 {
		b.WriteString("\nWhere the time goes:\n")
		renderTimeLossTable(&b, snap.TimeLoss, snap.Corners)
	}
	if len(snap.Mastery) > 0 {
		b.WriteString("\nCorner mastery:\n")
		renderMasteryTable(&b, snap.Mastery)
	}
	if snap.Skills != nil {
		b.WriteString("\nSkills:\n")
		renderSkillsTable(&b, snap.Skills)
	}
	if snap.Profile != nil && len(snap.Profile.Tags) > 0 {
		fmt.Fprintf(&b, "\nDriving style: %s\n", strings.Join(snap.Profile.Tags, ", "))
	}
	if snap.Consistency.LapSigma != nil {
		fmt.Fprintf(&b, "Lap-to-lap spread: %.3fs\n", *snap.Consistency.LapSigma)
	}
	if snap.Optimal.SectorBest != nil {
		fmt.Fprintf(&b, "Optimal lap (best sectors): %s\n", helper.SecondsToMinutes(*snap.Optimal.SectorBest))
	}
	if snap.Optimal.BinBest != nil {
		fmt.Fprintf(&b, "Optimal lap (best stretches): %s\n", helper.SecondsToMinutes(*snap.Optimal.BinBest))
	}

	return b.String()
}

func renderLapTable(b *bytes.Buffer, laps []model.LapSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(b)
	t.SetStyle(table.StyleRounded)
	t.AppendSeparator()

	t.AppendHeader(table.Row{"LAP", "TIME", "S1", "S2", "S3", ""})
	for _, lap := range laps {
		note := ""
		if lap.IsPB {
			note = "PB"
		} else if !lap.Valid {
			note = lap.InvalidReason
		}
		t.AppendRow([]interface{}{
			lap.LapNumber,
			helper.SecondsToMinutes(lap.TotalTime),
			helper.ToSectorTime(lap.SectorTimes[0]),
			helper.ToSectorTime(lap.SectorTimes[1]),
			helper.ToSectorTime(lap.SectorTimes[2]),
			note,
		})
	}
	t.Render()
}

func renderTimeLossTable(b *bytes.Buffer, entries []model.TimeLossEntry, corners []model.Corner) {
	t := table.NewWriter()
	t.SetOutputMirror(b)
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"TURN", "AT", "LOST", "ADVICE"})
	for _, e := range entries {
		loss := e.MeanDelta
		t.AppendRow([]interface{}{
			e.TurnNumber,
			apexLocation(corners, e.TurnNumber),
			helper.FormatDelta(&loss),
			e.Reason,
		})
	}
	t.Render()
}

func apexLocation(corners []model.Corner, turn int) string {
	for _, c := range corners {
		if c.TurnNumber == turn {
			return helper.FormatDistance(c.Apex)
		}
	}
	return "-"
}

func renderMasteryTable(b *bytes.Buffer, mastery []model.CornerMastery) {
	t := table.NewWriter()
	t.SetOutputMirror(b)
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"TURN", "SCORE", "TREND"})
	for _, m := range mastery {
		t.AppendRow([]interface{}{m.TurnNumber, m.Score, trendSymbol(m.Trend)})
	}
	t.Render()
}

func renderSkillsTable(b *bytes.Buffer, s *model.SkillScores) {
	t := table.NewWriter()
	t.SetOutputMirror(b)
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"BRAKING", "THROTTLE", "EXIT", "CONSISTENCY", "LINE"})
	t.AppendRow([]interface{}{s.Braking, s.Throttle, s.Exit, s.Consistency, s.Line})
	t.Render()
}

func trendSymbol(trend model.MasteryTrend) string {
	switch trend {
	case model.TrendUp:
		return "improving"
	case model.TrendDown:
		return "slipping"
	default:
		return "steady"
	}
}

// WriteJSONReport dumps the full snapshot next to the tick logs so the
// session can be inspected outside the dashboard. Returns the path.
func WriteJSONReport(dir string, snap *model.Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating data dir %s", dir)
	}
	path := filepath.Join(dir, "report_"+snap.SessionID+".json")
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encoding report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing report %s", path)
	}
	return path, nil
}
