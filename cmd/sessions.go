package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"apexcoach/pkg/config"
	"apexcoach/pkg/helper"
	"apexcoach/pkg/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List archived sessions",
	RunE:  runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	st, err := store.NewManager(config.DBFile)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.Sessions()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendSeparator()
	t.AppendHeader(table.Row{"SESSION", "TRACK", "STARTED", "DURATION", "LAPS", "VALID", "BEST"})
	for _, rec := range recs {
		t.AppendRow([]interface{}{
			rec.ID,
			rec.Track,
			rec.StartedAt.Format("2006-01-02 15:04"),
			duration(rec),
			rec.Laps,
			rec.ValidLaps,
			bestTime(rec.BestLap),
		})
	}
	t.Render()
	return nil
}

func duration(rec store.SessionRecord) string {
	if rec.EndedAt.IsZero() {
		return "running"
	}
	return helper.SecondsToHoursAndMinutes(rec.EndedAt.Sub(rec.StartedAt).Seconds())
}

func bestTime(best *float64) string {
	if best == nil {
		return "-"
	}
	return helper.SecondsToMinutes(*best)
}
