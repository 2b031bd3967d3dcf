package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"apexcoach/pkg/config"
	"apexcoach/pkg/store"
)

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Print the stored report for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	st, err := store.NewManager(config.DBFile)
	if err != nil {
		return err
	}
	defer st.Close()

	text, err := st.Report(args[0])
	if errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("no report stored for session %s", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
