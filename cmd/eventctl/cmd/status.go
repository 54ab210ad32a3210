package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	eventcore "github.com/rudderlabs/rudder-eventcore"
	"github.com/rudderlabs/rudder-eventcore/corelog"
	"github.com/rudderlabs/rudder-eventcore/uploader"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the uploader's lifecycle state (the pending batch count is not reported)",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := eventcore.New(cfg, corelog.NewDefaultLoggers(), uploader.HostCallbacks{}, nil)
	if err != nil {
		return fmt.Errorf("eventctl: start engine: %w", err)
	}
	defer engine.Close()

	state := "idle"
	switch engine.Status() {
	case uploader.Running:
		state = "running"
	case uploader.Cancelled:
		state = "cancelled"
	}
	fmt.Printf("uploader: %s\n", state)
	return nil
}
