package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	eventcore "github.com/rudderlabs/rudder-eventcore"
	"github.com/rudderlabs/rudder-eventcore/corelog"
	"github.com/rudderlabs/rudder-eventcore/uploader"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Roll over the open batch and drain every closed batch once",
	RunE:  runFlush,
}

func init() {
	rootCmd.AddCommand(flushCmd)
}

func runFlush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := eventcore.New(cfg, corelog.NewDefaultLoggers(), uploader.HostCallbacks{}, nil)
	if err != nil {
		return fmt.Errorf("eventctl: start engine: %w", err)
	}
	defer engine.Close()

	engine.Flush()
	// flush is fire-and-forget against the worker goroutine; give it a beat
	// to drain before the process exits underneath it.
	time.Sleep(2 * time.Second)
	fmt.Println("flush requested")
	return nil
}
