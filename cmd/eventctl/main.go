package main

import (
	"os"

	"github.com/rudderlabs/rudder-eventcore/cmd/eventctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
