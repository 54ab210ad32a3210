// Package cmd is the eventctl CLI, a small cobra+viper wrapper around the
// eventcore engine for manual operation (SPEC_FULL.md §6), in the same
// cobra/viper shape as solatis-trapperkeeper's cmd/trapperkeeper and
// ChuLiYu-raft-recovery's own cmd/ package.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rudderlabs/rudder-eventcore/config"
)

var (
	configFile   string
	dataPlaneURL string
	writeKey     string
	backend      string
	storeDir     string
)

var rootCmd = &cobra.Command{
	Use:   "eventctl",
	Short: "Operate a rudder-eventcore batching/upload engine",
	Long:  `eventctl drives an eventcore engine for manual inspection and operation: flushing pending batches, checking uploader status, or holding the process open to drain continuously.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file path")
	rootCmd.PersistentFlags().StringVar(&dataPlaneURL, "data-plane-url", "", "data plane base URL")
	rootCmd.PersistentFlags().StringVar(&writeKey, "write-key", "", "write key")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "backend: memory, file, or sql")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "on-disk directory for the file backend")

	viper.SetEnvPrefix("EVENTCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("dataPlaneUrl", rootCmd.PersistentFlags().Lookup("data-plane-url"))
	_ = viper.BindPFlag("writeKey", rootCmd.PersistentFlags().Lookup("write-key"))
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("storeDir", rootCmd.PersistentFlags().Lookup("store-dir"))
}

// Execute runs the eventctl root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig builds a config.Config from (in ascending priority) the YAML
// file, EVENTCTL_* environment variables, and explicit flags — viper's usual
// file/env/flag layering, grounded on solatis-trapperkeeper's config.LoadConfig.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("eventctl: load config file: %w", err)
		}
		cfg = loaded
	}

	if v := viper.GetString("dataPlaneUrl"); v != "" {
		cfg.DataPlaneURL = v
	}
	if v := viper.GetString("writeKey"); v != "" {
		cfg.WriteKey = v
	}
	if v := viper.GetString("backend"); v != "" {
		cfg.Backend = config.BackendKind(v)
	}
	if v := viper.GetString("storeDir"); v != "" {
		cfg.StoreDir = v
	}

	if cfg.WriteKey == "" {
		return config.Config{}, fmt.Errorf("eventctl: --write-key (or EVENTCTL_WRITEKEY, or config writeKey) is required")
	}
	return cfg, nil
}
