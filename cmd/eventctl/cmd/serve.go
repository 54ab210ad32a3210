package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	eventcore "github.com/rudderlabs/rudder-eventcore"
	"github.com/rudderlabs/rudder-eventcore/corelog"
	"github.com/rudderlabs/rudder-eventcore/metrics"
	"github.com/rudderlabs/rudder-eventcore/uploader"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Hold the process open so the background uploader keeps draining",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9100", "address to serve /metrics on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loggers := corelog.NewDefaultLoggers()

	registry := prometheus.NewRegistry()
	engine, err := eventcore.New(cfg, loggers, uploader.HostCallbacks{
		HandleInvalidWriteKey: func() { loggers.Error("invalid write key; uploader stopped") },
		DisableSource:         func() { loggers.Error("source disabled; uploader stopped") },
	}, registry)
	if err != nil {
		return fmt.Errorf("eventctl: start engine: %w", err)
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loggers.Infof("eventctl serving metrics on %s", metricsAddr)
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		loggers.Info("shutting down")
		_ = server.Shutdown(context.Background())
	}
	return nil
}
