// Package eventcore composes BatchManager, Storage, RetryHeadersProvider,
// BackoffPolicy and Uploader into the single engine spec.md §2 describes,
// the way the teacher SDK's top-level LDClient wires together its own
// components (data source, data store, event processor) from one Config.
package eventcore

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // registers the "postgres" sqlx driver
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" sqlx driver
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/rudderlabs/rudder-eventcore/backoffpolicy"
	"github.com/rudderlabs/rudder-eventcore/batchmanager"
	"github.com/rudderlabs/rudder-eventcore/config"
	"github.com/rudderlabs/rudder-eventcore/corelog"
	"github.com/rudderlabs/rudder-eventcore/kvstore"
	"github.com/rudderlabs/rudder-eventcore/metrics"
	"github.com/rudderlabs/rudder-eventcore/retryheaders"
	"github.com/rudderlabs/rudder-eventcore/storage"
	"github.com/rudderlabs/rudder-eventcore/uploader"
)

// Engine is the assembled, running system: Storage plus a started Uploader,
// the unit a host app constructs once per write key.
type Engine struct {
	storage  *storage.Storage
	uploader *uploader.Uploader
	metrics  *metrics.Metrics
}

// New builds and starts an Engine from cfg. The returned Engine's Uploader is
// already Running; callers shut it down with Close.
func New(cfg config.Config, loggers corelog.Loggers, host uploader.HostCallbacks, reg prometheus.Registerer) (*Engine, error) {
	counterKey := fmt.Sprintf("rudderstack.event.batch.index.%s", cfg.WriteKey)

	batches, kv, err := buildBackends(cfg, counterKey)
	if err != nil {
		return nil, fmt.Errorf("eventcore: build backends: %w", err)
	}

	st := storage.New(batches, kv, cfg.MaxPayloadSize)
	retryProvider := retryheaders.New(st)
	backoff := backoffpolicy.New(backoffpolicy.DefaultConfig())

	var limiter *rate.Limiter
	if cfg.UploadsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.UploadsPerSecond), 1)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	sender := uploader.NewDefaultHTTPSender(uploader.HTTPSenderConfig{
		DataPlaneURL: cfg.DataPlaneURL,
		WriteKey:     cfg.WriteKey,
		GzipEnabled:  cfg.GzipEnabled,
		Client:       http.DefaultClient,
	})

	up := uploader.New(uploader.Config{
		Storage:      st,
		RetryHeaders: retryProvider,
		Backoff:      backoff,
		Sender:       sender,
		Loggers:      loggers,
		Host:         host,
		RateLimiter:  limiter,
		OnBatchUpload: func(success bool, reason string, elapsed time.Duration) {
			m.Observe(success, reason, elapsed.Seconds())
		},
	})
	up.Start()

	return &Engine{storage: st, uploader: up, metrics: m}, nil
}

// buildBackends selects the BatchManager/KeyValueStore pair matching
// cfg.Backend; a host never mixes the two (SPEC_FULL.md §4.2).
func buildBackends(cfg config.Config, counterKey string) (batchmanager.Manager, kvstore.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		kv, err := kvstore.NewFileStore(filepath.Join(cfg.StoreDir, "kv.properties"))
		if err != nil {
			return nil, nil, err
		}
		batches, err := batchmanager.NewFileManager(filepath.Join(cfg.StoreDir, "batches"), kv, counterKey, cfg.Platform, cfg.MaxBatchSize)
		if err != nil {
			return nil, nil, err
		}
		return batches, kv, nil

	case config.BackendSQL:
		db, err := sqlx.Open(cfg.SQLDriver, cfg.SQLDataSrc)
		if err != nil {
			return nil, nil, err
		}
		kv, err := kvstore.NewSQLStore(db, cfg.WriteKey)
		if err != nil {
			return nil, nil, err
		}
		batches, err := batchmanager.NewSQLManager(db, cfg.WriteKey, kv, counterKey, cfg.Platform, cfg.MaxBatchSize)
		if err != nil {
			return nil, nil, err
		}
		return batches, kv, nil

	default: // config.BackendMemory
		kv := kvstore.NewMemoryStore()
		batches := batchmanager.NewMemoryManager(kv, counterKey, cfg.Platform, cfg.MaxBatchSize)
		return batches, kv, nil
	}
}

// Track is storage.write(EVENT, payload) plus a flush signal: the public
// entry point a host's analytics call eventually reaches.
func (e *Engine) Track(payload string) error {
	if err := e.storage.WriteEvent(payload); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.BatchesStored.Inc()
	}
	e.uploader.Flush()
	return nil
}

// Flush requests an immediate drain of whatever is currently open/closed.
func (e *Engine) Flush() { e.uploader.Flush() }

// Status reports the Uploader's current lifecycle state.
func (e *Engine) Status() uploader.State { return e.uploader.State() }

// Close cancels the Uploader and waits for its worker to exit.
func (e *Engine) Close() { e.uploader.Cancel() }
