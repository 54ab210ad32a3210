// Package metrics is the Metrics component SPEC_FULL.md §2/§6 adds to the
// runtime graph: a small prometheus.Registerer-backed counter/histogram set
// observing the engine from the outside, never gating behaviour. Grounded on
// ChuLiYu-raft-recovery and szibis-metrics-governor, both of which wire
// prometheus/client_golang directly for their own operational metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the fixed set of observations the Uploader and Storage report
// into. The zero value is not usable; construct with New.
type Metrics struct {
	BatchesStored   prometheus.Counter
	BatchesUploaded prometheus.Counter
	UploadRetries   *prometheus.CounterVec
	UploadDuration  prometheus.Histogram
}

// New registers eventcore's metrics against reg. Passing prometheus.NewRegistry()
// keeps a test's metrics isolated from prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BatchesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventcore_batches_stored_total",
			Help: "Events appended to the open batch via Storage.WriteEvent.",
		}),
		BatchesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventcore_batches_uploaded_total",
			Help: "Closed batches successfully uploaded and removed.",
		}),
		UploadRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventcore_upload_retries_total",
			Help: "Retryable upload failures, labeled by the reason string the caller passes to Observe.",
		}, []string{"reason"}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventcore_upload_duration_seconds",
			Help:    "Wall time of a single http.send attempt that succeeded or failed retryably.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler exposes the registered metrics for a host to mount, e.g. at
// "/metrics" (spec §6 "exposed via an http.Handler the host can mount").
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Observe wires a single upload attempt's outcome into the counters/histogram
// above; callers pass the empty string for reason on success.
func (m *Metrics) Observe(success bool, reason string, seconds float64) {
	if m == nil {
		return
	}
	m.UploadDuration.Observe(seconds)
	if success {
		m.BatchesUploaded.Inc()
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.UploadRetries.WithLabelValues(reason).Inc()
}
