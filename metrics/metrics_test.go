package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve_SuccessIncrementsUploadedNotRetries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe(true, "", 0.25)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesUploaded))
}

func TestObserve_FailureIncrementsRetriesByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe(false, "client-timeout", 0.1)
	m.Observe(false, "client-timeout", 0.1)
	m.Observe(false, "server-500", 0.1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.UploadRetries.WithLabelValues("client-timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UploadRetries.WithLabelValues("server-500")))
}

func TestObserve_NilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Observe(true, "", 1) })
}

func TestObserve_EmptyReasonFallsBackToUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe(false, "", 0.1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.UploadRetries.WithLabelValues("unknown")))
}
