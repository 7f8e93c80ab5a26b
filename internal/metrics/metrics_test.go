package metrics_test

import (
	"testing"

	"github.com/kiranshivaraju/inventomatic/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDecision(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveDecision("reset_password", "ALLOWED")
	m.ObserveDecision("reset_password", "ALLOWED")
	m.ObserveDecision("reset_password", "CROSS_TENANT")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("reset_password", "ALLOWED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("reset_password", "CROSS_TENANT")))
}

func TestObserveRequest_BucketsStatus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveRequest("GET", 200, 0.01)
	m.ObserveRequest("GET", 204, 0.01)
	m.ObserveRequest("GET", 404, 0.01)
	m.ObserveRequest("POST", 503, 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "5xx")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveDecision("a", "b")
		m.ObserveProvisioned("STAFF")
		m.ObserveLogin("success")
		m.ObserveRequest("GET", 200, 0)
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New(prometheus.NewRegistry())
		metrics.New(prometheus.NewRegistry())
	})
}
