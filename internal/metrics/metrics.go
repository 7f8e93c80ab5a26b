package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "inventomatic"

// Metrics holds all Prometheus metrics for the access core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	ProvisionedTotal *prometheus.CounterVec
	LoginsTotal      *prometheus.CounterVec
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Authorization decisions by action and outcome.",
		}, []string{"action", "reason"}), // reason: ALLOWED or a denial reason
		ProvisionedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accounts",
			Name:      "provisioned_total",
			Help:      "Principals provisioned by role.",
		}, []string{"role"}),
		LoginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}), // outcome: success, invalid_credentials, locked_out
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) ObserveDecision(action, reason string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(action, reason).Inc()
}

func (m *Metrics) ObserveProvisioned(role string) {
	if m == nil {
		return
	}
	m.ProvisionedTotal.WithLabelValues(role).Inc()
}

func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRequest(method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, statusLabel(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(seconds)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}
