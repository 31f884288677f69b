// Package http provides the HTTP transport adapter for the snippet API.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SnipVault.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	AdmissionDecisions *prometheus.CounterVec
	AdmissionBypasses  *prometheus.CounterVec
	ViolationsTotal    prometheus.Counter
	RateLimitKeys      prometheus.Gauge
	ActiveSessions     prometheus.Gauge
	AuditDropsTotal    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snipvault",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "snipvault",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
		AdmissionDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snipvault",
				Name:      "admission_decisions_total",
				Help:      "Total admission decisions by policy and outcome",
			},
			[]string{"policy", "outcome"}, // outcome=allow/deny
		),
		AdmissionBypasses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snipvault",
				Name:      "admission_bypasses_total",
				Help:      "Total requests that skipped admission via a bypass rule",
			},
			[]string{"rule"},
		),
		ViolationsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "snipvault",
				Name:      "admission_violations_total",
				Help:      "Total progressive-penalty violations recorded",
			},
		),
		RateLimitKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "snipvault",
				Name:      "rate_limit_keys",
				Help:      "Number of active rate limit counter keys",
			},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "snipvault",
				Name:      "active_sessions",
				Help:      "Number of live authenticated sessions",
			},
		),
		AuditDropsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "snipvault",
				Name:      "audit_drops_total",
				Help:      "Total denial audit records dropped due to backpressure",
			},
		),
	}
}
