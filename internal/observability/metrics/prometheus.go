// Package metrics provides Prometheus metrics for the lifecycle service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	TransitionsTotal     *prometheus.CounterVec
	TransitionFailures   *prometheus.CounterVec
	HandlerDuration      prometheus.Histogram
	NotificationsSent    prometheus.Counter
	NotificationsFailed  prometheus.Counter
	HistoryRowsWritten   prometheus.Counter
	AuditRowsWritten     prometheus.Counter
	ActivePrescriptions  prometheus.Gauge
	VersionConflictsSeen prometheus.Counter
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescription_transitions_total",
			Help: "Successful prescription status transitions",
		}, []string{"kind"}),
		TransitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescription_transition_failures_total",
			Help: "Rejected or failed transition commands",
		}, []string{"reason"}),
		HandlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifecycle_handler_duration_seconds",
			Help:    "Status-change event handler duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications handed to the outbound collaborator",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notification sends that failed (best-effort, not retried)",
		}),
		HistoryRowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "status_history_rows_total",
			Help: "Status-history rows appended",
		}),
		AuditRowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_rows_total",
			Help: "Audit log rows appended",
		}),
		ActivePrescriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prescriptions_active",
			Help: "Prescriptions in a non-terminal status",
		}),
		VersionConflictsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_version_conflicts_total",
			Help: "Optimistic concurrency conflicts on save",
		}),
	}

	prometheus.MustRegister(
		m.TransitionsTotal,
		m.TransitionFailures,
		m.HandlerDuration,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.HistoryRowsWritten,
		m.AuditRowsWritten,
		m.ActivePrescriptions,
		m.VersionConflictsSeen,
	)

	return m
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
