// Package metrics holds the Prometheus instruments shared by the inbound
// webhook and the reconciliation loop. It lives outside the HTTP adapter so
// the extender can record without importing an inbound package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for workbot.
// Pass to components that need to record metrics.
type Metrics struct {
	MessagesTotal     *prometheus.CounterVec
	MessageDuration   *prometheus.HistogramVec
	DuplicateDrops    prometheus.Counter
	ActiveSessions    prometheus.Gauge
	ReconcilePasses   prometheus.Counter
	ExtensionsTotal   prometheus.Counter
	ExtendFailures    prometheus.Counter
	ReconcileDuration prometheus.Histogram
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		MessagesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "workbot",
				Name:      "messages_total",
				Help:      "Total webhook messages processed",
			},
			[]string{"method", "status"}, // method=POST, status=ok/error
		),
		MessageDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "workbot",
				Name:      "message_duration_seconds",
				Help:      "Webhook handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		DuplicateDrops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "workbot",
				Name:      "duplicate_messages_dropped_total",
				Help:      "Webhook deliveries dropped as duplicates",
			},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "workbot",
				Name:      "active_sessions",
				Help:      "Open work sessions observed by the last reconcile pass",
			},
		),
		ReconcilePasses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "workbot",
				Name:      "reconcile_passes_total",
				Help:      "Completed reconciliation passes",
			},
		),
		ExtensionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "workbot",
				Name:      "calendar_extensions_total",
				Help:      "Calendar events topped up by the reconciler",
			},
		),
		ExtendFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "workbot",
				Name:      "calendar_extend_failures_total",
				Help:      "Calendar patch failures during reconciliation",
			},
		),
		ReconcileDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "workbot",
				Name:      "reconcile_duration_seconds",
				Help:      "Reconciliation pass duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}
