package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync targets
const (
	TargetRole       = "role"
	TargetSuperAdmin = "super_admin"
)

// Metrics holds the Prometheus collectors for permission propagation
type Metrics struct {
	registry *prometheus.Registry

	SyncTotal    *prometheus.CounterVec
	SyncDuration *prometheus.HistogramVec

	SubscriptionsActive prometheus.Gauge
	SubscriptionErrors  *prometheus.CounterVec

	ReconcileRunsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		SyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kod_permission_sync_total",
				Help: "Broadcast store writes by target and result",
			},
			[]string{"target", "result"},
		),
		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kod_permission_sync_duration_seconds",
				Help:    "Broadcast store write latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		SubscriptionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kod_permission_subscriptions_active",
				Help: "Realtime permission listeners currently attached",
			},
		),
		SubscriptionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kod_permission_subscription_errors_total",
				Help: "Subscriber transitions into the error state",
			},
			[]string{"reason"},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kod_permission_reconcile_runs_total",
				Help: "Scheduled and manual permission resync runs",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.SyncTotal,
		m.SyncDuration,
		m.SubscriptionsActive,
		m.SubscriptionErrors,
		m.ReconcileRunsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSync records one broadcast write.
func (m *Metrics) ObserveSync(target string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.SyncTotal.WithLabelValues(target, result).Inc()
	m.SyncDuration.WithLabelValues(target).Observe(time.Since(started).Seconds())
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is used by tests to gather collected values.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
