package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Notification metrics
	NotificationsTotal *prometheus.CounterVec
	NotificationErrors *prometheus.CounterVec

	// Reconciliation metrics
	ReconcileOutcomes *prometheus.CounterVec

	// Refund metrics
	RefundsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Provider gateway metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	CircuitBreakerState     *prometheus.GaugeVec

	// Background sweep metrics
	SweepRunsTotal    *prometheus.CounterVec
	SweepDuration     *prometheus.HistogramVec
	WebhookLogEntries *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total number of inbound payment notifications by result",
			},
			[]string{"result"},
		),
		NotificationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_errors_total",
				Help:      "Total number of rejected notifications by failure reason",
			},
			[]string{"reason"},
		),
		ReconcileOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_outcomes_total",
				Help:      "Total number of reconciliation outcomes by channel and kind",
			},
			[]string{"channel", "outcome"},
		),
		RefundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refunds_total",
				Help:      "Total number of refund requests by status",
			},
			[]string{"status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total number of gateway API calls by method and status",
			},
			[]string{"method", "status"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Gateway API call duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_runs_total",
				Help:      "Total number of background sweep runs by sweep and status",
			},
			[]string{"sweep", "status"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Background sweep duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"sweep"},
		),
		WebhookLogEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "webhook_log_entries",
				Help:      "Number of webhook log entries by status",
			},
			[]string{"status"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.NotificationsTotal,
		m.NotificationErrors,
		m.ReconcileOutcomes,
		m.RefundsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProviderRequestsTotal,
		m.ProviderRequestDuration,
		m.CircuitBreakerState,
		m.SweepRunsTotal,
		m.SweepDuration,
		m.WebhookLogEntries,
	)

	return m
}
