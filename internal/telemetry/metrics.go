package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	TransitionsTotal *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics. Call once; promauto
// registers on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_transitions_total",
				Help: "Total fulfillment transition attempts by target state and outcome",
			},
			[]string{"to", "outcome"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_request_duration_seconds",
				Help:    "Request duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ProviderErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_provider_errors_total",
				Help: "Total provider API errors by operation and error type",
			},
			[]string{"operation", "error_type"},
		),
		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_webhook_events_total",
				Help: "Total inbound webhook events by description and outcome",
			},
			[]string{"description", "outcome"},
		),
	}
}

// RecordTransition records a transition attempt.
func (m *Metrics) RecordTransition(to, outcome string) {
	m.TransitionsTotal.WithLabelValues(to, outcome).Inc()
}

// RecordDuration records an operation duration.
func (m *Metrics) RecordDuration(operation string, seconds float64) {
	m.RequestDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(operation, errorType string) {
	m.ProviderErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordWebhook records an inbound webhook event.
func (m *Metrics) RecordWebhook(description, outcome string) {
	m.WebhookEvents.WithLabelValues(description, outcome).Inc()
}
