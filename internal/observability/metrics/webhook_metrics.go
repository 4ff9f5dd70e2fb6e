package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes. Keep this set small; it is a label value.
const (
	WebhookOutcomeSkipped          = "skipped"
	WebhookOutcomeInvalidSignature = "invalid_signature"
	WebhookOutcomeLookupFailed     = "provider_lookup_failed"
	WebhookOutcomeNotApproved      = "not_approved"
	WebhookOutcomeDuplicate        = "duplicate"
	WebhookOutcomeSettled          = "settled"
	WebhookOutcomeIgnored          = "ignored"
)

// WebhookMetrics holds the Prometheus collectors for the payment webhook path.
type WebhookMetrics struct {
	received      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	lookupLatency *prometheus.HistogramVec
	settleLatency *prometheus.HistogramVec
}

var (
	webhookMetricsOnce sync.Once
	webhookMetrics     *WebhookMetrics
)

// Webhook returns the singleton webhook metrics registry.
func Webhook() *WebhookMetrics {
	return WebhookWithConfig(Config{})
}

// WebhookWithConfig returns the singleton webhook metrics registry using config labels.
func WebhookWithConfig(cfg Config) *WebhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetrics = newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

// NewWebhookMetricsForTest builds collectors on a private registry.
func NewWebhookMetricsForTest(registerer prometheus.Registerer) *WebhookMetrics {
	return newWebhookMetrics(registerer, Config{ServiceName: "obrapay-test", Environment: "test"})
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "obrapay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "obrapay_webhook_received_total",
		Help:        "Payment webhook deliveries by provider and format.",
		ConstLabels: constLabels,
	}, []string{"provider", "format"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "obrapay_webhook_outcomes_total",
		Help:        "Terminal outcome of each payment webhook delivery.",
		ConstLabels: constLabels,
	}, []string{"provider", "outcome"})
	lookupLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "obrapay_provider_lookup_duration_seconds",
		Help:        "Latency of the provider payment status lookup.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		ConstLabels: constLabels,
	}, []string{"provider", "environment"})
	settleLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "obrapay_settlement_duration_seconds",
		Help:        "Time spent applying settlement side effects.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"product_type"})

	registerer.MustRegister(received, outcomes, lookupLatency, settleLatency)

	return &WebhookMetrics{
		received:      received,
		outcomes:      outcomes,
		lookupLatency: lookupLatency,
		settleLatency: settleLatency,
	}
}

func (m *WebhookMetrics) IncReceived(provider, format string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(sanitizeLabel(provider), sanitizeLabel(format)).Inc()
}

func (m *WebhookMetrics) IncOutcome(provider, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(sanitizeLabel(provider), sanitizeLabel(outcome)).Inc()
}

func (m *WebhookMetrics) ObserveLookup(provider, environment string, duration time.Duration) {
	if m == nil {
		return
	}
	m.lookupLatency.WithLabelValues(sanitizeLabel(provider), sanitizeLabel(environment)).Observe(duration.Seconds())
}

func (m *WebhookMetrics) ObserveSettlement(productType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.settleLatency.WithLabelValues(sanitizeLabel(productType)).Observe(duration.Seconds())
}

func sanitizeLabel(val string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return "unknown"
	}
	return val
}
