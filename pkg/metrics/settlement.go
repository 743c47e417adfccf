package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics counts gateway webhook deliveries by event type and outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Observe records one delivery. Outcomes are processed, duplicate, ignored or failed.
func (m *WebhookMetrics) Observe(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// PayoutMetrics tracks the weekly invoice batch.
type PayoutMetrics struct {
	invoices    *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
}

func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payouts",
		Name:      "invoices_total",
		Help:      "Payout invoice generation results per organization.",
	}, []string{"result"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payouts",
		Name:      "document_failures_total",
		Help:      "Failed best-effort invoice side effects (pdf, upload, email).",
	}, []string{"step"})
	reg.MustRegister(invoices, sideEffects)
	return &PayoutMetrics{invoices: invoices, sideEffects: sideEffects}
}

func (m *PayoutMetrics) AddInvoices(result string, n int) {
	if m == nil || m.invoices == nil || n <= 0 {
		return
	}
	m.invoices.WithLabelValues(normalizeLabel(result)).Add(float64(n))
}

func (m *PayoutMetrics) IncDocumentFailure(step string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(step)).Inc()
}
