package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.Observe("payment.failed", "processed")
	m.Observe("payment.failed", "processed")
	m.Observe("payment.failed", "duplicate")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "tindahub_payments_webhook_events_total")
	if mf == nil {
		t.Fatal("webhook metric family missing")
	}
	var processed float64
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "outcome", "processed") {
			processed = metric.GetCounter().GetValue()
		}
	}
	if processed != 2 {
		t.Fatalf("expected processed=2, got %f", processed)
	}
}

func TestPayoutMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPayoutMetrics(reg)
	m.AddInvoices("created", 3)
	m.AddInvoices("skipped", 0)
	m.IncDocumentFailure("email")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "tindahub_payouts_invoices_total", "result", "created"); err != nil || got != 3 {
		t.Fatalf("expected created=3, got %f err=%v", got, err)
	}
	if _, err := fetchCounterValue(mfs, "tindahub_payouts_invoices_total", "result", "skipped"); err == nil {
		t.Fatal("zero adds should not create a series")
	}
	if got, err := fetchCounterValue(mfs, "tindahub_payouts_document_failures_total", "step", "email"); err != nil || got != 1 {
		t.Fatalf("expected email failure=1, got %f err=%v", got, err)
	}
}
