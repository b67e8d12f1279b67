package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestBookingMetricsCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveTransition("owner_confirm", OutcomeApplied)
	m.ObserveTransition("owner_confirm", OutcomeAlreadyApplied)
	m.ObserveTransition("owner_confirm", OutcomeApplied)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "rentalhub_booking_transitions_total")
	if mf == nil {
		t.Fatal("transition metric missing")
	}
	var applied float64
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "outcome", OutcomeApplied) {
			applied = metric.GetCounter().GetValue()
		}
	}
	if applied != 2 {
		t.Fatalf("expected 2 applied transitions, got %f", applied)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *BookingMetrics
	m.ObserveTransition("cancel", OutcomeRejected)
	NewBookingMetrics(nil).ObserveSettlement("succeeded", OutcomeApplied)
	NewCronJobMetrics(nil).IncSkipped("job")
}

func TestOutboxMetricsCountsRowsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObserveBatch(3)
	m.ObserveRow("booking_status_changed", PublishPublished)
	m.ObserveRow("booking_status_changed", PublishDeadLettered)
	m.ObserveRow("", PublishRetried)
	m.ObserveLag(2 * time.Second)
	m.ObserveLag(-time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "rentalhub_outbox_rows_total", "outcome", PublishRetried); err != nil {
		t.Fatalf("fetch retried: %v", err)
	} else if got != 1 {
		t.Fatalf("expected retried=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "rentalhub_outbox_rows_total", "event_type", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown event type counted once, got %f (%v)", got, err)
	}
	lag := findMetricFamily(mfs, "rentalhub_outbox_publish_lag_seconds")
	if lag == nil || lag.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatal("expected a single lag sample")
	}

	var noop *OutboxMetrics
	noop.ObserveRow("x", PublishPublished)
	NewOutboxMetrics(nil).ObserveBatch(1)
}
