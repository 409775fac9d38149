package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOutboxMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetrics(reg)
	metrics.ObservePublish("market.orders", 250*time.Millisecond, nil)
	metrics.ObservePublish("market.orders", 100*time.Millisecond, errors.New("broker down"))
	metrics.IncDeadLettered("max_attempts")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "outbox_published_total", "topic", "market.orders"); err != nil {
		t.Fatalf("fetch published: %v", err)
	} else if got != 1 {
		t.Fatalf("expected published=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "outbox_publish_failures_total", "topic", "market.orders"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "outbox_dead_lettered_total", "reason", "max_attempts"); err != nil {
		t.Fatalf("fetch dlq: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dlq=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "outbox_publish_duration_seconds", "topic", "market.orders"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0.3 {
		t.Fatalf("expected duration sum > 0.3, got %f", got)
	}
}

func TestOrderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOrderMetrics(reg)
	metrics.IncTransition("pending")
	metrics.IncTransition("pending")
	metrics.IncRejection("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "orders_transitions_total", "status", "pending"); err != nil || got != 2 {
		t.Fatalf("expected pending=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "orders_rejections_total", "reason", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty reason normalized to unknown, got %f (%v)", got, err)
	}
}

func TestNotificationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewNotificationMetrics(reg)
	metrics.Observe("undeliverable", "blocked")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "notifications_total", "reason", "blocked"); err != nil || got != 1 {
		t.Fatalf("expected blocked=1, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var outbox *OutboxMetrics
	outbox.ObservePublish("t", time.Second, nil)
	outbox.IncDeadLettered("x")

	var orders *OrderMetrics
	orders.IncTransition("pending")

	unregistered := NewNotificationMetrics(nil)
	unregistered.Observe("delivered", "none")

	var cron *CronJobMetrics
	cron.Observe("outbox-retention", time.Second, nil)
}

func TestCronJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	metrics.Observe("outbox-retention", 2*time.Second, nil)
	metrics.Observe("outbox-retention", time.Second, errors.New("db down"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "outcome", "failure"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected one failure, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "outbox-retention"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 3 {
		t.Fatalf("expected duration sum 3, got %f", got)
	}
}

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

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
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
