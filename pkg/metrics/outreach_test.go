package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOutreachMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutreachMetrics(reg)

	metrics.ObservePass("dispatcher", 125*time.Millisecond)
	metrics.IncEnqueued()
	metrics.IncDuplicate()
	metrics.IncSent()
	metrics.IncSendFailure()
	metrics.IncDeadLettered()
	metrics.IncStop("reply")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	counters := map[string]float64{
		"outreach_emails_enqueued_total":      1,
		"outreach_enqueue_duplicates_total":   1,
		"outreach_emails_sent_total":          1,
		"outreach_send_failures_total":        1,
		"outreach_emails_dead_lettered_total": 1,
	}
	for name, want := range counters {
		got, err := fetchPlainCounter(mfs, name)
		if err != nil {
			t.Fatalf("fetch %s: %v", name, err)
		}
		if got != want {
			t.Fatalf("expected %s=%f, got %f", name, want, got)
		}
	}

	if got, err := fetchCounterValue(mfs, "outreach_sequence_stops_total", "reason", "reply"); err != nil {
		t.Fatalf("fetch stops: %v", err)
	} else if got != 1 {
		t.Fatalf("expected stops=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "outreach_pass_duration_seconds", "component", "dispatcher"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestOutreachMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewOutreachMetrics(nil)
	metrics.IncSent()
	metrics.IncStop("manual")
	metrics.ObservePass("scheduler", time.Second)
}

func fetchPlainCounter(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	if len(mf.GetMetric()) == 0 {
		return 0, fmt.Errorf("metric %q has no samples", name)
	}
	return mf.GetMetric()[0].GetCounter().GetValue(), nil
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
