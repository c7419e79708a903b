package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestValidationMetricsExportsVerdictsAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewValidationMetrics(reg)

	metrics.ObserveValidation(ReasonValid, 25*time.Millisecond)
	metrics.ObserveValidation(ReasonExpired, 10*time.Millisecond)
	metrics.IncGeneration("success")
	metrics.IncGeneration("duplicate_key")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "license_validation_verdicts_total", "reason", ReasonValid); err != nil {
		t.Fatalf("fetch valid verdicts: %v", err)
	} else if got != 1 {
		t.Fatalf("expected valid=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "license_validation_verdicts_total", "reason", ReasonExpired); err != nil {
		t.Fatalf("fetch expired verdicts: %v", err)
	} else if got != 1 {
		t.Fatalf("expected expired=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "license_generation_total", "outcome", "duplicate_key"); err != nil {
		t.Fatalf("fetch generation: %v", err)
	} else if got != 1 {
		t.Fatalf("expected duplicate_key=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "license_validation_duration_seconds", "outcome", "valid"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestValidationMetricsNilSafe(t *testing.T) {
	var metrics *ValidationMetrics
	metrics.ObserveValidation(ReasonValid, time.Millisecond)
	metrics.IncGeneration("success")

	empty := NewValidationMetrics(nil)
	empty.ObserveValidation(ReasonLimit, time.Millisecond)
	empty.IncGeneration("failed")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric family %s not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("no %s metric with %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric family %s not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("no %s metric with %s=%s", name, label, value)
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
