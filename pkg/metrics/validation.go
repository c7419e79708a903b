package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ValidationMetrics records validation verdicts and key generation outcomes.
type ValidationMetrics struct {
	duration *prometheus.HistogramVec
	verdicts *prometheus.CounterVec
	keygen   *prometheus.CounterVec
}

// NewValidationMetrics registers the license metrics on the provided registerer.
func NewValidationMetrics(reg prometheus.Registerer) *ValidationMetrics {
	if reg == nil {
		return &ValidationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "license_validation_duration_seconds",
		Help:    "Duration of license validation requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "license_validation_verdicts_total",
		Help: "License validation verdicts by reason.",
	}, []string{"reason"})
	keygen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "license_generation_total",
		Help: "License generation attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, verdicts, keygen)
	return &ValidationMetrics{
		duration: duration,
		verdicts: verdicts,
		keygen:   keygen,
	}
}

// ObserveValidation records one validation request.
func (m *ValidationMetrics) ObserveValidation(reason string, duration time.Duration) {
	if m == nil || m.verdicts == nil {
		return
	}
	label := normalizeLabel(reason)
	m.verdicts.WithLabelValues(label).Inc()
	outcome := "invalid"
	if label == ReasonValid {
		outcome = "valid"
	}
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncGeneration counts one generation attempt.
func (m *ValidationMetrics) IncGeneration(outcome string) {
	if m == nil || m.keygen == nil {
		return
	}
	m.keygen.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// Verdict reason labels.
const (
	ReasonValid       = "valid"
	ReasonUnknownKey  = "unknown_key"
	ReasonDeactivated = "deactivated"
	ReasonExpired     = "expired"
	ReasonLimit       = "limit_reached"
	ReasonStorage     = "storage_error"
)

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
