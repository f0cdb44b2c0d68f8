package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "license-engine"

// Metrics holds the engine's OpenTelemetry instruments. No exporter is
// wired here; the host decides whether measurements leave the process.
type Metrics struct {
	ActivationAttempts metric.Int64Counter
	ActivationFailures metric.Int64Counter
	ValidationTotal    metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	OfflineFallbacks   metric.Int64Counter
	ClockTamperEvents  metric.Int64Counter
}

// NewMetrics registers the engine instruments on the global meter
// provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	m := &Metrics{}
	var err error

	if m.ActivationAttempts, err = meter.Int64Counter("license.activation.attempts",
		metric.WithDescription("License activation attempts")); err != nil {
		return nil, fmt.Errorf("create activation attempts counter: %w", err)
	}
	if m.ActivationFailures, err = meter.Int64Counter("license.activation.failures",
		metric.WithDescription("Failed license activation attempts")); err != nil {
		return nil, fmt.Errorf("create activation failures counter: %w", err)
	}
	if m.ValidationTotal, err = meter.Int64Counter("license.validation.total",
		metric.WithDescription("License validations by resulting status")); err != nil {
		return nil, fmt.Errorf("create validation counter: %w", err)
	}
	if m.ValidationDuration, err = meter.Float64Histogram("license.validation.duration",
		metric.WithDescription("License validation duration"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create validation histogram: %w", err)
	}
	if m.OfflineFallbacks, err = meter.Int64Counter("license.validation.offline_fallbacks",
		metric.WithDescription("Validations that fell back to the cached verdict")); err != nil {
		return nil, fmt.Errorf("create offline fallback counter: %w", err)
	}
	if m.ClockTamperEvents, err = meter.Int64Counter("license.clock_tamper.events",
		metric.WithDescription("Detected backward clock manipulations")); err != nil {
		return nil, fmt.Errorf("create clock tamper counter: %w", err)
	}
	return m, nil
}

// RecordValidation records one validation outcome with its duration.
func (m *Metrics) RecordValidation(ctx context.Context, status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.ValidationTotal.Add(ctx, 1, attrs)
	m.ValidationDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}
