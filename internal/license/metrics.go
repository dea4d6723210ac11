package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for license operations
type Metrics struct {
	validations metric.Int64Counter
	issued      metric.Int64Counter
	revocations metric.Int64Counter
}

// NewMetrics registers license metrics on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	validations, err := meter.Int64Counter("license_validations_total",
		metric.WithDescription("License validation attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create validations counter: %w", err)
	}

	issued, err := meter.Int64Counter("licenses_issued_total",
		metric.WithDescription("Licenses issued"))
	if err != nil {
		return nil, fmt.Errorf("failed to create issued counter: %w", err)
	}

	revocations, err := meter.Int64Counter("license_revocations_total",
		metric.WithDescription("License revocations by trigger"))
	if err != nil {
		return nil, fmt.Errorf("failed to create revocations counter: %w", err)
	}

	return &Metrics{
		validations: validations,
		issued:      issued,
		revocations: revocations,
	}, nil
}

func (m *Metrics) recordValidation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.issued.Add(ctx, 1)
}

func (m *Metrics) recordRevocation(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.revocations.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}
