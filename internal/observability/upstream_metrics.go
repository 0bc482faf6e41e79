package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Upstream call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeEmpty   = "empty"
)

// Identifier resolution purposes. Input ids are the ids a query asked about;
// label lookups fill in names of output ids a provider left unnamed.
const (
	ResolutionInput = "input"
	ResolutionLabel = "label"
)

// UpstreamMetrics tracks calls to third-party APIs and the identifier resolver.
// A nil *UpstreamMetrics is valid and records nothing.
type UpstreamMetrics struct {
	callCounter       metric.Int64Counter
	callDuration      metric.Float64Histogram
	resultCounter     metric.Int64Counter
	resolutionCounter metric.Int64Counter
}

// InitUpstreamMetrics initializes the fan-out metrics.
func InitUpstreamMetrics(logger *slog.Logger) (*UpstreamMetrics, error) {
	meter := otel.Meter(InstrumentationName)

	callCounter, err := meter.Int64Counter(
		"bte.upstream.calls",
		metric.WithDescription("Number of upstream API calls by API and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream call counter: %w", err)
	}

	callDuration, err := meter.Float64Histogram(
		"bte.upstream.duration",
		metric.WithDescription("Duration of upstream API calls in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream duration histogram: %w", err)
	}

	resultCounter, err := meter.Int64Counter(
		"bte.upstream.results",
		metric.WithDescription("Number of results mapped from upstream API responses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream result counter: %w", err)
	}

	resolutionCounter, err := meter.Int64Counter(
		"bte.id_resolution.ids",
		metric.WithDescription("Number of identifiers sent to the resolver by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create id resolution counter: %w", err)
	}

	logger.Info("upstream metrics initialized")
	return &UpstreamMetrics{
		callCounter:       callCounter,
		callDuration:      callDuration,
		resultCounter:     resultCounter,
		resolutionCounter: resolutionCounter,
	}, nil
}

// RecordCall records one upstream API call.
func (m *UpstreamMetrics) RecordCall(ctx context.Context, api string, duration time.Duration, outcome string, results int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("api", api),
		attribute.String("outcome", outcome),
	)
	m.callCounter.Add(ctx, 1, attrs)
	m.callDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if results > 0 {
		m.resultCounter.Add(ctx, int64(results), metric.WithAttributes(attribute.String("api", api)))
	}
}

// RecordResolution records identifier resolution outcomes for one semantic type.
func (m *UpstreamMetrics) RecordResolution(ctx context.Context, purpose, semanticType string, resolved, failed int) {
	if m == nil {
		return
	}
	if resolved > 0 {
		m.resolutionCounter.Add(ctx, int64(resolved), metric.WithAttributes(
			attribute.String("purpose", purpose),
			attribute.String("type", semanticType),
			attribute.String("status", "resolved"),
		))
	}
	if failed > 0 {
		m.resolutionCounter.Add(ctx, int64(failed), metric.WithAttributes(
			attribute.String("purpose", purpose),
			attribute.String("type", semanticType),
			attribute.String("status", "failed"),
		))
	}
}
