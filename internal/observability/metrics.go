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

// GraphQLMetrics holds custom metrics for GraphQL operations and edge batching.
type GraphQLMetrics struct {
	requestDuration  metric.Float64Histogram
	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	activeRequests   metric.Int64UpDownCounter
	queryDepth       metric.Int64Histogram
	batchParentCount metric.Int64Histogram
	batchResultCount metric.Int64Histogram
	batchCacheHits   metric.Int64Counter
	batchCacheMisses metric.Int64Counter
	batchCallsSaved  metric.Int64Counter
	batchSkipped     metric.Int64Counter
}

// InitGraphQLMetrics initializes GraphQL-specific metrics
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter(InstrumentationName)
	m := &GraphQLMetrics{}
	var err error

	if m.requestDuration, err = meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	if m.requestCounter, err = meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	if m.errorCounter, err = meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL requests that returned errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	if m.activeRequests, err = meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	if m.queryDepth, err = meter.Int64Histogram(
		"graphql.query.depth",
		metric.WithDescription("Depth of GraphQL queries"),
	); err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}

	if m.batchParentCount, err = meter.Int64Histogram(
		"graphql.batch.parent_count",
		metric.WithDescription("Number of parent ids resolved by one edge resolution call"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch parent count histogram: %w", err)
	}

	if m.batchResultCount, err = meter.Int64Histogram(
		"graphql.batch.result_count",
		metric.WithDescription("Number of records returned by one edge resolution call"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch result count histogram: %w", err)
	}

	if m.batchCacheHits, err = meter.Int64Counter(
		"graphql.batch.cache_hits",
		metric.WithDescription("Number of sibling field calls served from the request batch"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch cache hits counter: %w", err)
	}

	if m.batchCacheMisses, err = meter.Int64Counter(
		"graphql.batch.cache_misses",
		metric.WithDescription("Number of sibling field calls that triggered an edge resolution"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch cache misses counter: %w", err)
	}

	if m.batchCallsSaved, err = meter.Int64Counter(
		"graphql.batch.calls_saved",
		metric.WithDescription("Number of edge resolutions avoided by sibling batching"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch calls saved counter: %w", err)
	}

	if m.batchSkipped, err = meter.Int64Counter(
		"graphql.batch.skipped",
		metric.WithDescription("Number of times batching was skipped"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch skipped counter: %w", err)
	}

	return m, nil
}

// RecordRequest records a GraphQL request with its duration and outcome
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := []attribute.KeyValue{
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation_type", operationType),
		))
	}
}

// RecordQueryDepth records the depth of a GraphQL query
func (m *GraphQLMetrics) RecordQueryDepth(ctx context.Context, depth int64, operationType string) {
	m.queryDepth.Record(ctx, depth, metric.WithAttributes(
		attribute.String("operation_type", operationType),
	))
}

func (m *GraphQLMetrics) RecordBatchParentCount(ctx context.Context, count int64, edge string) {
	m.batchParentCount.Record(ctx, count, metric.WithAttributes(attribute.String("edge", edge)))
}

func (m *GraphQLMetrics) RecordBatchResultCount(ctx context.Context, count int64, edge string) {
	m.batchResultCount.Record(ctx, count, metric.WithAttributes(attribute.String("edge", edge)))
}

func (m *GraphQLMetrics) RecordBatchCacheHit(ctx context.Context, edge string) {
	m.batchCacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("edge", edge)))
}

func (m *GraphQLMetrics) RecordBatchCacheMiss(ctx context.Context, edge string) {
	m.batchCacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("edge", edge)))
}

func (m *GraphQLMetrics) RecordBatchCallsSaved(ctx context.Context, count int64, edge string) {
	if count <= 0 {
		return
	}
	m.batchCallsSaved.Add(ctx, count, metric.WithAttributes(attribute.String("edge", edge)))
}

func (m *GraphQLMetrics) RecordBatchSkipped(ctx context.Context, edge, reason string) {
	m.batchSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("edge", edge),
		attribute.String("reason", reason),
	))
}

// IncrementActiveRequests increments the active requests counter
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the GraphQLMetrics instance
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}

	logger.Info("custom GraphQL metrics initialized")
	return metrics, nil
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in the provided context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
