package observability

import (
	"context"
	"log/slog"
	"strings"

	"bte-graphql/internal/gqlrequest"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLSpanAttributes builds span attributes from request analysis.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis) []attribute.KeyValue {
	if analysis == nil {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, 10)
	if analysis.OperationName != "" {
		attrs = append(attrs, attribute.String("graphql.operation.name", analysis.OperationName))
	}
	if analysis.OperationType != "" {
		attrs = append(attrs, attribute.String("graphql.operation.type", analysis.OperationType))
	}
	if analysis.OperationHash != "" {
		attrs = append(attrs, attribute.String("graphql.operation.hash", analysis.OperationHash))
	}
	if analysis.Envelope.DocumentSizeBytes > 0 {
		attrs = append(attrs, attribute.Int("graphql.document.size_bytes", analysis.Envelope.DocumentSizeBytes))
	}
	if len(analysis.RootTypes) > 0 {
		attrs = append(attrs,
			attribute.StringSlice("graphql.query.root_types", analysis.RootTypes),
			attribute.Int("graphql.query.ids", analysis.IDCount),
			attribute.Int("graphql.query.relationships", analysis.Relationships),
			attribute.Int("graphql.query.depth", analysis.SelectionDepth),
			attribute.Int("graphql.query.field_count", analysis.FieldCount),
		)
	}
	return attrs
}

// GraphQLLogFields builds structured log fields from request analysis.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis) []any {
	fields := make([]any, 0, 5)
	if analysis != nil {
		if analysis.OperationName != "" {
			fields = append(fields, slog.String("operation_name", analysis.OperationName))
		}
		if analysis.OperationType != "" {
			fields = append(fields, slog.String("operation_type", analysis.OperationType))
		}
		if analysis.OperationHash != "" {
			fields = append(fields, slog.String("operation_hash", analysis.OperationHash))
		}
		if len(analysis.RootTypes) > 0 {
			fields = append(fields, slog.String("root_types", strings.Join(analysis.RootTypes, ",")))
		}
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
