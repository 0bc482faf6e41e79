package resolver

import (
	"context"

	"bte-graphql/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	outcomeSuccess = "success"
	outcomeEmpty   = "empty"
	outcomeCached  = "cached"
)

func startResolverSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(observability.InstrumentationName + "/resolver")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishResolverSpan(span trace.Span, err error, outcome string) {
	if span == nil {
		return
	}
	if outcome == "" {
		if err != nil {
			outcome = "error"
		} else {
			outcome = outcomeSuccess
		}
	}
	span.SetAttributes(attribute.String("graphql.resolver.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func edgeAttributes(in, out string, parents int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("bte.edge.input_type", in),
		attribute.String("bte.edge.output_type", out),
		attribute.Int("bte.edge.parent_count", parents),
	}
}
