package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"bte-graphql/internal/gqlrequest"
	"bte-graphql/internal/logging"
	"bte-graphql/internal/observability"
	"bte-graphql/internal/resolver"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a span. When the request
// already carries batching state, its cache counters are added to the span
// after execution.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer(observability.InstrumentationName + "/graphql")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalysisFromContext(r.Context())
			if analysis == nil || strings.TrimSpace(analysis.Envelope.Query) == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := tracer.Start(r.Context(), "graphql.execute")
			defer span.End()
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				))
			}
			if span.IsRecording() {
				span.SetAttributes(observability.GraphQLSpanAttributes(analysis)...)
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			state, ok := resolver.GetBatchState(ctx)
			if !ok || !span.IsRecording() {
				return
			}
			hits, misses := state.GetCacheHits(), state.GetCacheMisses()
			span.SetAttributes(
				attribute.Int("graphql.batch.cache_hits", int(hits)),
				attribute.Int("graphql.batch.cache_misses", int(misses)),
			)
			if total := hits + misses; total > 0 {
				span.SetAttributes(attribute.Float64("graphql.batch.cache_hit_ratio", float64(hits)/float64(total)))
			}
		})
	}
}
