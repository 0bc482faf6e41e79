package middleware

import (
	"bytes"
	"net/http"
	"time"

	"bte-graphql/internal/gqlrequest"
	"bte-graphql/internal/observability"

	"github.com/tidwall/gjson"
)

// GraphQLMetricsMiddleware records request count, duration, errors and query
// depth, and makes the metrics available to resolvers through the context.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GraphiQL page loads are not GraphQL operations.
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)
			start := time.Now()

			analysis := gqlrequest.AnalysisFromContext(ctx)
			if analysis == nil {
				analysis = gqlrequest.AnalyzeRequest(r)
			}
			operationType := "unknown"
			if analysis.Err == nil && analysis.OperationType != "" {
				operationType = analysis.OperationType
			}

			recorder := &bodyRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			hasErrors := recorder.statusCode >= 400 || responseHasGraphQLErrors(recorder.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, operationType)
			if analysis.SelectionDepth > 0 {
				metrics.RecordQueryDepth(ctx, int64(analysis.SelectionDepth), operationType)
			}
		})
	}
}

// bodyRecorder keeps a copy of the response body for error detection.
type bodyRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
	body       bytes.Buffer
}

func (w *bodyRecorder) WriteHeader(statusCode int) {
	if w.written {
		return
	}
	w.statusCode = statusCode
	w.written = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// responseHasGraphQLErrors reports whether a response carries a non-empty
// top-level errors array.
func responseHasGraphQLErrors(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	errs := gjson.GetBytes(body, "errors")
	return errs.IsArray() && len(errs.Array()) > 0
}
