package middleware

import (
	"net/http"

	"bte-graphql/internal/gqlrequest"
	"bte-graphql/internal/logging"
	"bte-graphql/internal/observability"
)

// GraphQLRequestAnalysisMiddleware decodes and analyzes the GraphQL request once
// and stores the result in request context for downstream middleware.
func GraphQLRequestAnalysisMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalyzeRequest(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)

			if fields := observability.GraphQLLogFields(ctx, analysis); len(fields) > 0 {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
