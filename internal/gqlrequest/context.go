package gqlrequest

import "context"

type analysisContextKey struct{}

// WithAnalysis stores request analysis in context.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	return context.WithValue(ctx, analysisContextKey{}, analysis)
}

// AnalysisFromContext returns the analysis stored by WithAnalysis, or nil.
func AnalysisFromContext(ctx context.Context) *Analysis {
	if ctx == nil {
		return nil
	}
	analysis, _ := ctx.Value(analysisContextKey{}).(*Analysis)
	return analysis
}
