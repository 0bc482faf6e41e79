// Package engine is the multi-API execution engine: it calls every dispatched
// operation concurrently and flattens the provider responses into ApiResults.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bte-graphql/internal/logging"
	"bte-graphql/internal/observability"
	"bte-graphql/internal/planner"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ApiResult is one association returned by a provider.
type ApiResult struct {
	OutputID   string
	OutputType string
	APIName    string
	Source     string
	Predicate  string

	// Name is the raw provider name, Label the normalized label when known.
	Name  string
	Label string

	// PubMed and PMC hold whatever shape the provider returned.
	PubMed any
	PMC    any

	NGDOverall *float64
	NGDStarred *float64

	// DispatchIndex points at the DispatchedOperation that produced the result.
	DispatchIndex     int
	DispatchedInputID string
}

// Executor runs dispatched operations. Failures of individual calls are
// absorbed: they contribute no results.
type Executor interface {
	Execute(ctx context.Context, calls []planner.DispatchedOperation) []ApiResult
}

// Config tunes the HTTP executor.
type Config struct {
	MaxConcurrency    int
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxRetries        int
	MaxResponseBytes  int64
	Client            *http.Client
	Metrics           *observability.UpstreamMetrics
}

const (
	defaultMaxConcurrency   = 16
	defaultMaxResponseBytes = 64 << 20
)

// HTTPExecutor calls provider APIs over HTTP.
type HTTPExecutor struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPExecutor builds an executor with defaults filled in.
func NewHTTPExecutor(cfg Config) *HTTPExecutor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPExecutor{
		cfg:      cfg,
		client:   client,
		limiters: make(map[string]*rate.Limiter),
	}
}

// CloseIdleConnections closes kept-alive connections to providers.
func (e *HTTPExecutor) CloseIdleConnections() {
	e.client.CloseIdleConnections()
}

// limiter returns the per-API limiter; a non-positive rate means unlimited.
func (e *HTTPExecutor) limiter(api string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	if l, ok := e.limiters[api]; ok {
		return l
	}
	limit := rate.Inf
	if e.cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(e.cfg.RequestsPerSecond)
	}
	l := rate.NewLimiter(limit, e.cfg.Burst)
	e.limiters[api] = l
	return l
}

// call is one HTTP request: a batched chunk or a single id.
type call struct {
	index  int
	inputs []string
}

func planCalls(dispatched []planner.DispatchedOperation) []call {
	var calls []call
	for i, d := range dispatched {
		if len(d.Inputs) == 0 {
			continue
		}
		if !d.Operation.SupportsBatch {
			for _, in := range d.Inputs {
				calls = append(calls, call{index: i, inputs: []string{in}})
			}
			continue
		}
		size := d.Operation.BatchSize
		if size <= 0 || size >= len(d.Inputs) {
			calls = append(calls, call{index: i, inputs: d.Inputs})
			continue
		}
		for start := 0; start < len(d.Inputs); start += size {
			end := start + size
			if end > len(d.Inputs) {
				end = len(d.Inputs)
			}
			calls = append(calls, call{index: i, inputs: d.Inputs[start:end]})
		}
	}
	return calls
}

// Execute issues every call concurrently, bounded by MaxConcurrency, and
// returns the results in call order.
func (e *HTTPExecutor) Execute(ctx context.Context, dispatched []planner.DispatchedOperation) []ApiResult {
	calls := planCalls(dispatched)
	if len(calls) == 0 {
		return nil
	}

	logger := logging.FromContext(ctx)
	perCall := make([][]ApiResult, len(calls))

	var g errgroup.Group
	g.SetLimit(e.cfg.MaxConcurrency)
	for i, c := range calls {
		g.Go(func() error {
			op := dispatched[c.index].Operation
			start := time.Now()
			results, err := e.do(ctx, op, c)
			duration := time.Since(start)

			outcome := observability.OutcomeSuccess
			switch {
			case err != nil:
				outcome = observability.OutcomeError
				logger.Warn("upstream call failed",
					slog.String("api", op.Association.APIName),
					slog.String("operation", op.Key()),
					slog.Int("inputs", len(c.inputs)),
					slog.Duration("duration", duration),
					slog.String("error", err.Error()),
				)
			case len(results) == 0:
				outcome = observability.OutcomeEmpty
			}
			e.cfg.Metrics.RecordCall(ctx, op.Association.APIName, duration, outcome, len(results))

			for j := range results {
				results[j].DispatchIndex = c.index
			}
			perCall[i] = results
			return nil
		})
	}
	_ = g.Wait()

	var out []ApiResult
	for _, results := range perCall {
		out = append(out, results...)
	}
	logger.Debug("upstream calls finished",
		slog.Int("operations", len(dispatched)),
		slog.Int("calls", len(calls)),
		slog.Int("results", len(out)),
	)
	return out
}
