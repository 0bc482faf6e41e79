package serverapp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"bte-graphql/internal/config"
	"bte-graphql/internal/edgemap"
	"bte-graphql/internal/engine"
	"bte-graphql/internal/idresolver"
	"bte-graphql/internal/logging"
	"bte-graphql/internal/metakg"
	"bte-graphql/internal/middleware"
	"bte-graphql/internal/observability"
	"bte-graphql/internal/planner"
	"bte-graphql/internal/resolver"
	"bte-graphql/internal/schemafilter"

	"github.com/graphql-go/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const graphqlPath = "/graphql"

func otlpExporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:    c.Endpoint,
		Protocol:    c.Protocol,
		Insecure:    c.Insecure,
		TLSCertFile: c.TLSCertFile,
		Headers:     c.Headers,
		Timeout:     c.Timeout,
		Compression: c.Compression,
	}
}

// InitLogger builds the process logger and, when log export is enabled, an
// OTLP logger provider that every record is also sent to.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsOTLP()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     otlpExporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.GraphQLMetrics, *observability.UpstreamMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	graphqlMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	upstreamMetrics, err := observability.InitUpstreamMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized")
	return meterProvider, graphqlMetrics, upstreamMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.TracesOTLP()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	return observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       otlpExporterConfig(tracesConfig),
	})
}

// loadCatalog reads the operation catalog, applies the allow/deny filters and
// builds the edge map. Every failure here is a *metakg.ConfigurationError.
func loadCatalog(cfg *config.Config, logger *logging.Logger) (*metakg.Catalog, *edgemap.EdgeMap, error) {
	ops, err := metakg.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, err
	}

	filtered := schemafilter.Apply(ops, cfg.Catalog.Filters)
	if dropped := len(ops) - len(filtered); dropped > 0 {
		logger.Info("catalog filters removed operations",
			slog.Int("loaded", len(ops)),
			slog.Int("removed", dropped),
		)
	}

	catalog, err := metakg.New(filtered)
	if err != nil {
		return nil, nil, err
	}
	edges, err := edgemap.Build(catalog.Operations())
	if err != nil {
		return nil, nil, err
	}
	if edges.Len() == 0 {
		logger.Warn("operation catalog is empty after filtering; schema has no object types",
			slog.String("path", cfg.Catalog.Path))
	}
	return catalog, edges, nil
}

func buildResolver(cfg *config.Config, catalog *metakg.Catalog, edges *edgemap.EdgeMap, upstreamMetrics *observability.UpstreamMetrics) (*resolver.Resolver, func(), error) {
	ids, err := idresolver.NewHTTPResolver(idresolver.HTTPConfig{
		BaseURL:    cfg.Resolver.BaseURL,
		Timeout:    cfg.Resolver.Timeout,
		MaxRetries: cfg.Resolver.MaxRetries,
		CacheSize:  cfg.Resolver.CacheSize,
	})
	if err != nil {
		return nil, nil, err
	}

	executor := engine.NewHTTPExecutor(engine.Config{
		MaxConcurrency:    cfg.Execution.MaxConcurrency,
		RequestsPerSecond: cfg.Execution.RequestsPerSecond,
		Burst:             cfg.Execution.Burst,
		Timeout:           cfg.Execution.Timeout,
		MaxRetries:        cfg.Execution.MaxRetries,
		MaxResponseBytes:  cfg.Execution.MaxResponseBytes,
		Metrics:           upstreamMetrics,
	})

	opts := resolver.Options{
		Correlation:  cfg.Correlation.Enabled,
		EnrichLabels: cfg.Resolver.EnrichLabels,
	}
	if cfg.Server.GraphQLMaxDepth > 0 {
		opts.Limits = &planner.PlanLimits{MaxDepth: cfg.Server.GraphQLMaxDepth}
	}
	closeUpstream := func() {
		executor.CloseIdleConnections()
		ids.CloseIdleConnections()
	}
	return resolver.NewResolver(catalog, edges, idresolver.NewAdapter(ids, upstreamMetrics), executor, opts), closeUpstream, nil
}

// buildGraphQLHandler synthesizes the schema and wraps the GraphQL handler.
// Requests pass through logging, analysis, batching, tracing and metrics in
// that order.
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, res *resolver.Resolver, graphqlMetrics *observability.GraphQLMetrics) (http.Handler, error) {
	schema, err := res.BuildGraphQLSchema()
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}

	var h http.Handler = handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	})
	if graphqlMetrics != nil {
		h = middleware.GraphQLMetricsMiddleware(graphqlMetrics)(h)
	}
	if cfg.Observability.TracingEnabled {
		h = middleware.GraphQLTracingMiddleware()(h)
	}
	h = batchingHandler(h)
	h = middleware.GraphQLRequestAnalysisMiddleware()(h)
	h = middleware.LoggingMiddleware(logger)(h)
	return h, nil
}

// batchingHandler gives every request its own sibling-batching state.
func batchingHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(resolver.NewBatchingContext(r.Context())))
	})
}

func buildRouter(cfg *config.Config, logger *logging.Logger, catalog *metakg.Catalog, edges *edgemap.EdgeMap, graphqlHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(graphqlPath, graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, graphqlPath, http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc(cfg.Server.HealthPath, healthHandler(catalog, edges))

	if meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, h http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		healthPath := cfg.Server.HealthPath
		h = otelhttp.NewHandler(h, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r, healthPath)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		h = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(h)
	}

	if cfg.Server.RateLimitEnabled {
		h = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
		})(h)
	}
	return h
}

func httpRootSpanName(r *http.Request, healthPath string) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path, healthPath)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality.
func normalizeHTTPSpanRoute(rawPath, healthPath string) string {
	switch rawPath {
	case "/", graphqlPath, "/metrics":
		return rawPath
	}
	if rawPath != "" && rawPath == healthPath {
		return rawPath
	}
	return "/*"
}

func buildServer(cfg *config.Config, h http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", graphqlPath),
			slog.String("health_endpoint", cfg.Server.HealthPath),
			slog.Int("graphql_max_depth", cfg.Server.GraphQLMaxDepth),
			slog.Bool("graphiql", cfg.Server.GraphiQLEnabled),
			slog.Bool("correlation", cfg.Correlation.Enabled),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

type healthStatus struct {
	Status     string `json:"status"`
	Operations int    `json:"operations"`
	APIs       int    `json:"apis"`
	Types      int    `json:"types"`
}

// healthHandler reports the size of the loaded catalog. The catalog is
// immutable after startup, so a running process is always healthy.
func healthHandler(catalog *metakg.Catalog, edges *edgemap.EdgeMap) http.HandlerFunc {
	status := healthStatus{
		Status:     "healthy",
		Operations: catalog.Len(),
		APIs:       len(catalog.APIs()),
		Types:      len(edges.ObjectTypes()),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Debug("health check passed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
