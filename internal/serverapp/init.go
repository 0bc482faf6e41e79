package serverapp

import (
	"context"
	"fmt"
	"log/slog"
)

// Init loads the catalog, synthesizes the schema and builds the HTTP stack.
// It is idempotent. A catalog that cannot be built fails Init with a
// *metakg.ConfigurationError in the error chain.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push(stageLoggerProvider, func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, graphqlMetrics, upstreamMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push(stageMeterProvider, func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push(stageTracerProvider, func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	catalog, edges, err := loadCatalog(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to load operation catalog: %w", err)
	}

	res, closeUpstream, err := buildResolver(a.cfg, catalog, edges, upstreamMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize resolvers: %w", err)
	}
	cleanup.push(stageUpstreamClients, func(context.Context) error {
		closeUpstream()
		return nil
	})

	graphqlHandler, err := buildGraphQLHandler(a.cfg, a.logger, res, graphqlMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize GraphQL handler: %w", err)
	}

	mux := buildRouter(a.cfg, a.logger, catalog, edges, graphqlHandler, meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push(stageHTTPServer, func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.Info("schema ready",
		slog.Int("operations", catalog.Len()),
		slog.Int("apis", len(catalog.APIs())),
		slog.Int("types", len(edges.ObjectTypes())),
		slog.Int("edges", edges.Len()),
	)

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.graphqlMetrics = graphqlMetrics
	a.upstreamMetrics = upstreamMetrics
	a.tracerProvider = tracerProvider
	a.catalog = catalog
	a.edges = edges
	a.resolver = res
	a.graphqlHandler = graphqlHandler
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
