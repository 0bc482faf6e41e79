// Package serverapp wires the catalog, the resolvers and the HTTP stack into a
// runnable server and owns its lifecycle.
package serverapp

import (
	"fmt"
	"net/http"
	"sync"

	"bte-graphql/internal/config"
	"bte-graphql/internal/edgemap"
	"bte-graphql/internal/logging"
	"bte-graphql/internal/metakg"
	"bte-graphql/internal/observability"
	"bte-graphql/internal/resolver"
)

// App owns runtime resources for the bte-graphql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider   *observability.MeterProvider
	graphqlMetrics  *observability.GraphQLMetrics
	upstreamMetrics *observability.UpstreamMetrics
	tracerProvider  *observability.TracerProvider

	catalog  *metakg.Catalog
	edges    *edgemap.EdgeMap
	resolver *resolver.Resolver

	graphqlHandler http.Handler
	mux            *http.ServeMux
	handler        http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
