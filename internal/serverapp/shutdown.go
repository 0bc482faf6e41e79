package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bte-graphql/internal/logging"
)

// shutdownStage names a resource released on shutdown.
type shutdownStage string

const (
	stageLoggerProvider  shutdownStage = "logger provider"
	stageMeterProvider   shutdownStage = "meter provider"
	stageTracerProvider  shutdownStage = "tracer provider"
	stageUpstreamClients shutdownStage = "upstream clients"
	stageHTTPServer      shutdownStage = "http server"
)

// cleanupStack releases stages in reverse order of Init: the HTTP server
// drains in-flight queries before upstream connections and telemetry close.
type cleanupStack struct {
	stages []cleanupStage
}

type cleanupStage struct {
	stage shutdownStage
	fn    func(context.Context) error
}

func (s *cleanupStack) push(stage shutdownStage, fn func(context.Context) error) {
	s.stages = append(s.stages, cleanupStage{stage: stage, fn: fn})
}

// run releases every stage even when an earlier one fails and returns the
// joined failures.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.stages) - 1; i >= 0; i-- {
		st := s.stages[i]
		start := time.Now()
		err := st.fn(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.stage, err))
		}
		if logger == nil {
			continue
		}
		attrs := []any{
			slog.String("stage", string(st.stage)),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("shutdown stage failed", append(attrs, slog.String("error", err.Error()))...)
			continue
		}
		logger.Debug("shutdown stage complete", attrs...)
	}
	if logger != nil && len(s.stages) > 0 {
		logger.Info("shutdown complete",
			slog.Int("stages", len(s.stages)),
			slog.Int("failed", len(errs)),
		)
	}
	return errors.Join(errs...)
}

// Shutdown drains the server and releases upstream clients and telemetry.
// Only the first call does the work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})

	return a.shutdownErr
}
