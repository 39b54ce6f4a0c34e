package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/trustgo/internal/ctxlog"
)

// healthHandler answers liveness probes.
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// routes serves /health and the exploration metrics at /metrics.
func (app *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", app.healthHandler)
	mux.Handle("/metrics", app.metrics.Handler())
	return mux
}

// healthCheckServer builds the health check HTTP server. It returns nil when
// the server is disabled.
func (app *App) healthCheckServer() *http.Server {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Configuring health check server.")
	if app.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server not started: disabled")
		return nil
	}

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.HealthcheckPort),
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return app.httpServer
}

// serveHealthCheck runs the server until it is closed.
func (app *App) serveHealthCheck() error {
	logger := ctxlog.FromContext(app.ctx)
	addr := app.httpServer.Addr
	logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
	// ListenAndServe returns ErrServerClosed on graceful shutdown.
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health check server failed: %w", err)
	}
	return nil
}

func (app *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Closing health check server...")

	if app.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(app.ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := app.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}

	logger.Debug("Health check server shut down gracefully.")
	return nil
}
