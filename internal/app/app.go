package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/trustgo/internal/ctxlog"
	"github.com/vk/trustgo/internal/metrics"
	"github.com/vk/trustgo/internal/program"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	program    *program.Program
	metrics    *metrics.Metrics
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and metrics
// registry. It panics when the program cannot be loaded.
func NewApp(outW io.Writer, appConfig *Config, loader program.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	prog, err := loader.Load(ctx, appConfig.ProgramPath)
	if err != nil {
		// A failure to load the program is a fatal startup error.
		panic(fmt.Errorf("failed to load program: %w", err))
	}
	logger.Debug("Program loaded.", "program", prog.Name, "threads", len(prog.Threads), "vars", len(prog.Vars))

	return &App{
		outW:    outW,
		ctx:     ctx,
		logger:  logger,
		config:  appConfig,
		program: prog,
		metrics: metrics.New(),
	}
}

// Program returns the loaded subject program. This is primarily for testing.
func (a *App) Program() *program.Program {
	return a.program
}

// Metrics returns the application's metrics. This is primarily for testing.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}
