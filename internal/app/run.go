package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/trustgo/internal/checker"
	"github.com/vk/trustgo/internal/ctxlog"
	"github.com/vk/trustgo/internal/report"
	"github.com/vk/trustgo/internal/strategy"
	"github.com/vk/trustgo/internal/visualizer"
	"golang.org/x/sync/errgroup"
)

// Run checks the loaded program. A found bug is returned as an error
// wrapping checker.ErrBugFound; the report is written either way.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	cfg, err := a.config.checkerConfig(a.program.Settings, filepath.Join(a.config.ReportDir, strategy.TraceFile))
	if err != nil {
		return err
	}

	if a.config.ReportDir != "" && !a.config.Replay {
		if err := os.MkdirAll(a.config.ReportDir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	opts := []checker.Option{checker.WithRecorder(a.metrics)}
	if a.config.VisualizerURL != "" {
		viewer, err := visualizer.Dial(ctx, visualizer.Config{
			URL:       a.config.VisualizerURL,
			Namespace: a.config.VisualizerNamespace,
		})
		if err != nil {
			a.logger.Warn("Graph viewer unavailable, continuing without it.", "error", err)
		} else {
			defer viewer.Close()
			opts = append(opts, checker.WithSink(viewer))
		}
	}
	chk := checker.New(a.program, cfg, opts...)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if srv := a.healthCheckServer(); srv != nil {
		g.Go(a.serveHealthCheck)
		g.Go(func() error {
			<-runCtx.Done()
			return a.closeHealthCheckServer()
		})
	}

	var res *checker.Result
	var runErr error
	g.Go(func() error {
		defer cancel()
		a.logger.Info("🚀 Starting exploration...", "program", a.program.Name, "policy", cfg.Strategy.Policy, "max_iterations", cfg.MaxIterations)
		res, runErr = chk.Run(runCtx)
		if runErr != nil && !errors.Is(runErr, checker.ErrBugFound) {
			return runErr
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("🏁 Exploration finished.")

	if a.config.ReportDir != "" && res != nil {
		path, err := report.Write(a.config.ReportDir, report.New(res, time.Now()))
		if err != nil {
			return err
		}
		a.logger.Info("Report written.", "path", path)
	}
	a.printSummary(res)

	a.logger.Debug("App.Run method finished.")
	return runErr
}

func (a *App) printSummary(res *checker.Result) {
	if res == nil {
		return
	}
	verdict := report.New(res, time.Now()).Verdict
	fmt.Fprintf(a.outW, "program %s: %s after %d iterations (%d ok, %d blocked, %d bugs), %d distinct graphs\n",
		res.Program, verdict, res.Iterations, res.OK, res.Blocked, len(res.Bugs), res.Coverage.Distinct)
	for _, bug := range res.Bugs {
		fmt.Fprintf(a.outW, "  bug in iteration %d: %s\n", bug.Iteration, bug.Message)
	}
	if a.config.Coverage {
		fmt.Fprintf(a.outW, "coverage: %v\n", res.Coverage.Series)
	}
}
