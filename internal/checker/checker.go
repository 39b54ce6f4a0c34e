// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package checker drives the exploration of a subject program.
//
// A Checker owns one Strategy and one Runtime. Each iteration resets the
// runtime, asks the strategy which task steps next, steps it and feeds the
// events back until the run halts. The search ends when the exploration
// stack is exhausted, the iteration limit is reached, a bug is found with
// StopOnBug set, or the context is cancelled.
package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vk/trustgo/internal/algo"
	"github.com/vk/trustgo/internal/coverage"
	"github.com/vk/trustgo/internal/ctxlog"
	"github.com/vk/trustgo/internal/exgraph"
	"github.com/vk/trustgo/internal/program"
	"github.com/vk/trustgo/internal/runtime"
	"github.com/vk/trustgo/internal/strategy"
)

// ErrBugFound is returned by Run when at least one run hit a program error.
var ErrBugFound = errors.New("bug found")

// Config holds the settings of a search.
type Config struct {
	// MaxIterations bounds the number of runs; 0 means unbounded.
	MaxIterations int
	// StopOnBug ends the search at the first bug.
	StopOnBug bool
	// TracePath receives the schedule of the first bug when set.
	TracePath string
	// ReplayPath replays a recorded trace instead of exploring.
	ReplayPath string

	Strategy strategy.Config
}

// Sink receives every finished iteration, e.g. a graph viewer.
type Sink interface {
	Publish(ctx context.Context, it Iteration) error
}

// Recorder receives exploration measurements.
type Recorder interface {
	IterationFinished(status Status, events int, elapsed time.Duration)
	Explored(stats algo.Stats)
	Covered(distinct, duplicates int)
}

// Checker runs the search for one program.
type Checker struct {
	cfg      Config
	prog     *program.Program
	sinks    []Sink
	recorder Recorder
	coverage *coverage.Tracker
}

// Option configures a Checker.
type Option func(*Checker)

// WithSink adds an iteration sink.
func WithSink(s Sink) Option {
	return func(c *Checker) { c.sinks = append(c.sinks, s) }
}

// WithRecorder sets the measurement recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Checker) { c.recorder = r }
}

// WithCoverage sets the coverage tracker. A checker without one creates its
// own.
func WithCoverage(t *coverage.Tracker) Option {
	return func(c *Checker) { c.coverage = t }
}

// New returns a Checker for prog.
func New(prog *program.Program, cfg Config, opts ...Option) *Checker {
	c := &Checker{cfg: cfg, prog: prog}
	for _, opt := range opts {
		opt(c)
	}
	if c.coverage == nil {
		c.coverage = coverage.New()
	}
	return c
}

// Coverage exposes the tracker, which is safe to read while Run is active.
func (c *Checker) Coverage() *coverage.Tracker { return c.coverage }

// Run performs the search. The returned Result is valid even when an error
// is returned; ErrBugFound wraps the message of the first bug.
func (c *Checker) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Program: c.prog.Name}
	ctx = ctxlog.With(ctx, "run_id", res.RunID)
	logger := ctxlog.FromContext(ctx)

	strat, err := strategy.New(c.cfg.Strategy, logger)
	if err != nil {
		return res, err
	}
	defer strat.Teardown()
	if c.cfg.ReplayPath != "" {
		if err := strat.ReplayTrace(c.cfg.ReplayPath); err != nil {
			return res, err
		}
	}

	rt, err := runtime.New(c.prog, runtime.WithLogger(logger))
	if err != nil {
		return res, err
	}

	logger.Info("Starting exploration.", "program", c.prog.Name, "threads", len(c.prog.Threads), "max_iterations", c.cfg.MaxIterations, "replay", strat.Replaying())
	started := time.Now()

	for i := 0; c.cfg.MaxIterations == 0 || i < c.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("Exploration cancelled.", "iterations", res.Iterations)
			return res, err
		}

		out, err := strat.InitIteration(i)
		if err != nil {
			return res, err
		}
		if out.Kind == algo.OutcomeHaltChecker {
			res.Complete = true
			break
		}

		iterStart := time.Now()
		status, msg, err := c.iterate(ctxlog.With(ctx, "iteration", i), strat, rt, i)
		if err != nil {
			return res, err
		}
		res.Iterations++
		res.count(status)

		if err := c.finishIteration(ctx, strat, i, status, time.Since(iterStart)); err != nil {
			return res, err
		}

		if status == StatusBug {
			bug := Bug{Iteration: i, Message: msg, Schedule: strat.Executed(), Tasks: rt.Snapshot()}
			res.Bugs = append(res.Bugs, bug)
			logger.Warn("Bug found.", "iteration", i, "message", msg, "schedule_length", len(bug.Schedule))
			if len(res.Bugs) == 1 && c.cfg.TracePath != "" {
				if err := strat.RecordTrace(c.cfg.TracePath, bug.Schedule); err != nil {
					return res, err
				}
				res.TracePath = c.cfg.TracePath
			}
			if c.cfg.StopOnBug {
				break
			}
		}
	}

	res.Elapsed = time.Since(started)
	res.Coverage = c.coverage.Summary()
	res.Stats = statsOf(strat.Algo().Stats())
	logger.Info("Exploration finished.",
		"iterations", res.Iterations,
		"complete", res.Complete,
		"bugs", len(res.Bugs),
		"distinct_graphs", res.Coverage.Distinct,
		"elapsed", res.Elapsed.String(),
	)

	if len(res.Bugs) > 0 {
		return res, fmt.Errorf("%w: %s", ErrBugFound, res.Bugs[0].Message)
	}
	return res, nil
}

// finishIteration resets the strategy and reports the run.
func (c *Checker) finishIteration(ctx context.Context, strat *strategy.Strategy, i int, status Status, elapsed time.Duration) error {
	logger := ctxlog.FromContext(ctx)
	g := strat.Algo().Graph()

	it := Iteration{Index: i, Status: status, Events: g.Size()}
	if !strat.Replaying() {
		hash, first, err := c.coverage.Record(g)
		if err != nil {
			return err
		}
		it.Hash, it.NewGraph = hash, first
		if !first {
			logger.Debug("Explored a known graph again.", "iteration", i, "hash", hash)
		}
	}

	if len(c.sinks) > 0 {
		data, err := g.JSON()
		if err != nil {
			return fmt.Errorf("failed to encode graph of iteration %d: %w", i, err)
		}
		it.Graph = data
		for _, s := range c.sinks {
			if err := s.Publish(ctx, it); err != nil {
				logger.Warn("Failed to publish iteration.", "iteration", i, "error", err)
			}
		}
	}

	if err := strat.ResetIteration(i, status == StatusOK); err != nil {
		return err
	}
	if c.recorder != nil {
		c.recorder.IterationFinished(status, it.Events, elapsed)
		c.recorder.Explored(strat.Algo().Stats())
		c.recorder.Covered(c.coverage.Distinct(), c.coverage.Duplicates())
	}
	logger.Debug("Iteration finished.", "iteration", i, "status", status.String(), "events", it.Events, "new_graph", it.NewGraph)
	return nil
}

// guidedInactive reports a guiding schedule that names a task the runtime
// cannot step.
func guidedInactive(choice exgraph.SchedulingChoice, active []int64) error {
	return fmt.Errorf("%w: scheduled %s but active tasks are %v", algo.ErrInternal, choice, active)
}
