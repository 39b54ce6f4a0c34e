// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package strategy puts the exploration engine behind the boundary the
// runtime scheduler talks to.
//
// A Strategy converts runtime events through the event factory, hands the
// resulting core events to an Algo and answers scheduling questions: a
// loaded trace wins, then the guiding schedule of the Algo, and once that is
// exhausted a fallback policy over the tasks that are both schedulable and
// able to run.
package strategy

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/vk/trustgo/internal/algo"
	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/exgraph"
)

// Policy selects a task when no guiding schedule applies.
type Policy string

const (
	// PolicyFIFO picks the lowest task id.
	PolicyFIFO Policy = "fifo"
	// PolicyRandom picks uniformly with a seeded generator.
	PolicyRandom Policy = "random"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyFIFO, PolicyRandom:
		return p, nil
	}
	return "", fmt.Errorf("unknown scheduling policy %q (want %q or %q)", s, PolicyFIFO, PolicyRandom)
}

// Config holds the tunables of a Strategy.
type Config struct {
	Policy Policy
	Seed   uint64
	// DebugDir enables graph dumps and extensive checks after each run when
	// not empty.
	DebugDir string
}

// Strategy is the scheduling strategy of one checker run. It is not safe for
// concurrent use.
type Strategy struct {
	algo    *algo.Algo
	factory *event.Factory
	policy  Policy
	rng     *rand.Rand
	debug   string

	// trace is a loaded schedule that replaces exploration.
	trace     []exgraph.SchedulingChoice
	replaying bool

	// executed lists the directives handed out in the current run.
	executed []exgraph.SchedulingChoice

	logger *slog.Logger
}

// New builds a Strategy around a fresh Algo. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) (*Strategy, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyFIFO
	}
	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.DebugDir != "" {
		if err := os.MkdirAll(cfg.DebugDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create debug directory: %w", err)
		}
	}
	return &Strategy{
		algo:    algo.New(algo.WithLogger(logger)),
		factory: event.NewFactory(),
		policy:  cfg.Policy,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		debug:   cfg.DebugDir,
		logger:  logger,
	}, nil
}

// Algo exposes the wrapped engine.
func (s *Strategy) Algo() *algo.Algo { return s.algo }

// Replaying reports whether a loaded trace drives the runs.
func (s *Strategy) Replaying() bool { return s.replaying }

// Executed returns the directives handed out since the run started.
func (s *Strategy) Executed() []exgraph.SchedulingChoice {
	return slices.Clone(s.executed)
}

// InitIteration prepares run n. A replayed trace is a single run.
func (s *Strategy) InitIteration(n int) (algo.Outcome, error) {
	s.executed = s.executed[:0]
	if s.replaying {
		if n == 0 {
			return algo.Continue(), nil
		}
		return algo.HaltChecker(), nil
	}

	out, err := s.algo.InitIteration(n)
	if err != nil {
		return algo.Outcome{}, err
	}
	if s.debug != "" && out.IsContinue() {
		if err := s.dump("iteration-guiding", n); err != nil {
			return algo.Outcome{}, err
		}
	}
	return out, nil
}

// ResetIteration closes run n. With debug output enabled the final graph is
// written out, and a completed run must also pass the extensive consistency
// check.
func (s *Strategy) ResetIteration(n int, completed bool) error {
	if s.replaying {
		return nil
	}
	s.algo.ResetIteration(n)
	if s.debug == "" {
		return nil
	}
	if err := s.dump("iteration-complete", n); err != nil {
		return err
	}
	if !completed {
		return nil
	}
	if err := s.algo.Graph().CheckExtensiveConsistency(); err != nil {
		snapshot, _ := s.algo.Graph().JSON()
		return &algo.InvariantError{Op: fmt.Sprintf("extensive check of iteration %d", n), Graph: snapshot, Err: err}
	}
	return nil
}

// NextTask picks the next directive. active lists the 1-indexed tasks the
// runtime can step. It returns false when nothing can be scheduled.
func (s *Strategy) NextTask(active []int64) (exgraph.SchedulingChoice, bool) {
	choice, ok := s.nextTask(active)
	if ok {
		s.executed = append(s.executed, choice)
	}
	return choice, ok
}

func (s *Strategy) nextTask(active []int64) (exgraph.SchedulingChoice, bool) {
	if s.replaying && len(s.trace) > 0 {
		next := s.trace[0]
		s.trace = s.trace[1:]
		return next, true
	}
	if !s.replaying {
		if choice, ok := s.algo.NextTask(); ok {
			return choice, true
		}
	}

	candidates := s.candidates(active)
	if len(candidates) == 0 {
		return exgraph.SchedulingChoice{}, false
	}
	switch s.policy {
	case PolicyRandom:
		return exgraph.RunTask(candidates[s.rng.IntN(len(candidates))]), true
	default:
		return exgraph.RunTask(candidates[0]), true
	}
}

// candidates intersects the schedulable tasks of the graph, shifted to the
// runtime's 1-indexed ids, with the active tasks. The result is sorted.
func (s *Strategy) candidates(active []int64) []int64 {
	if s.replaying {
		out := slices.Clone(active)
		slices.Sort(out)
		return out
	}
	var out []int64
	for _, t := range s.algo.GetSchedulableTasks() {
		if id := int64(t) + 1; slices.Contains(active, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// UpdateEvent converts a runtime event and forwards the resulting core
// events. It stops at the first outcome that is not Continue.
func (s *Strategy) UpdateEvent(rev event.RuntimeEvent) (algo.Outcome, error) {
	events, err := s.factory.FromRuntime(rev)
	if err != nil {
		return algo.Outcome{}, err
	}
	for _, ev := range events {
		var out algo.Outcome
		if s.replaying {
			out = replayOutcome(ev)
		} else if out, err = s.algo.UpdateEvent(ev); err != nil {
			return algo.Outcome{}, err
		}
		if !out.IsContinue() {
			return out, nil
		}
	}
	return algo.Continue(), nil
}

// replayOutcome decides halts without a graph.
func replayOutcome(ev *event.Event) algo.Outcome {
	switch ev.Kind {
	case event.KindError:
		return algo.HaltExecutionError(ev.Message())
	case event.KindEnd:
		return algo.HaltExecutionOK()
	}
	return algo.Continue()
}

// Teardown releases the engine state.
func (s *Strategy) Teardown() {
	s.algo.Teardown()
	s.trace = nil
	s.executed = nil
}

func (s *Strategy) dump(prefix string, n int) error {
	path := filepath.Join(s.debug, fmt.Sprintf("%s-%d.json", prefix, n))
	if err := s.algo.WriteExecutionGraphToFile(path); err != nil {
		return fmt.Errorf("failed to dump graph of iteration %d: %w", n, err)
	}
	s.logger.Debug("Wrote execution graph.", "path", path)
	return nil
}
