// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package runtime interprets a subject program one atomic step at a time.
//
// The runtime is sequentially consistent: shared variables hold a single
// current value and every step sees the effects of all earlier steps. It
// never picks a task itself; the caller decides which task steps next and
// feeds the returned events to the checker. Task ids are 1-indexed, with
// task 1 running the main thread.
//
// Each run hands out fresh location ids in first-touch order from a per-run
// base, so the same variable has a different id in every run.
package runtime

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/program"
	"github.com/zclconf/go-cty/cty"
)

// LocationStride separates the location ids of consecutive runs.
const LocationStride int64 = 1 << 16

var (
	// ErrNotActive is returned when the caller steps a task that cannot run.
	ErrNotActive = errors.New("task is not active")
	// ErrEval marks an operand that could not be evaluated.
	ErrEval = errors.New("evaluation failed")
)

type state uint8

const (
	stateReady state = iota
	stateJoining
	stateLockWait
	stateFinished
	stateParked
	stateFailed
)

func (s state) String() string {
	return [...]string{"ready", "joining", "lock_wait", "finished", "parked", "failed"}[s]
}

type thread struct {
	id    int64
	def   *program.Thread
	pc    int
	state state
	regs  map[string]cty.Value

	// children maps a thread name to the task this thread spawned last
	// under that name.
	children   map[string]int64
	joinTarget int64
	waitLock   string
}

// Runtime is the interpreter of one program. It is not safe for concurrent
// use.
type Runtime struct {
	prog *program.Program

	run     int
	threads []*thread
	memory  map[string]cty.Value
	holders map[string]int64

	locations map[string]int64
	nextLoc   int64

	logger *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a runtime for prog. Reset must be called before each run.
func New(prog *program.Program, opts ...Option) (*Runtime, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{prog: prog, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reset restores the initial state for the given run and returns the events
// of the main thread's start, which precede any scheduling.
func (r *Runtime) Reset(run int) []event.RuntimeEvent {
	r.run = run
	r.threads = nil
	r.memory = make(map[string]cty.Value, len(r.prog.Vars))
	for name, v := range r.prog.Vars {
		r.memory[name] = v.Initial
	}
	r.holders = make(map[string]int64)
	r.locations = make(map[string]int64)
	r.nextLoc = LocationStride * int64(run+1)

	main := r.spawn(r.prog.Threads[program.MainThread])
	r.logger.Debug("Runtime reset.", "run", run)
	return []event.RuntimeEvent{threadStart(main.id, 0)}
}

// Active returns the sorted tasks that can take a step.
func (r *Runtime) Active() []int64 {
	var out []int64
	for _, th := range r.threads {
		if r.canStep(th) {
			out = append(out, th.id)
		}
	}
	return out
}

// IsActive reports whether task can take a step.
func (r *Runtime) IsActive(task int64) bool {
	th, ok := r.thread(task)
	return ok && r.canStep(th)
}

// Done reports whether every task has terminated.
func (r *Runtime) Done() bool {
	for _, th := range r.threads {
		if th.state != stateFinished && th.state != stateParked {
			return false
		}
	}
	return len(r.threads) > 0
}

// Deadlocked reports whether unfinished tasks remain but none can step.
func (r *Runtime) Deadlocked() bool {
	return !r.Done() && len(r.Active()) == 0
}

// Tasks returns the number of tasks spawned so far.
func (r *Runtime) Tasks() int { return len(r.threads) }

// TaskName returns the thread definition a task runs.
func (r *Runtime) TaskName(task int64) string {
	if th, ok := r.thread(task); ok {
		return th.def.Name
	}
	return ""
}

// Value returns the current value of a shared variable.
func (r *Runtime) Value(name string) (cty.Value, bool) {
	v, ok := r.memory[name]
	return v, ok
}

// Register returns the current value of a task's register.
func (r *Runtime) Register(task int64, name string) (cty.Value, bool) {
	th, ok := r.thread(task)
	if !ok {
		return cty.NilVal, false
	}
	v, ok := th.regs[name]
	return v, ok
}

// VarLocation returns the id this run assigned to a variable, and false if
// the run has not touched it.
func (r *Runtime) VarLocation(name string) (int64, bool) {
	loc, ok := r.locations["var:"+name]
	return loc, ok
}

func (r *Runtime) thread(task int64) (*thread, bool) {
	if task < 1 || int(task) > len(r.threads) {
		return nil, false
	}
	return r.threads[task-1], true
}

func (r *Runtime) canStep(th *thread) bool {
	switch th.state {
	case stateReady:
		return true
	case stateJoining:
		target, ok := r.thread(th.joinTarget)
		return ok && target.state == stateFinished
	case stateLockWait:
		_, held := r.holders[th.waitLock]
		return !held
	}
	return false
}

func (r *Runtime) spawn(def *program.Thread) *thread {
	th := &thread{
		id:       int64(len(r.threads) + 1),
		def:      def,
		regs:     make(map[string]cty.Value),
		children: make(map[string]int64),
	}
	for _, reg := range def.Registers() {
		th.regs[reg] = cty.NumberIntVal(0)
	}
	r.threads = append(r.threads, th)
	return th
}

// location returns the id of name, assigning the next one on first touch.
// Variables and locks share one namespace of ids but not of names.
func (r *Runtime) location(kind, name string) int64 {
	key := kind + ":" + name
	if loc, ok := r.locations[key]; ok {
		return loc
	}
	r.nextLoc++
	r.locations[key] = r.nextLoc
	return r.nextLoc
}

func (r *Runtime) varLocation(name string) int64  { return r.location("var", name) }
func (r *Runtime) lockLocation(name string) int64 { return r.location("lock", name) }

func threadStart(task, parent int64) event.RuntimeEvent {
	return event.RuntimeEvent{
		Task:   task,
		Kind:   event.RuntimeThreadStart,
		Params: map[string]any{event.ParamStartedBy: parent},
	}
}

func memoryEvent(task int64, kind event.RuntimeKind, loc int64) event.RuntimeEvent {
	return event.RuntimeEvent{Task: task, Kind: kind, Params: map[string]any{event.ParamLocation: loc}}
}

func assertFailure(task int64, msg string) event.RuntimeEvent {
	return event.RuntimeEvent{Task: task, Kind: event.RuntimeAssertFailure, Params: map[string]any{event.ParamMessage: msg}}
}

func (r *Runtime) describe(th *thread) string {
	return fmt.Sprintf("task %d (%s)", th.id, th.def.Name)
}

// Snapshot lists the state of every task, for logs and reports.
func (r *Runtime) Snapshot() []TaskState {
	out := make([]TaskState, 0, len(r.threads))
	for _, th := range r.threads {
		out = append(out, TaskState{Task: th.id, Thread: th.def.Name, PC: th.pc, State: th.state.String()})
	}
	return out
}

// TaskState is the externally visible state of a task.
type TaskState struct {
	Task   int64  `json:"task" yaml:"task"`
	Thread string `json:"thread" yaml:"thread"`
	PC     int    `json:"pc" yaml:"pc"`
	State  string `json:"state" yaml:"state"`
}
