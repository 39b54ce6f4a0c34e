// Package algo drives the exploration of execution graphs.
//
// An Algo is fed the events of one run of the subject program. In the first
// run it records the graph freely and pushes every alternative it discovers
// onto its exploration stack. Every later run starts by popping alternatives
// until one is consistent; the topological order of that graph becomes a
// guiding schedule the caller replays before the Algo returns to recording
// freely.
//
// An Algo is single threaded. The caller serializes every call.
package algo

import (
	"fmt"
	"log/slog"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/exgraph"
	"github.com/vk/trustgo/internal/explore"
	"github.com/vk/trustgo/internal/location"
)

// Algo is the exploration state machine.
type Algo struct {
	graph     *exgraph.Graph
	stack     *explore.Stack
	locations *location.Store

	guiding   []exgraph.ScheduleEntry
	isGuiding bool

	mustBlock     bool
	mustBlockTask event.TaskID

	stats  Stats
	logger *slog.Logger
}

// Stats counts what the exploration did so far.
type Stats struct {
	// Popped counts stack items taken per kind.
	Popped map[explore.Kind]int
	// Pushed counts stack items pushed per kind.
	Pushed map[explore.Kind]int
	// Inconsistent counts forward items whose graph failed the consistency
	// check.
	Inconsistent int
	// Pending is the current stack size.
	Pending int
}

// Option configures an Algo.
type Option func(*Algo)

// WithLogger sets the debug logger. Graphs created by the Algo share it.
func WithLogger(l *slog.Logger) Option {
	return func(a *Algo) {
		if l != nil {
			a.logger = l
		}
	}
}

// New returns an Algo in the free state at iteration 0.
func New(opts ...Option) *Algo {
	a := &Algo{
		stack:     explore.NewStack(),
		locations: location.NewStore(),
		stats:     Stats{Popped: map[explore.Kind]int{}},
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.graph = exgraph.New(exgraph.WithLogger(a.logger))
	return a
}

// Graph returns the graph of the current run.
func (a *Algo) Graph() *exgraph.Graph { return a.graph }

// Stats returns a copy of the exploration counters.
func (a *Algo) Stats() Stats {
	popped := make(map[explore.Kind]int, len(a.stats.Popped))
	for k, n := range a.stats.Popped {
		popped[k] = n
	}
	return Stats{
		Popped:       popped,
		Pushed:       a.stack.Pushed(),
		Inconsistent: a.stats.Inconsistent,
		Pending:      a.stack.Len(),
	}
}

// IsGuiding reports whether a guiding schedule is being replayed.
func (a *Algo) IsGuiding() bool {
	return a.isGuiding && len(a.guiding) > 0
}

// NextTask returns the next directive of the guiding schedule. A pending
// request to block a task takes precedence. It returns false once the
// schedule is exhausted and the caller must pick a task itself.
func (a *Algo) NextTask() (exgraph.SchedulingChoice, bool) {
	if a.mustBlock {
		a.mustBlock = false
		return exgraph.BlockTask(int64(a.mustBlockTask) + 1), true
	}
	if !a.IsGuiding() {
		return exgraph.SchedulingChoice{}, false
	}
	next := a.guiding[0]
	a.guiding = a.guiding[1:]
	if len(a.guiding) == 0 {
		a.isGuiding = false
	}
	return next.Choice, true
}

// GetSchedulableTasks returns the 0-indexed tasks that are not blocked.
func (a *Algo) GetSchedulableTasks() []event.TaskID {
	return a.graph.UnblockedTasks()
}

// InitIteration prepares run n. Run 0 records freely. Later runs pop the
// exploration stack until a consistent alternative is found and replay it;
// an exhausted stack yields OutcomeHaltChecker.
func (a *Algo) InitIteration(n int) (Outcome, error) {
	if n == 0 {
		a.logger.Debug("Initializing first iteration.")
		return Continue(), nil
	}
	if a.stack.IsEmpty() {
		a.logger.Debug("Exploration stack is empty.")
		return HaltChecker(), nil
	}

	a.locations.ClearAliases()
	a.isGuiding = true
	a.logger.Debug("Initializing iteration.", "iteration", n)
	return a.findNextExplorationChoice()
}

// ResetIteration drops the per-run replay state after run n finished.
func (a *Algo) ResetIteration(n int) {
	a.logger.Debug("Resetting iteration.", "iteration", n, "pending", a.stack.Len())
	a.guiding = nil
	a.isGuiding = false
	a.mustBlock = false
}

// Teardown releases the graph, the stack and the location store.
func (a *Algo) Teardown() {
	a.graph.Clear()
	a.stack.Clear()
	a.locations.ClearAliases()
	a.locations.Clear()
	a.guiding = nil
	a.isGuiding = false
}

// WriteExecutionGraphToFile stores the current graph as JSON.
func (a *Algo) WriteExecutionGraphToFile(path string) error {
	return a.graph.WriteToFile(path)
}

// TaskSchedule returns the directives that replay the current graph.
func (a *Algo) TaskSchedule() ([]exgraph.SchedulingChoice, error) {
	sorted, err := a.graph.CheckConsistency()
	if err != nil {
		return nil, a.invariant("task schedule", err)
	}
	if len(sorted) == 0 {
		return nil, a.invariant("task schedule", fmt.Errorf("current graph is inconsistent"))
	}
	return exgraph.Choices(exgraph.TaskSchedule(sorted)), nil
}

// UpdateEvent processes one event of the running program.
func (a *Algo) UpdateEvent(ev *event.Event) (Outcome, error) {
	a.logger.Debug("Received event.", "task", int64(ev.Task()), "kind", ev.Kind.String(), "location", int64(ev.Location))

	switch ev.Kind {
	case event.KindError:
		return HaltExecutionError(ev.Message()), nil
	case event.KindEnd:
		return HaltExecutionOK(), nil
	}

	if a.IsGuiding() {
		return a.handleGuidedEvent(ev)
	}

	if ev.HasLocation() {
		ev.Location = a.locations.Resolve(ev.Location)
	}

	var err error
	switch ev.Kind {
	case event.KindRead, event.KindReadExclusive:
		err = a.handleRead(ev)
	case event.KindWrite:
		err = a.handleWrite(ev)
	case event.KindWriteExclusive:
		err = a.handleWriteX(ev)
	case event.KindLockAcquireRead:
		err = a.handleLockAcquireRead(ev)
	case event.KindLockAcquireWrite:
		err = a.handleLockAcquireWrite(ev)
	case event.KindLockReleaseWrite:
		err = a.handleLockReleaseWrite(ev)
	case event.KindLockAcquired:
		err = a.handleLockAcquired(ev)
	case event.KindAssume:
		err = a.handleAssume(ev)
	case event.KindThreadStart, event.KindThreadFinish, event.KindThreadJoin, event.KindNoop:
		err = a.handleNoop(ev)
	default:
		err = fmt.Errorf("unexpected event kind %s", ev.Kind)
	}
	if err != nil {
		return Outcome{}, a.invariant("update event "+ev.Kind.String(), err)
	}
	return Continue(), nil
}

// handleGuidedEvent checks an event against the head of the guiding
// schedule. The head carries the location the graph recorded for this
// event; a different id becomes an alias for the rest of the run.
func (a *Algo) handleGuidedEvent(ev *event.Event) (Outcome, error) {
	head := a.guiding[0]
	switch head.Choice.Kind {
	case exgraph.ChoiceBlockTask:
		return HaltTask(event.TaskID(head.Choice.Task - 1)), nil
	case exgraph.ChoiceBlockExecution:
		return HaltExecutionError("encountered a block label"), nil
	case exgraph.ChoiceEnd:
		// The write half of an exclusive pair is still to come.
		if !ev.Kind.IsExclusiveRead() {
			a.guiding = a.guiding[1:]
			if len(a.guiding) == 0 {
				a.isGuiding = false
				a.logger.Debug("Guiding schedule consumed.")
			}
		}
	}

	if head.HasLocation() {
		if !ev.HasLocation() {
			return HaltExecutionError("expected location with event but it contains none"), nil
		}
		if ev.Location != head.Location && !a.locations.ContainsAlias(ev.Location) {
			a.locations.AddAlias(head.Location, ev.Location)
			a.logger.Debug("Added location alias.", "graph", int64(head.Location), "run", int64(ev.Location))
		}
	}

	if ev.Kind == event.KindAssume {
		a.handleGuidedAssume(ev)
	}
	return Continue(), nil
}

// blockTask asks the caller to block t on its next NextTask call.
func (a *Algo) blockTask(t event.TaskID) {
	a.mustBlock = true
	a.mustBlockTask = t
}

// invariant wraps err with the operation and a snapshot of the graph.
func (a *Algo) invariant(op string, err error) error {
	snapshot, jerr := a.graph.JSON()
	if jerr != nil {
		snapshot = nil
	}
	return &InvariantError{Op: op, Graph: snapshot, Err: err}
}
