// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file contains the Graph type and its construction, cloning and
// bookkeeping operations.
//
// A Graph owns the nodes of one candidate execution. It keeps three views of
// the same nodes: the per-task program order, the per-location coherency
// chains (each starting with the initial event), and the total insertion
// order. Blocking labels live only in the per-task view.
package exgraph

import (
	"log/slog"
	"slices"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/vclock"
)

// Graph is the mutable execution graph of one exploration.
type Graph struct {
	tasks        [][]*Node
	co           map[event.Location][]*Node
	all          []*Node
	blockedLocks map[event.Location][]event.TaskID

	logger *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the debug logger of a graph. Clones share it.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// New returns a graph that holds only the initial event.
func New(opts ...Option) *Graph {
	g := &Graph{
		co:           map[event.Location][]*Node{},
		blockedLocks: map[event.Location][]event.TaskID{},
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.all = append(g.all, newNode(event.NewInit(), vclock.New()))
	return g
}

// Clone returns an independent deep copy. Blocking labels and the lock
// waiting lists are not carried over.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		tasks:        make([][]*Node, len(g.tasks)),
		co:           make(map[event.Location][]*Node, len(g.co)),
		all:          make([]*Node, 0, len(g.all)),
		blockedLocks: map[event.Location][]event.TaskID{},
		logger:       g.logger,
	}

	for t, nodes := range g.tasks {
		cloned := make([]*Node, 0, len(nodes))
		for _, n := range nodes {
			if n.Kind().IsBlockingLabel() {
				if len(cloned) > 0 {
					cloned[len(cloned)-1].removeSuccessor(n.Key(), ProgramOrder)
				}
				continue
			}
			cloned = append(cloned, n.clone())
		}
		c.tasks[t] = cloned
	}

	init := g.all[0].clone()
	for _, n := range g.tasks {
		if len(n) > 0 && n[0].Kind().IsBlockingLabel() {
			init.removeSuccessor(n[0].Key(), ProgramOrder)
		}
	}
	c.all = append(c.all, init)
	for _, n := range g.all[1:] {
		c.all = append(c.all, c.tasks[n.Key().Task][n.Key().Seq])
	}

	for loc, writes := range g.co {
		mapped := make([]*Node, len(writes))
		for i, w := range writes {
			mapped[i] = c.mustNode(w.Key())
		}
		c.co[loc] = mapped
	}
	return c
}

// Logger returns the debug logger of the graph.
func (g *Graph) Logger() *slog.Logger {
	return g.logger
}

// Init returns the initial node.
func (g *Graph) Init() *Node {
	return g.all[0]
}

// Node resolves a key.
func (g *Graph) Node(k event.Key) (*Node, error) {
	if k.IsInit() {
		return g.all[0], nil
	}
	t := int(k.Task)
	if t >= len(g.tasks) || k.Seq < 0 || k.Seq >= len(g.tasks[t]) {
		return nil, noSuchEvent(k)
	}
	return g.tasks[t][k.Seq], nil
}

// mustNode is used where a missing key can only be an engine bug already
// guarded by a structural invariant.
func (g *Graph) mustNode(k event.Key) *Node {
	n, err := g.Node(k)
	if err != nil {
		panic(err)
	}
	return n
}

// Contains reports whether k resolves to a node.
func (g *Graph) Contains(k event.Key) bool {
	_, err := g.Node(k)
	return err == nil
}

// TOIndex returns the position of k in total order, or -1.
func (g *Graph) TOIndex(k event.Key) int {
	return slices.IndexFunc(g.all, func(n *Node) bool { return n.Key() == k })
}

// AllEvents returns the nodes in total order, the initial event first.
func (g *Graph) AllEvents() []*Node {
	return slices.Clone(g.all)
}

// TaskEvents returns the program order of one task, blocking labels
// included.
func (g *Graph) TaskEvents(t event.TaskID) []*Node {
	if int(t) >= len(g.tasks) || t < 0 {
		return nil
	}
	return slices.Clone(g.tasks[t])
}

// NumTasks returns the number of tasks that have been seen.
func (g *Graph) NumTasks() int {
	return len(g.tasks)
}

// Size returns the number of events in total order.
func (g *Graph) Size() int {
	return len(g.all)
}

// IsEmpty reports whether the graph holds only the initial event.
func (g *Graph) IsEmpty() bool {
	return len(g.all) == 1 && g.all[0].Kind() == event.KindInit
}

// Clear drops every node, the initial event included.
func (g *Graph) Clear() {
	g.tasks = nil
	g.all = nil
	clear(g.co)
	clear(g.blockedLocks)
}

// Writes returns the coherency chain of a location, oldest first.
func (g *Graph) Writes(loc event.Location) []*Node {
	return slices.Clone(g.co[loc])
}

// ensureTask grows the per-task view so task t exists.
func (g *Graph) ensureTask(t event.TaskID) {
	for len(g.tasks) <= int(t) {
		g.tasks = append(g.tasks, nil)
	}
}

// lastOf returns the last node of task t, or the initial event.
func (g *Graph) lastOf(t event.TaskID) *Node {
	nodes := g.tasks[t]
	if len(nodes) == 0 {
		return g.all[0]
	}
	return nodes[len(nodes)-1]
}

// AddEvent appends ev to its task and to total order. The event's sequence
// number and total order stamp are assigned here.
func (g *Graph) AddEvent(ev *event.Event) (*Node, error) {
	t := ev.Task()
	if t < 0 {
		return nil, corrupt("cannot add event with task %d", t)
	}
	g.ensureTask(t)

	last := g.lastOf(t)
	if last.Kind().IsBlockingLabel() || last.Kind() == event.KindThreadFinish {
		return nil, ErrEventAfterBlock
	}

	ev.Key.Seq = len(g.tasks[t])
	ev.ToStamp = len(g.all)
	node := newNode(ev, last.Clock.Successor(int(t)))
	g.tasks[t] = append(g.tasks[t], node)
	last.addEdge(node, ProgramOrder)
	g.all = append(g.all, node)

	// Children spawned since the previous event of this task are ordered
	// before its next event.
	if !last.Key().IsInit() {
		for _, child := range last.Successors(ThreadStart) {
			g.mustNode(child).addEdge(node, ThreadCreation)
		}
	}

	if ev.HasLocation() {
		if _, ok := g.co[ev.Location]; !ok {
			g.co[ev.Location] = []*Node{g.all[0]}
		}
	}
	g.logger.Debug("Added event.", "key", ev.Key.String(), "kind", ev.Kind.String())
	return node, nil
}

// TrackThreadCreates chains a thread start after the previous thread start.
func (g *Graph) TrackThreadCreates(n *Node) {
	if n.Kind() != event.KindThreadStart {
		return
	}
	starts := g.co[event.ThreadLocation]
	if len(starts) == 0 {
		starts = []*Node{g.all[0]}
	}
	starts[len(starts)-1].addEdge(n, ThreadCreation)
	g.co[event.ThreadLocation] = append(starts, n)
}

// TrackThreadStarts orders a thread start after the current last event of
// the spawning task.
func (g *Graph) TrackThreadStarts(n *Node) error {
	if n.Kind() != event.KindThreadStart {
		return nil
	}
	parent, ok := n.Event.StartedBy()
	if !ok || parent < 0 || int(parent) >= len(g.tasks) || len(g.tasks[parent]) == 0 {
		return corrupt("thread start %s has no valid spawning task", n.Key())
	}
	g.lastOf(parent).addEdge(n, ThreadStart)
	return nil
}

// TrackThreadJoins orders a join after the last event of the joined task.
func (g *Graph) TrackThreadJoins(n *Node) error {
	if n.Kind() != event.KindThreadJoin {
		return nil
	}
	target, ok := n.Event.JoinedTask()
	if !ok || target < 0 || int(target) >= len(g.tasks) || len(g.tasks[target]) == 0 {
		return corrupt("thread join %s has no valid joined task", n.Key())
	}
	g.lastOf(target).addEdge(n, ThreadJoin)
	return nil
}

// AddBlockingLabel appends a blocking label to task t. The label is not part
// of total order.
func (g *Graph) AddBlockingLabel(t event.TaskID) *Node {
	g.ensureTask(t)
	last := g.lastOf(t)
	ev := event.New(t, event.KindBlock, event.NoLocation)
	ev.Key.Seq = len(g.tasks[t])
	node := newNode(ev, last.Clock.Successor(int(t)))
	last.addEdge(node, ProgramOrder)
	g.tasks[t] = append(g.tasks[t], node)
	g.logger.Debug("Blocked task.", "task", int64(t))
	return node
}

// IsTaskBlocked reports whether task t currently ends in a blocking label.
func (g *Graph) IsTaskBlocked(t event.TaskID) bool {
	if t < 0 || int(t) >= len(g.tasks) || len(g.tasks[t]) == 0 {
		return false
	}
	return g.lastOf(t).Kind().IsBlockingLabel()
}

// UnblockTask removes the trailing blocking label of task t.
func (g *Graph) UnblockTask(t event.TaskID) error {
	if !g.IsTaskBlocked(t) {
		return corrupt("task %d is not blocked", t)
	}
	nodes := g.tasks[t]
	label := nodes[len(nodes)-1]
	g.tasks[t] = nodes[:len(nodes)-1]
	g.lastOf(t).removeEdge(label, ProgramOrder)
	g.logger.Debug("Unblocked task.", "task", int64(t))
	return nil
}

// UnblockedTasks returns the tasks whose last event is not a blocking label.
func (g *Graph) UnblockedTasks() []event.TaskID {
	var out []event.TaskID
	for t := range g.tasks {
		if !g.IsTaskBlocked(event.TaskID(t)) {
			out = append(out, event.TaskID(t))
		}
	}
	return out
}

// BlockTaskForLock blocks the task of ev and records it as waiting for the
// lock at ev's location.
func (g *Graph) BlockTaskForLock(ev *event.Event) {
	if !g.IsTaskBlocked(ev.Task()) {
		g.AddBlockingLabel(ev.Task())
	}
	waiting := g.blockedLocks[ev.Location]
	if !slices.Contains(waiting, ev.Task()) {
		g.blockedLocks[ev.Location] = append(waiting, ev.Task())
	}
}

// UnblockAllTasksForLock lifts the blocking label of every task waiting for
// the lock. The tasks stay registered as waiting until they acquire it.
func (g *Graph) UnblockAllTasksForLock(loc event.Location) {
	for _, t := range g.blockedLocks[loc] {
		if g.IsTaskBlocked(t) {
			_ = g.UnblockTask(t)
		}
	}
}

// AcquireLock removes t from the waiting list and blocks every other waiter
// again.
func (g *Graph) AcquireLock(loc event.Location, t event.TaskID) {
	waiting, ok := g.blockedLocks[loc]
	if !ok {
		return
	}
	waiting = slices.DeleteFunc(waiting, func(x event.TaskID) bool { return x == t })
	if len(waiting) == 0 {
		delete(g.blockedLocks, loc)
		return
	}
	g.blockedLocks[loc] = waiting
	for _, other := range waiting {
		if !g.IsTaskBlocked(other) {
			g.AddBlockingLabel(other)
		}
	}
}

// WaitingForLock reports whether t is registered as waiting for the lock.
func (g *Graph) WaitingForLock(loc event.Location, t event.TaskID) bool {
	return slices.Contains(g.blockedLocks[loc], t)
}
