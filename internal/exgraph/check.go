package exgraph

import (
	"errors"
	"fmt"

	"github.com/vk/trustgo/internal/event"
)

// ErrInconsistent is returned by CheckExtensiveConsistency.
var ErrInconsistent = errors.New("execution graph is inconsistent")

// Equal reports whether two graphs hold the same events with the same edges.
// Both graphs are compared in topological order.
func (g *Graph) Equal(other *Graph) bool {
	if other == nil || len(g.all) != len(other.all) {
		return false
	}
	a, err := g.TopologicalSort()
	if err != nil {
		return false
	}
	b, err := other.TopologicalSort()
	if err != nil || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() || !a[i].sameEdges(b[i]) {
			return false
		}
	}
	return true
}

// CheckExtensiveConsistency validates a completed execution: the graph is
// consistent, every task has terminated, each coherency chain is a simple
// chain and each read has one source.
func (g *Graph) CheckExtensiveConsistency() error {
	sorted, err := g.CheckConsistency()
	if err != nil {
		return err
	}
	if sorted == nil {
		return fmt.Errorf("%w: no consistent topological order", ErrInconsistent)
	}

	for t := range g.tasks {
		if err := g.checkTerminated(event.TaskID(t)); err != nil {
			return err
		}
	}
	if err := g.CheckCoherencyEdges(); err != nil {
		return err
	}
	return g.CheckReadsFromEdges()
}

func (g *Graph) checkTerminated(t event.TaskID) error {
	nodes := g.tasks[t]
	if len(nodes) == 0 {
		return nil
	}
	last := nodes[len(nodes)-1]
	switch last.Kind() {
	case event.KindThreadFinish, event.KindBlock:
		return nil
	case event.KindAssume:
		if ok, _ := event.Attr[bool](last.Event, event.AttrResult); !ok {
			return nil
		}
	}
	return fmt.Errorf("%w: task %d ends with %s", ErrInconsistent, t, last.Kind())
}

// CheckCoherencyEdges verifies that consecutive writes of each chain are
// linked and that no write has two coherency successors.
func (g *Graph) CheckCoherencyEdges() error {
	for loc, writes := range g.co {
		if loc == event.ThreadLocation {
			continue
		}
		for i := 0; i+1 < len(writes); i++ {
			w := writes[i]
			if !w.HasEdge(writes[i+1].Key(), Coherency) {
				return fmt.Errorf("%w: %s is not linked to %s at location %d",
					ErrInconsistent, w.Key(), writes[i+1].Key(), loc)
			}
			if w.Key().IsInit() {
				continue
			}
			if len(w.succ[Coherency]) > 1 {
				return fmt.Errorf("%w: %s has %d coherency successors",
					ErrInconsistent, w.Key(), len(w.succ[Coherency]))
			}
		}
	}
	return nil
}

// CheckReadsFromEdges verifies that every read has exactly one source.
func (g *Graph) CheckReadsFromEdges() error {
	for _, n := range g.all {
		if !n.Kind().IsRead() {
			continue
		}
		if got := len(n.pred[ReadsFrom]); got != 1 {
			return fmt.Errorf("%w: read %s has %d reads-from sources", ErrInconsistent, n.Key(), got)
		}
	}
	return nil
}
