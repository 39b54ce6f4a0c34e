// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file contains the topological sort of an execution graph and the
// sequential consistency check built on top of it.
//
// The sort is Kahn's algorithm seeded with the initial event. Nodes that
// become ready together are enqueued in key order, so the result is
// deterministic. Trailing blocking labels take part in the sort but are not
// emitted.
package exgraph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vk/trustgo/internal/event"
)

// visitTopological calls fn for every node in topological order. It returns
// ErrCycle when some event in total order is never reached.
func (g *Graph) visitTopological(fn func(*Node) error) error {
	nodes := make(map[event.Key]*Node, len(g.all)+len(g.tasks))
	indeg := make(map[event.Key]int, len(g.all))
	for _, n := range g.all {
		nodes[n.Key()] = n
		indeg[n.Key()] = n.inDegree()
	}
	for t := range g.tasks {
		if last := g.lastOf(event.TaskID(t)); last.Kind().IsBlockingLabel() {
			nodes[last.Key()] = last
		}
	}

	queue := []*Node{g.all[0]}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if !n.Kind().IsBlockingLabel() {
			visited++
		}
		if err := fn(n); err != nil {
			return err
		}

		var ready []event.Key
		for _, rel := range Relations {
			for _, s := range n.succ[rel] {
				d, ok := indeg[s]
				if !ok {
					d = 1
				}
				indeg[s] = d - 1
				if d-1 == 0 {
					ready = append(ready, s)
				}
			}
		}
		slices.SortFunc(ready, event.Key.Compare)
		for _, k := range ready {
			next, ok := nodes[k]
			if !ok {
				return corrupt("successor %s of %s is not in the graph", k, n.Key())
			}
			queue = append(queue, next)
		}
	}

	if visited != len(g.all) {
		return fmt.Errorf("%w: reached %d of %d events", ErrCycle, visited, len(g.all))
	}
	return nil
}

// TopologicalSort returns the events of the graph in a deterministic
// topological order, blocking labels excluded.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	out := make([]*Node, 0, len(g.all))
	err := g.visitTopological(func(n *Node) error {
		if !n.Kind().IsBlockingLabel() {
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckConsistency decides whether the graph is sequentially consistent. It
// returns the fixed topological order of a consistent graph and nil for an
// inconsistent one; an error is returned only for a corrupt graph.
func (g *Graph) CheckConsistency() ([]*Node, error) {
	c := g.Clone()

	for loc, writes := range c.co {
		for i, w := range writes {
			exclusive := 0
			var next *Node
			if i+1 < len(writes) {
				next = writes[i+1]
			}
			for _, rk := range w.Successors(ReadsFrom) {
				r, err := c.Node(rk)
				if err != nil {
					return nil, err
				}
				if r.Location() != loc {
					continue
				}
				if r.Kind().IsExclusiveRead() {
					exclusive++
					if pair, ok := c.pairedWrite(r); ok && pair != next {
						c.logger.Debug("Exclusive pair is not atomic.", "read", r.Key().String())
						return nil, nil
					}
				}
				if next != nil {
					r.addEdge(next, FR)
				}
			}
			if exclusive > 1 {
				c.logger.Debug("Write has more than one exclusive reader.", "write", w.Key().String())
				return nil, nil
			}
		}
	}

	sorted, err := c.TopologicalSort()
	if err != nil {
		if !isCycle(err) {
			return nil, err
		}
		c.logger.Debug("Candidate graph is inconsistent.", "error", err.Error())
		return nil, nil
	}
	return fixTopologicalSort(sorted), nil
}

// CheckConsistencyAndTopologicallySort is an alias of CheckConsistency.
func (g *Graph) CheckConsistencyAndTopologicallySort() ([]*Node, error) {
	return g.CheckConsistency()
}

// pairedWrite returns the write half of an exclusive read, if present.
func (g *Graph) pairedWrite(read *Node) (*Node, bool) {
	for _, k := range read.succ[ProgramOrder] {
		n, err := g.Node(k)
		if err == nil && n.Key().Task == read.Key().Task && read.Kind().PairsWith(n.Kind()) {
			return n, true
		}
	}
	return nil, false
}

// fixTopologicalSort places every exclusive read immediately before its
// paired write. The read is moved down rather than the write up: its only
// successors are its pair, so the move keeps the order topological.
func fixTopologicalSort(sorted []*Node) []*Node {
	pairOf := func(r *Node) event.Key {
		return event.Key{Task: r.Key().Task, Seq: r.Key().Seq + 1}
	}
	present := make(map[event.Key]*Node, len(sorted))
	for _, n := range sorted {
		present[n.Key()] = n
	}

	out := make([]*Node, 0, len(sorted))
	deferred := map[event.Key]*Node{}
	for i, n := range sorted {
		if n.Kind().IsExclusiveRead() {
			pair, ok := present[pairOf(n)]
			adjacent := i+1 < len(sorted) && sorted[i+1] == pair
			if ok && !adjacent && n.Kind().PairsWith(pair.Kind()) {
				deferred[pair.Key()] = n
				continue
			}
		}
		if r, ok := deferred[n.Key()]; ok {
			out = append(out, r)
			delete(deferred, n.Key())
		}
		out = append(out, n)
	}
	return out
}

func isCycle(err error) bool {
	return errors.Is(err, ErrCycle)
}
