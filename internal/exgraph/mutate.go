// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file contains the mutations applied to a graph while exploring:
// rewiring reads-from, reordering and extending coherency chains, pruning
// events, and recomputing vector clocks after historical edges change.
package exgraph

import (
	"slices"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/vclock"
)

// SetReadsFrom adds the reads-from edge write -> read.
func (g *Graph) SetReadsFrom(read, write *Node) {
	write.addEdge(read, ReadsFrom)
}

// ChangeReadsFrom replaces the single reads-from edge of read. Clocks and
// total order are stale afterwards.
func (g *Graph) ChangeReadsFrom(read, write *Node) error {
	sources := read.Predecessors(ReadsFrom)
	if len(sources) != 1 {
		return corrupt("read %s has %d reads-from sources", read.Key(), len(sources))
	}
	prev, err := g.Node(sources[0])
	if err != nil {
		return err
	}
	prev.removeEdge(read, ReadsFrom)
	write.addEdge(read, ReadsFrom)
	return nil
}

// TrackCoherency appends write to the tail of its coherency chain.
func (g *Graph) TrackCoherency(write *Node) {
	loc := write.Location()
	chain, ok := g.co[loc]
	if !ok || len(chain) == 0 {
		chain = []*Node{g.all[0]}
	}
	tail := chain[len(chain)-1]
	if tail.Key() == write.Key() {
		// Already the tail; also reached when a revisit re-applies a write
		// that its restricted graph tracked. Kept as a guard.
		g.logger.Debug("Write is already the coherency tail.", "key", write.Key().String())
		g.co[loc] = chain
		return
	}
	g.co[loc] = append(chain, write)
	tail.addEdge(write, Coherency)
	g.logger.Debug("Tracked coherency.", "from", tail.Key().String(), "to", write.Key().String())
}

// SwapCoherency moves the later of two writes to just before the earlier one
// in their coherency chain.
func (g *Graph) SwapCoherency(w1, w2 *Node) error {
	loc := w1.Location()
	if w2.Location() != loc {
		return corrupt("swap of %s and %s across locations", w1.Key(), w2.Key())
	}
	old := g.co[loc]
	i1, i2 := slices.Index(old, w1), slices.Index(old, w2)
	if i1 < 0 || i2 < 0 {
		return corrupt("swap of %s and %s outside the coherency chain", w1.Key(), w2.Key())
	}
	earlier, later := min(i1, i2), max(i1, i2)

	writes := slices.Clone(old)
	moved := writes[later]
	writes = slices.Delete(writes, later, later+1)
	writes = slices.Insert(writes, earlier, moved)

	g.relinkChain(old, writes)
	g.co[loc] = writes
	return nil
}

// relinkChain replaces the consecutive coherency edges of old by those of
// writes.
func (g *Graph) relinkChain(old, writes []*Node) {
	for i := 0; i+1 < len(old); i++ {
		old[i].removeEdge(old[i+1], Coherency)
	}
	for i := 0; i+1 < len(writes); i++ {
		writes[i].addEdge(writes[i+1], Coherency)
	}
}

// Restrict removes every event after n in total order.
func (g *Graph) Restrict(n *Node) error {
	idx := g.TOIndex(n.Key())
	if idx < 0 {
		return noSuchEvent(n.Key())
	}
	removed := make(map[event.Key]struct{}, len(g.all)-idx-1)
	for _, r := range g.all[idx+1:] {
		removed[r.Key()] = struct{}{}
	}
	return g.prune(removed)
}

// RestrictBySet removes exactly the given events.
func (g *Graph) RestrictBySet(keys map[event.Key]struct{}) error {
	for k := range keys {
		if k.IsInit() || g.TOIndex(k) < 0 {
			return noSuchEvent(k)
		}
	}
	removed := make(map[event.Key]struct{}, len(keys))
	for k := range keys {
		removed[k] = struct{}{}
	}
	return g.prune(removed)
}

func (g *Graph) prune(removed map[event.Key]struct{}) error {
	if len(removed) == 0 {
		return nil
	}
	gone := func(n *Node) bool {
		_, ok := removed[n.Key()]
		return ok
	}

	touched := map[event.Location][]*Node{}
	for _, n := range g.all {
		if !gone(n) {
			continue
		}
		if n.Kind().IsWrite() {
			if _, ok := touched[n.Location()]; !ok {
				touched[n.Location()] = g.co[n.Location()]
			}
		}
		if n.Event.HasLocation() {
			chain, ok := g.co[n.Location()]
			if !ok {
				return corrupt("pruned %s has an untracked location", n.Key())
			}
			g.co[n.Location()] = slices.DeleteFunc(slices.Clone(chain), gone)
		}
	}
	g.all = slices.DeleteFunc(g.all, gone)

	for t, nodes := range g.tasks {
		kept := slices.DeleteFunc(slices.Clone(nodes), gone)
		// A blocking label whose program-order predecessor was pruned is
		// stale.
		if k := len(kept); k > 0 && kept[k-1].Kind().IsBlockingLabel() && kept[k-1].Key().Seq != k-1 {
			removed[kept[k-1].Key()] = struct{}{}
			kept = kept[:k-1]
		}
		g.tasks[t] = kept
	}

	for _, n := range g.all {
		n.dropKeys(removed)
	}
	for _, nodes := range g.tasks {
		for _, n := range nodes {
			if n.Kind().IsBlockingLabel() {
				n.dropKeys(removed)
			}
		}
	}

	for loc, old := range touched {
		chain := g.co[loc]
		if len(chain) <= 1 {
			continue
		}
		g.relinkChain(old, chain)
	}
	return nil
}

// RecomputeVectorClocks rebuilds every clock from program order and the
// happens-before edges, visiting nodes in topological order.
func (g *Graph) RecomputeVectorClocks() error {
	clocks := make(map[event.Key]vclock.Clock, len(g.all))
	return g.visitTopological(func(n *Node) error {
		if n.Key().IsInit() {
			n.Clock = vclock.New()
			clocks[n.Key()] = n.Clock
			return nil
		}
		if n.Kind().IsBlockingLabel() {
			return nil
		}
		poKey, ok := n.poPredecessor()
		if !ok {
			return corrupt("%s has no program-order predecessor", n.Key())
		}
		poClock, ok := clocks[poKey]
		if !ok {
			return corrupt("clock of %s is missing", poKey)
		}
		clock := poClock.Successor(int(n.Key().Task))
		for rel, preds := range n.pred {
			if !rel.propagatesClock() {
				continue
			}
			for _, p := range preds {
				pc, ok := clocks[p]
				if !ok {
					return corrupt("clock of predecessor %s is missing", p)
				}
				clock = clock.Merge(pc)
			}
		}
		n.Clock = clock
		clocks[n.Key()] = clock
		return nil
	})
}
