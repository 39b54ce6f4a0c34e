// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file contains the read-only queries the exploration uses to discover
// alternatives: the coherency-maximal write, alternative sources of a read,
// alternative coherency placings of a write, and the earlier reads a new
// write could revisit.
package exgraph

import (
	"slices"

	"github.com/vk/trustgo/internal/event"
)

// CoMax returns the coherency-maximal write to loc, or the initial event.
func (g *Graph) CoMax(loc event.Location) *Node {
	writes := g.co[loc]
	if len(writes) == 0 {
		return g.all[0]
	}
	return writes[len(writes)-1]
}

// splitNodesBefore walks nodes from the newest and collects every node not
// happens-before target, up to and including the first one that is.
func splitNodesBefore(target *Node, nodes []*Node) []*Node {
	var out []*Node
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		out = append(out, n)
		if n.HappensBefore(target) {
			break
		}
	}
	return out
}

func withoutNode(nodes []*Node, n *Node) []*Node {
	return slices.DeleteFunc(slices.Clone(nodes), func(x *Node) bool { return x == n })
}

// AlternativeWrites returns, newest first, the writes older than the
// coherency-maximal one that read could read from instead.
func (g *Graph) AlternativeWrites(read *Node) []*Node {
	writes := g.co[read.Location()]
	if len(writes) <= 1 {
		return nil
	}
	return splitNodesBefore(read, writes[:len(writes)-1])
}

// CoherentPlacings returns the concurrent earlier writes that write could be
// placed before in coherency order. Exclusive writes have none.
func (g *Graph) CoherentPlacings(write *Node) ([]*Node, error) {
	if write.Kind().IsExclusiveWrite() {
		return nil, nil
	}
	after := splitNodesBefore(write, withoutNode(g.co[write.Location()], write))
	if len(after) == 0 {
		return nil, corrupt("no coherency chain for %s", write.Key())
	}
	after = after[:len(after)-1]
	return slices.DeleteFunc(after, func(w *Node) bool { return w.Kind().IsExclusiveWrite() }), nil
}

// PotentialReads returns the reads of concurrent writes to the same location
// that the new write could satisfy instead. Exclusive writes are skipped
// unless two exclusive reads observe them: that happens right after the new
// write's own exclusive read joined an existing pair, and those readers must
// still be revisited.
func (g *Graph) PotentialReads(write *Node) ([]*Node, error) {
	loc := write.Location()
	candidates := splitNodesBefore(write, withoutNode(g.co[loc], write))
	if len(candidates) == 0 {
		return nil, corrupt("no coherency chain for %s", write.Key())
	}
	var filterErr error
	candidates = slices.DeleteFunc(candidates, func(w *Node) bool {
		if !w.Kind().IsExclusiveWrite() {
			return false
		}
		shared, err := g.exclusiveReaders(w)
		if err != nil {
			filterErr = err
		}
		return shared < 2
	})
	if filterErr != nil {
		return nil, filterErr
	}

	var reads []*Node
	for _, w := range candidates {
		for _, rk := range w.Successors(ReadsFrom) {
			r, err := g.Node(rk)
			if err != nil {
				return nil, err
			}
			if r.Location() == loc && !r.HappensBefore(write) {
				reads = append(reads, r)
			}
		}
	}
	return reads, nil
}

// exclusiveReaders counts the exclusive reads of w's location that read
// from w.
func (g *Graph) exclusiveReaders(w *Node) (int, error) {
	count := 0
	for _, rk := range w.Successors(ReadsFrom) {
		r, err := g.Node(rk)
		if err != nil {
			return 0, err
		}
		if r.Location() == w.Location() && r.Kind().IsExclusiveRead() {
			count++
		}
	}
	return count, nil
}

func isFinalLockWrite(n *Node) bool {
	final, _ := event.Attr[bool](n.Event, event.AttrFinalLockWrite)
	return final
}

// MarkFinalLockWrite marks a lock acquisition as already used to revisit a
// lock read; older lock writes are no longer alternatives.
func MarkFinalLockWrite(n *Node) {
	n.Event.Set(event.AttrFinalLockWrite, true)
}

// AlternativeLockReads returns the lock acquire reads, concurrent with the
// lock acquisition write, that could be revisited to observe it.
func (g *Graph) AlternativeLockReads(write *Node) ([]*Node, error) {
	loc := write.Location()
	writes := g.co[loc]
	var tail []*Node
	for i := len(writes) - 1; i >= 0; i-- {
		if isFinalLockWrite(writes[i]) {
			break
		}
		tail = append(tail, writes[i])
	}
	slices.Reverse(tail)

	var reads []*Node
	for _, w := range splitNodesBefore(write, withoutNode(tail, write)) {
		for _, rk := range w.Successors(ReadsFrom) {
			r, err := g.Node(rk)
			if err != nil {
				return nil, err
			}
			if r.Kind() == event.KindLockAcquireRead && r.Location() == loc && !r.HappensBefore(write) {
				reads = append(reads, r)
			}
		}
	}
	return reads, nil
}

// AlternativeLockWrites returns the lock writes, other than the
// coherency-maximal one, that a lock acquire read could observe. An
// acquisition that its task later released is folded into the release.
func (g *Graph) AlternativeLockWrites(read *Node) []*Node {
	var (
		out      []*Node
		released = map[event.TaskID]bool{}
	)
	for _, w := range splitNodesBefore(read, g.co[read.Location()]) {
		if isFinalLockWrite(w) {
			break
		}
		switch w.Kind() {
		case event.KindLockReleaseWrite:
			released[w.Event.Task()] = true
			out = append(out, w)
		case event.KindLockAcquireWrite:
			if released[w.Event.Task()] {
				delete(released, w.Event.Task())
				continue
			}
			out = append(out, w)
		default:
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out[1:]
}

// AllWrites returns every write tracked in a coherency chain.
func (g *Graph) AllWrites() []*Node {
	var out []*Node
	for _, writes := range g.co {
		for _, w := range writes {
			if w.Kind().IsWrite() {
				out = append(out, w)
			}
		}
	}
	return out
}
