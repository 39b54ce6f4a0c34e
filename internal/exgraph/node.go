// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file contains the execution graph node.
//
// A node wraps one event together with its vector clock and its typed edges.
// Edges are stored as event keys in both directions, never as pointers, so a
// node can be cloned without chasing its neighbours and the keys stay valid
// in the cloned graph.
package exgraph

import (
	"maps"
	"slices"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/vclock"
)

// Node is one event of an execution graph.
type Node struct {
	Event *event.Event
	Clock vclock.Clock

	attrs map[string]any
	succ  map[Relation][]event.Key
	pred  map[Relation][]event.Key
}

func newNode(ev *event.Event, clock vclock.Clock) *Node {
	return &Node{
		Event: ev,
		Clock: clock,
		attrs: map[string]any{},
		succ:  map[Relation][]event.Key{},
		pred:  map[Relation][]event.Key{},
	}
}

// Key returns the key of the wrapped event.
func (n *Node) Key() event.Key { return n.Event.Key }

// Kind returns the kind of the wrapped event.
func (n *Node) Kind() event.Kind { return n.Event.Kind }

// Location returns the location of the wrapped event.
func (n *Node) Location() event.Location { return n.Event.Location }

// addEdge links n to to under rel and registers the mirrored back edge. For
// every relation except Coherency the target's clock absorbs n's clock.
func (n *Node) addEdge(to *Node, rel Relation) {
	n.succ[rel] = appendUnique(n.succ[rel], to.Key())
	to.pred[rel] = appendUnique(to.pred[rel], n.Key())
	if rel.propagatesClock() {
		to.Clock = to.Clock.Merge(n.Clock)
	}
}

// removeEdge drops the edge n -> to in both directions. Clocks are not
// recomputed.
func (n *Node) removeEdge(to *Node, rel Relation) {
	n.removeSuccessor(to.Key(), rel)
	to.removePredecessor(n.Key(), rel)
}

func (n *Node) removeSuccessor(k event.Key, rel Relation) {
	n.succ[rel] = slices.DeleteFunc(n.succ[rel], func(x event.Key) bool { return x == k })
	if len(n.succ[rel]) == 0 {
		delete(n.succ, rel)
	}
}

func (n *Node) removePredecessor(k event.Key, rel Relation) {
	n.pred[rel] = slices.DeleteFunc(n.pred[rel], func(x event.Key) bool { return x == k })
	if len(n.pred[rel]) == 0 {
		delete(n.pred, rel)
	}
}

// dropKeys removes every edge, in either direction, that points at a key in
// the set.
func (n *Node) dropKeys(keys map[event.Key]struct{}) {
	strip := func(m map[Relation][]event.Key) {
		for rel, ks := range m {
			ks = slices.DeleteFunc(ks, func(k event.Key) bool {
				_, gone := keys[k]
				return gone
			})
			if len(ks) == 0 {
				delete(m, rel)
				continue
			}
			m[rel] = ks
		}
	}
	strip(n.succ)
	strip(n.pred)
}

// Successors returns a copy of the successor keys under rel.
func (n *Node) Successors(rel Relation) []event.Key {
	return slices.Clone(n.succ[rel])
}

// Predecessors returns a copy of the predecessor keys under rel.
func (n *Node) Predecessors(rel Relation) []event.Key {
	return slices.Clone(n.pred[rel])
}

// HasEdge reports whether n has a successor k under rel.
func (n *Node) HasEdge(k event.Key, rel Relation) bool {
	return slices.Contains(n.succ[rel], k)
}

// inDegree counts all incoming edges regardless of relation.
func (n *Node) inDegree() int {
	total := 0
	for _, ks := range n.pred {
		total += len(ks)
	}
	return total
}

// poPredecessor returns the program-order predecessor, if any.
func (n *Node) poPredecessor() (event.Key, bool) {
	ks := n.pred[ProgramOrder]
	if len(ks) == 0 {
		return event.Key{}, false
	}
	return ks[0], true
}

// readsFrom returns the single write n reads from.
func (n *Node) readsFrom() (event.Key, bool) {
	ks := n.pred[ReadsFrom]
	if len(ks) != 1 {
		return event.Key{}, false
	}
	return ks[0], true
}

// HappensBefore reports whether n is strictly before other.
func (n *Node) HappensBefore(other *Node) bool {
	return n.Clock.Before(other.Clock)
}

// SetAttr stores a node-level attribute.
func (n *Node) SetAttr(name string, value any) {
	n.attrs[name] = value
}

// Attr reads a node-level attribute.
func (n *Node) Attr(name string) (any, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

func (n *Node) clone() *Node {
	c := &Node{
		Event: n.Event.Clone(),
		Clock: n.Clock.Clone(),
		attrs: maps.Clone(n.attrs),
		succ:  make(map[Relation][]event.Key, len(n.succ)),
		pred:  make(map[Relation][]event.Key, len(n.pred)),
	}
	for rel, ks := range n.succ {
		c.succ[rel] = slices.Clone(ks)
	}
	for rel, ks := range n.pred {
		c.pred[rel] = slices.Clone(ks)
	}
	return c
}

// sameEdges compares the successor sets of two nodes.
func (n *Node) sameEdges(other *Node) bool {
	if len(n.succ) != len(other.succ) {
		return false
	}
	for rel, ks := range n.succ {
		oks, ok := other.succ[rel]
		if !ok || len(oks) != len(ks) {
			return false
		}
		a := sortedKeys(ks)
		b := sortedKeys(oks)
		if !slices.Equal(a, b) {
			return false
		}
	}
	return true
}

func appendUnique(ks []event.Key, k event.Key) []event.Key {
	if slices.Contains(ks, k) {
		return ks
	}
	return append(ks, k)
}

func sortedKeys(ks []event.Key) []event.Key {
	out := slices.Clone(ks)
	slices.SortFunc(out, event.Key.Compare)
	return out
}
