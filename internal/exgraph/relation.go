// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the typed edges of an execution graph.
//
// Every edge carries a Relation. All relations except Coherency contribute to
// happens-before and therefore propagate vector clocks; FR edges only exist
// on the throwaway clone built while checking consistency.
package exgraph

import "fmt"

// Relation is the kind of a directed edge between two nodes.
type Relation uint8

const (
	ReadsFrom Relation = iota
	Coherency
	ProgramOrder
	ThreadCreation
	ThreadStart
	ThreadJoin
	FR
)

var relationNames = [...]string{
	ReadsFrom:      "ReadsFrom",
	Coherency:      "Coherency",
	ProgramOrder:   "ProgramOrder",
	ThreadCreation: "ThreadCreation",
	ThreadStart:    "ThreadStart",
	ThreadJoin:     "ThreadJoin",
	FR:             "FR",
}

// Relations lists every relation in declaration order.
var Relations = []Relation{ReadsFrom, Coherency, ProgramOrder, ThreadCreation, ThreadStart, ThreadJoin, FR}

func (r Relation) String() string {
	if int(r) < len(relationNames) {
		return relationNames[r]
	}
	return fmt.Sprintf("Relation(%d)", uint8(r))
}

// ParseRelation is the inverse of Relation.String.
func ParseRelation(s string) (Relation, error) {
	for _, r := range Relations {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown relation %q", s)
}

// propagatesClock reports whether an edge of this relation orders its
// endpoints in happens-before.
func (r Relation) propagatesClock() bool {
	return r != Coherency
}
