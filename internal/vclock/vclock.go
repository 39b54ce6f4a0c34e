// Package vclock implements the growable Lamport vector clocks used to
// decide happens-before between execution graph nodes.
package vclock

import (
	"slices"
	"strconv"
	"strings"
)

// Clock is a per-task counter vector. Missing trailing components are zero,
// so clocks of different lengths compare naturally.
type Clock []int

// New returns an empty clock.
func New() Clock {
	return Clock{}
}

// Successor returns a copy of c with component task incremented. It is the
// clock of the program-order successor of a node with clock c.
func (c Clock) Successor(task int) Clock {
	next := c.grow(task + 1)
	next[task]++
	return next
}

// Merge sets c to the pointwise maximum of c and other and returns the result.
// The receiver may be reallocated to fit other.
func (c Clock) Merge(other Clock) Clock {
	merged := c.grow(len(other))
	for i, v := range other {
		if v > merged[i] {
			merged[i] = v
		}
	}
	return merged
}

// Dominates reports whether every component of c is >= the matching
// component of other.
func (c Clock) Dominates(other Clock) bool {
	for i := range max(len(c), len(other)) {
		if c.at(i) < other.at(i) {
			return false
		}
	}
	return true
}

// Before reports strict happens-before: c is dominated by other and differs
// from it. Before is irreflexive and transitive.
func (c Clock) Before(other Clock) bool {
	return other.Dominates(c) && !c.Equal(other)
}

// Equal compares clocks treating missing components as zero.
func (c Clock) Equal(other Clock) bool {
	for i := range max(len(c), len(other)) {
		if c.at(i) != other.at(i) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (c Clock) Clone() Clock {
	return slices.Clone(c)
}

func (c Clock) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (c Clock) at(i int) int {
	if i < len(c) {
		return c[i]
	}
	return 0
}

// grow returns a copy of c with at least n components.
func (c Clock) grow(n int) Clock {
	out := make(Clock, max(n, len(c)))
	copy(out, c)
	return out
}
