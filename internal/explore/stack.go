// Package explore holds the worklist of alternatives discovered while
// recording an execution.
package explore

import (
	"fmt"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/exgraph"
)

// Kind tags an exploration item.
type Kind uint8

const (
	// ForwardReadFromWrite re-points a read at an older write.
	ForwardReadFromWrite Kind = iota
	// ForwardWriteWrite places a write before an older concurrent write.
	ForwardWriteWrite
	// ForwardMaxCoherencyWrite makes a write coherency maximal.
	ForwardMaxCoherencyWrite
	// BackwardRevisit lets a new write satisfy an earlier read.
	BackwardRevisit
	// LockBackwardRevisit lets a new lock acquisition overtake an earlier
	// one.
	LockBackwardRevisit
)

var kindNames = [...]string{
	ForwardReadFromWrite:     "FRW",
	ForwardWriteWrite:        "FWW",
	ForwardMaxCoherencyWrite: "FLW",
	BackwardRevisit:          "BWR",
	LockBackwardRevisit:      "LOCK_BWR",
}

// Kinds lists every item kind.
var Kinds = []Kind{ForwardReadFromWrite, ForwardWriteWrite, ForwardMaxCoherencyWrite, BackwardRevisit, LockBackwardRevisit}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Item is one pending alternative. It owns its graph; First and Second are
// keys into that graph.
//
//   - FRW: First is the read, Second the write it will read from.
//   - FWW: First is the moved write, Second the write it moves before.
//   - FLW, BWR and LOCK_BWR: First is the write, Second is unused.
type Item struct {
	Kind   Kind
	First  event.Key
	Second event.Key
	Graph  *exgraph.Graph

	additional []*event.Event
}

// ForwardRW returns an FRW item on a clone of g.
func ForwardRW(read, write *exgraph.Node, g *exgraph.Graph) *Item {
	return &Item{Kind: ForwardReadFromWrite, First: read.Key(), Second: write.Key(), Graph: g.Clone()}
}

// ForwardWW returns an FWW item on a clone of g.
func ForwardWW(moved, before *exgraph.Node, g *exgraph.Graph) *Item {
	return &Item{Kind: ForwardWriteWrite, First: moved.Key(), Second: before.Key(), Graph: g.Clone()}
}

// ForwardLW returns an FLW item that takes ownership of g.
func ForwardLW(write *exgraph.Node, g *exgraph.Graph) *Item {
	return &Item{Kind: ForwardMaxCoherencyWrite, First: write.Key(), Graph: g}
}

// Backward returns a BWR item that takes ownership of the restricted graph.
func Backward(write *exgraph.Node, restricted *exgraph.Graph) *Item {
	return &Item{Kind: BackwardRevisit, First: write.Key(), Graph: restricted}
}

// LockBackward returns a LOCK_BWR item that takes ownership of the
// restricted graph.
func LockBackward(write *exgraph.Node, restricted *exgraph.Graph) *Item {
	return &Item{Kind: LockBackwardRevisit, First: write.Key(), Graph: restricted}
}

// IsBackward reports whether the item must be expanded into forward items
// before it can be replayed.
func (it *Item) IsBackward() bool {
	return it.Kind == BackwardRevisit || it.Kind == LockBackwardRevisit
}

// AddAdditionalEvent queues an event to replay after the item's mutation.
// Nil events are ignored.
func (it *Item) AddAdditionalEvent(ev *event.Event) {
	if ev != nil {
		it.additional = append(it.additional, ev)
	}
}

// AdditionalEvents returns the queued events in insertion order.
func (it *Item) AdditionalEvents() []*event.Event {
	return it.additional
}

// Nodes resolves First and, when set, Second in the item's graph.
func (it *Item) Nodes() (first, second *exgraph.Node, err error) {
	if it.Graph == nil {
		return nil, nil, fmt.Errorf("%s item has no graph", it.Kind)
	}
	if first, err = it.Graph.Node(it.First); err != nil {
		return nil, nil, fmt.Errorf("%s item: %w", it.Kind, err)
	}
	if it.Kind != ForwardReadFromWrite && it.Kind != ForwardWriteWrite {
		return first, nil, nil
	}
	if second, err = it.Graph.Node(it.Second); err != nil {
		return nil, nil, fmt.Errorf("%s item: %w", it.Kind, err)
	}
	return first, second, nil
}

func (it *Item) String() string {
	switch it.Kind {
	case ForwardReadFromWrite, ForwardWriteWrite:
		return fmt.Sprintf("%s(%s, %s)", it.Kind, it.First, it.Second)
	default:
		return fmt.Sprintf("%s(%s)", it.Kind, it.First)
	}
}

// Stack is a LIFO of items. It is not safe for concurrent use.
type Stack struct {
	items  []*Item
	pushed map[Kind]int
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{pushed: map[Kind]int{}}
}

// Push adds an item on top.
func (s *Stack) Push(it *Item) {
	s.items = append(s.items, it)
	s.pushed[it.Kind]++
}

// Pop removes and returns the top item.
func (s *Stack) Pop() (*Item, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	top := s.items[len(s.items)-1]
	s.items[len(s.items)-1] = nil
	s.items = s.items[:len(s.items)-1]
	return top, true
}

// Peek returns the top item without removing it.
func (s *Stack) Peek() (*Item, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[len(s.items)-1], true
}

// IsEmpty reports whether the stack holds no items.
func (s *Stack) IsEmpty() bool { return len(s.items) == 0 }

// Len returns the number of pending items.
func (s *Stack) Len() int { return len(s.items) }

// Clear drops every pending item.
func (s *Stack) Clear() {
	clear(s.items)
	s.items = s.items[:0]
}

// Pushed returns how many items of each kind were ever pushed.
func (s *Stack) Pushed() map[Kind]int {
	out := make(map[Kind]int, len(s.pushed))
	for k, n := range s.pushed {
		out[k] = n
	}
	return out
}
