package exgraph

import (
	"errors"
	"fmt"

	"github.com/vk/trustgo/internal/event"
)

var (
	// ErrNoSuchEvent is returned when a key does not resolve to a node.
	ErrNoSuchEvent = errors.New("no such event")
	// ErrEventAfterBlock is returned when an event is appended after a
	// blocking label or a thread finish.
	ErrEventAfterBlock = errors.New("event follows a blocking label or thread finish")
	// ErrCycle is returned when the graph is expected to be acyclic but is not.
	ErrCycle = errors.New("execution graph has a cycle")
	// ErrCorrupt reports a broken structural invariant of the graph.
	ErrCorrupt = errors.New("execution graph is corrupt")
)

func noSuchEvent(k event.Key) error {
	return fmt.Errorf("%w: %s", ErrNoSuchEvent, k)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
