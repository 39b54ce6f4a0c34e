package event

import (
	"maps"
	"slices"
)

// Location is an opaque per-run identifier of a memory address.
type Location int64

const (
	// NoLocation marks events that do not touch memory.
	NoLocation Location = 0
	// ThreadLocation is the pseudo location shared by thread lifecycle
	// events. It never takes part in coherency.
	ThreadLocation Location = -1
)

// Attribute names used in the auxiliary bag.
const (
	AttrStartedBy      = "started_by"
	AttrJoinedTask     = "joined_task"
	AttrMessage        = "message"
	AttrFinalLockWrite = "final_lock_write"
	AttrResult         = "result"
	AttrValue          = "value"
)

// Event is one observed action of the subject program. Its Key never changes
// once assigned; keys are assigned by the graph in insertion order.
type Event struct {
	Key      Key
	Kind     Kind
	Location Location
	// ToStamp is the position of the event in the graph's total order. It is
	// -1 until the event is inserted.
	ToStamp int

	Attrs map[string]any
}

// New builds an event of the given kind for a 0-indexed task. The sequence
// number is assigned on insertion.
func New(task TaskID, kind Kind, loc Location) *Event {
	return &Event{
		Key:      Key{Task: task, Seq: -1},
		Kind:     kind,
		Location: loc,
		ToStamp:  -1,
		Attrs:    map[string]any{},
	}
}

// NewInit builds the synthetic initial event.
func NewInit() *Event {
	return &Event{Key: InitKey, Kind: KindInit, Location: NoLocation, ToStamp: 0, Attrs: map[string]any{}}
}

// Task is shorthand for e.Key.Task.
func (e *Event) Task() TaskID { return e.Key.Task }

// HasLocation reports whether the event touches memory.
func (e *Event) HasLocation() bool {
	return e.Location != NoLocation
}

// Clone returns a deep copy with an independent attribute map.
func (e *Event) Clone() *Event {
	c := *e
	c.Attrs = maps.Clone(e.Attrs)
	if c.Attrs == nil {
		c.Attrs = map[string]any{}
	}
	return &c
}

// Set stores an attribute and returns the event for chaining.
func (e *Event) Set(name string, value any) *Event {
	if e.Attrs == nil {
		e.Attrs = map[string]any{}
	}
	e.Attrs[name] = value
	return e
}

// Has reports whether an attribute is present.
func (e *Event) Has(name string) bool {
	_, ok := e.Attrs[name]
	return ok
}

// Attr returns a typed attribute. The zero value and false are returned when
// the attribute is absent or has another type.
func Attr[T any](e *Event, name string) (T, bool) {
	var zero T
	raw, ok := e.Attrs[name]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// StartedBy returns the 0-indexed task that spawned a thread start event.
func (e *Event) StartedBy() (TaskID, bool) {
	return Attr[TaskID](e, AttrStartedBy)
}

// JoinedTask returns the 0-indexed task a thread join event waited for.
func (e *Event) JoinedTask() (TaskID, bool) {
	return Attr[TaskID](e, AttrJoinedTask)
}

// Message returns the message attached to an error event.
func (e *Event) Message() string {
	msg, _ := Attr[string](e, AttrMessage)
	return msg
}

// AttrNames returns the attribute names in sorted order.
func (e *Event) AttrNames() []string {
	return slices.Sorted(maps.Keys(e.Attrs))
}
