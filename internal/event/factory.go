package event

import "fmt"

// RuntimeKind enumerates the events a subject runtime reports.
type RuntimeKind string

const (
	RuntimeThreadStart        RuntimeKind = "thread_start"
	RuntimeThreadFinish       RuntimeKind = "thread_finish"
	RuntimeThreadJoinComplete RuntimeKind = "thread_join_complete"
	RuntimeRead               RuntimeKind = "read"
	RuntimeWrite              RuntimeKind = "write"
	RuntimeReadModifyWrite    RuntimeKind = "read_modify_write"
	RuntimeLockAcquire        RuntimeKind = "lock_acquire"
	RuntimeLockAcquired       RuntimeKind = "lock_acquired"
	RuntimeLockRelease        RuntimeKind = "lock_release"
	RuntimeAssume             RuntimeKind = "assume"
	RuntimeAssertFailure      RuntimeKind = "assert_failure"
	RuntimeHalt               RuntimeKind = "halt"
)

// Parameter names carried by runtime events.
const (
	ParamLocation   = "location"
	ParamStartedBy  = "started_by"
	ParamJoinedTask = "joined_task"
	ParamResult     = "result"
	ParamMessage    = "message"
	ParamValue      = "value"
)

// RuntimeEvent is an event as reported by the runtime. Task ids are
// 1-indexed at this boundary.
type RuntimeEvent struct {
	Task   int64
	Kind   RuntimeKind
	Params map[string]any
}

// Param reads a typed parameter from a runtime event.
func Param[T any](ev RuntimeEvent, name string) (T, bool) {
	var zero T
	raw, ok := ev.Params[name]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// Factory translates runtime events into core events.
type Factory struct{}

// NewFactory returns a ready Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// FromRuntime maps one runtime event onto one or two core events. Exclusive
// pairs (read-modify-write, lock acquisition) produce the read first.
func (f *Factory) FromRuntime(rev RuntimeEvent) ([]*Event, error) {
	if rev.Task < 1 {
		return nil, fmt.Errorf("runtime event %s has invalid task id %d", rev.Kind, rev.Task)
	}
	task := TaskID(rev.Task - 1)

	switch rev.Kind {
	case RuntimeThreadStart:
		parent, ok := Param[int64](rev, ParamStartedBy)
		if !ok {
			return nil, fmt.Errorf("thread start of task %d is missing %q", rev.Task, ParamStartedBy)
		}
		ev := New(task, KindThreadStart, ThreadLocation).Set(AttrStartedBy, TaskID(parent-1))
		return []*Event{ev}, nil

	case RuntimeThreadFinish:
		return []*Event{New(task, KindThreadFinish, ThreadLocation)}, nil

	case RuntimeThreadJoinComplete:
		target, ok := Param[int64](rev, ParamJoinedTask)
		if !ok {
			return nil, fmt.Errorf("thread join of task %d is missing %q", rev.Task, ParamJoinedTask)
		}
		ev := New(task, KindThreadJoin, ThreadLocation).Set(AttrJoinedTask, TaskID(target-1))
		return []*Event{ev}, nil

	case RuntimeRead, RuntimeWrite, RuntimeReadModifyWrite, RuntimeLockAcquire, RuntimeLockAcquired, RuntimeLockRelease:
		loc, err := location(rev)
		if err != nil {
			return nil, err
		}
		return memoryEvents(task, rev, loc), nil

	case RuntimeAssume:
		result, ok := Param[bool](rev, ParamResult)
		if !ok {
			return nil, fmt.Errorf("assume of task %d is missing %q", rev.Task, ParamResult)
		}
		return []*Event{New(task, KindAssume, NoLocation).Set(AttrResult, result)}, nil

	case RuntimeAssertFailure:
		msg, _ := Param[string](rev, ParamMessage)
		return []*Event{New(task, KindError, NoLocation).Set(AttrMessage, msg)}, nil

	case RuntimeHalt:
		return []*Event{New(task, KindEnd, NoLocation)}, nil
	}
	return nil, fmt.Errorf("unsupported runtime event kind %q", rev.Kind)
}

func location(rev RuntimeEvent) (Location, error) {
	raw, ok := Param[int64](rev, ParamLocation)
	if !ok || raw <= 0 {
		return NoLocation, fmt.Errorf("%s event of task %d has no valid %q", rev.Kind, rev.Task, ParamLocation)
	}
	return Location(raw), nil
}

func memoryEvents(task TaskID, rev RuntimeEvent, loc Location) []*Event {
	withValue := func(ev *Event) *Event {
		if v, ok := rev.Params[ParamValue]; ok {
			ev.Set(AttrValue, v)
		}
		return ev
	}

	switch rev.Kind {
	case RuntimeRead:
		return []*Event{New(task, KindRead, loc)}
	case RuntimeWrite:
		return []*Event{withValue(New(task, KindWrite, loc))}
	case RuntimeReadModifyWrite:
		return []*Event{New(task, KindReadExclusive, loc), withValue(New(task, KindWriteExclusive, loc))}
	case RuntimeLockAcquire:
		return []*Event{New(task, KindLockAcquireRead, loc), New(task, KindLockAcquireWrite, loc)}
	case RuntimeLockAcquired:
		return []*Event{New(task, KindLockAcquired, loc)}
	default:
		return []*Event{New(task, KindLockReleaseWrite, loc)}
	}
}
