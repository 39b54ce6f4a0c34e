package exgraph

import (
	"encoding/json"
	"fmt"

	"github.com/vk/trustgo/internal/event"
)

// ChoiceKind enumerates scheduling directives.
type ChoiceKind string

const (
	ChoiceTask           ChoiceKind = "task"
	ChoiceBlockTask      ChoiceKind = "block_task"
	ChoiceBlockExecution ChoiceKind = "block_execution"
	ChoiceEnd            ChoiceKind = "end"
)

// SchedulingChoice is one directive for the external scheduler. Task ids are
// 1-indexed.
type SchedulingChoice struct {
	Kind ChoiceKind `json:"kind"`
	Task int64      `json:"task,omitempty"`
}

// RunTask, BlockTask, BlockExecution and End build directives.
func RunTask(task int64) SchedulingChoice   { return SchedulingChoice{Kind: ChoiceTask, Task: task} }
func BlockTask(task int64) SchedulingChoice { return SchedulingChoice{Kind: ChoiceBlockTask, Task: task} }
func BlockExecution() SchedulingChoice      { return SchedulingChoice{Kind: ChoiceBlockExecution} }
func End() SchedulingChoice                 { return SchedulingChoice{Kind: ChoiceEnd} }

func (c SchedulingChoice) String() string {
	switch c.Kind {
	case ChoiceTask, ChoiceBlockTask:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Task)
	default:
		return string(c.Kind)
	}
}

// Validate rejects malformed directives read from a trace file.
func (c SchedulingChoice) Validate() error {
	switch c.Kind {
	case ChoiceTask, ChoiceBlockTask:
		if c.Task < 1 {
			return fmt.Errorf("%s directive needs a task id >= 1, got %d", c.Kind, c.Task)
		}
	case ChoiceBlockExecution, ChoiceEnd:
	default:
		return fmt.Errorf("unknown scheduling directive %q", c.Kind)
	}
	return nil
}

// ScheduleEntry pairs a directive with the location of the event the
// previous directive produced. The location lets a replay detect that this
// run assigned a different id to the same memory.
type ScheduleEntry struct {
	Choice   SchedulingChoice
	Location event.Location
}

// HasLocation reports whether the entry carries a location.
func (e ScheduleEntry) HasLocation() bool {
	return e.Location != event.NoLocation
}

// TaskSchedule converts a topologically sorted node sequence into the
// directives that replay it. The initial event and the first event of the
// main task are dropped since they precede scheduling.
func TaskSchedule(sorted []*Node) []ScheduleEntry {
	var out []ScheduleEntry
	if len(sorted) <= 2 {
		return []ScheduleEntry{{Choice: End()}}
	}
	nodes := sorted[2:]

	prev := event.NoLocation
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		loc := n.Location()
		task := int64(n.Key().Task) + 1

		switch {
		case n.Kind().IsBlockingLabel():
			// Only raw node lists reach here: CheckConsistency sorts a clone,
			// which drops blocking labels. Live blocking comes from the
			// blocked tasks that Algo.NextTask reports.
			if n.Key().Task < 0 {
				out = append(out, ScheduleEntry{Choice: BlockExecution(), Location: prev})
			} else {
				out = append(out, ScheduleEntry{Choice: BlockTask(task), Location: prev})
			}
		case n.Kind() == event.KindThreadStart:
			parent, _ := n.Event.StartedBy()
			out = append(out, ScheduleEntry{Choice: RunTask(int64(parent) + 1), Location: prev})
		case n.Kind().IsExclusiveRead():
			out = append(out, ScheduleEntry{Choice: RunTask(task), Location: prev})
			// Both halves of an exclusive pair come from one runtime step.
			if i+1 < len(nodes) {
				next := nodes[i+1]
				if next.Key().Task == n.Key().Task && n.Kind().PairsWith(next.Kind()) {
					i++
				}
			}
		case n.Kind() == event.KindThreadJoin:
			// A join is a request step followed by a completion step.
			out = append(out, ScheduleEntry{Choice: RunTask(task), Location: prev})
			prev, loc = loc, event.NoLocation
			out = append(out, ScheduleEntry{Choice: RunTask(task), Location: prev})
		default:
			out = append(out, ScheduleEntry{Choice: RunTask(task), Location: prev})
		}
		prev = loc
	}
	return append(out, ScheduleEntry{Choice: End(), Location: prev})
}

// Choices strips the locations of a schedule.
func Choices(entries []ScheduleEntry) []SchedulingChoice {
	out := make([]SchedulingChoice, len(entries))
	for i, e := range entries {
		out[i] = e.Choice
	}
	return out
}

// MarshalChoices encodes a directive list as a JSON array.
func MarshalChoices(choices []SchedulingChoice) ([]byte, error) {
	return json.MarshalIndent(choices, "", "  ")
}

// UnmarshalChoices decodes and validates a directive list.
func UnmarshalChoices(data []byte) ([]SchedulingChoice, error) {
	var choices []SchedulingChoice
	if err := json.Unmarshal(data, &choices); err != nil {
		return nil, fmt.Errorf("failed to decode schedule: %w", err)
	}
	for i, c := range choices {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
	}
	return choices, nil
}
