package algo

import (
	"errors"
	"fmt"

	"github.com/vk/trustgo/internal/event"
)

// OutcomeKind tells the caller how to proceed after an event or an
// iteration boundary.
type OutcomeKind uint8

const (
	// OutcomeContinue means the run goes on normally.
	OutcomeContinue OutcomeKind = iota
	// OutcomeHaltTask means one task must stop; the rest of the run goes on.
	OutcomeHaltTask
	// OutcomeHaltExecution ends the current run.
	OutcomeHaltExecution
	// OutcomeHaltChecker ends the whole search: no alternative is left.
	OutcomeHaltChecker
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeHaltTask:
		return "halt_task"
	case OutcomeHaltExecution:
		return "halt_execution"
	case OutcomeHaltChecker:
		return "halt_checker"
	}
	return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
}

// Outcome is the result of feeding an event or starting an iteration.
type Outcome struct {
	Kind OutcomeKind
	// Task is the 0-indexed task to stop for OutcomeHaltTask.
	Task event.TaskID
	// Failed marks an execution halted by a program error.
	Failed  bool
	Message string
}

// Continue returns the normal outcome.
func Continue() Outcome { return Outcome{Kind: OutcomeContinue} }

// HaltTask stops task t for the rest of the run.
func HaltTask(t event.TaskID) Outcome { return Outcome{Kind: OutcomeHaltTask, Task: t} }

// HaltExecutionOK ends the run after the program terminated normally.
func HaltExecutionOK() Outcome { return Outcome{Kind: OutcomeHaltExecution} }

// HaltExecutionError ends the run after a program error.
func HaltExecutionError(msg string) Outcome {
	return Outcome{Kind: OutcomeHaltExecution, Failed: true, Message: msg}
}

// HaltChecker ends the search.
func HaltChecker() Outcome { return Outcome{Kind: OutcomeHaltChecker} }

// IsContinue reports whether the outcome lets the run go on.
func (o Outcome) IsContinue() bool { return o.Kind == OutcomeContinue }

func (o Outcome) String() string {
	switch {
	case o.Kind == OutcomeHaltTask:
		return fmt.Sprintf("%s(%d)", o.Kind, o.Task+1)
	case o.Kind == OutcomeHaltExecution && o.Failed:
		return fmt.Sprintf("%s(error: %s)", o.Kind, o.Message)
	case o.Kind == OutcomeHaltExecution:
		return fmt.Sprintf("%s(ok)", o.Kind)
	default:
		return o.Kind.String()
	}
}

// ErrInternal marks a violated engine invariant. It is never a property of
// the checked program.
var ErrInternal = errors.New("internal invariant violated")

// InvariantError carries the context of an internal invariant violation: the
// operation that failed and a JSON snapshot of the graph at that point.
type InvariantError struct {
	Op    string
	Graph []byte
	Err   error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInternal, e.Op, e.Err)
}

// Unwrap exposes both ErrInternal and the cause.
func (e *InvariantError) Unwrap() []error {
	return []error{ErrInternal, e.Err}
}
