package checker

import (
	"fmt"
	"time"

	"github.com/vk/trustgo/internal/algo"
	"github.com/vk/trustgo/internal/coverage"
	"github.com/vk/trustgo/internal/exgraph"
	"github.com/vk/trustgo/internal/runtime"
)

// Status tells how a run ended.
type Status uint8

const (
	// StatusOK is a run in which every task terminated.
	StatusOK Status = iota
	// StatusBug is a run halted by a failed assertion, a bad unlock or a
	// deadlock.
	StatusBug
	// StatusBlocked is a run cut short because the graph blocks it.
	StatusBlocked
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBug:
		return "bug"
	case StatusBlocked:
		return "blocked"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Iteration is what a Sink learns about a finished run.
type Iteration struct {
	Index  int    `json:"index"`
	Status Status `json:"-"`
	Events int    `json:"events"`
	// Hash is the coverage hash; empty while replaying a trace.
	Hash     string `json:"hash,omitempty"`
	NewGraph bool   `json:"new_graph"`
	// Graph is the JSON encoding of the execution graph.
	Graph []byte `json:"-"`
}

// Bug is one run that hit a program error.
type Bug struct {
	Iteration int                        `json:"iteration" yaml:"iteration"`
	Message   string                     `json:"message" yaml:"message"`
	Schedule  []exgraph.SchedulingChoice `json:"schedule" yaml:"schedule"`
	Tasks     []runtime.TaskState        `json:"tasks" yaml:"tasks"`
}

// Stats summarizes the exploration stack.
type Stats struct {
	Popped       map[string]int `json:"popped" yaml:"popped"`
	Pushed       map[string]int `json:"pushed" yaml:"pushed"`
	Inconsistent int            `json:"inconsistent" yaml:"inconsistent"`
	Pending      int            `json:"pending" yaml:"pending"`
}

func statsOf(s algo.Stats) Stats {
	out := Stats{
		Popped:       make(map[string]int, len(s.Popped)),
		Pushed:       make(map[string]int, len(s.Pushed)),
		Inconsistent: s.Inconsistent,
		Pending:      s.Pending,
	}
	for k, n := range s.Popped {
		out.Popped[k.String()] = n
	}
	for k, n := range s.Pushed {
		out.Pushed[k.String()] = n
	}
	return out
}

// Result summarizes a search.
type Result struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Program string `json:"program" yaml:"program"`
	// Iterations counts the runs performed.
	Iterations int `json:"iterations" yaml:"iterations"`
	// Complete is set when the exploration stack was exhausted.
	Complete  bool             `json:"complete" yaml:"complete"`
	OK        int              `json:"ok" yaml:"ok"`
	Blocked   int              `json:"blocked" yaml:"blocked"`
	Bugs      []Bug            `json:"bugs" yaml:"bugs"`
	TracePath string           `json:"trace_path,omitempty" yaml:"trace_path,omitempty"`
	Coverage  coverage.Summary `json:"coverage" yaml:"coverage"`
	Stats     Stats            `json:"stats" yaml:"stats"`
	Elapsed   time.Duration    `json:"elapsed" yaml:"elapsed"`
}

func (r *Result) count(s Status) {
	switch s {
	case StatusOK:
		r.OK++
	case StatusBlocked:
		r.Blocked++
	}
}
