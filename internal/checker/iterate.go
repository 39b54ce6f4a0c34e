package checker

import (
	"context"

	"github.com/vk/trustgo/internal/algo"
	"github.com/vk/trustgo/internal/ctxlog"
	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/exgraph"
	"github.com/vk/trustgo/internal/runtime"
	"github.com/vk/trustgo/internal/strategy"
)

// iterate performs run i and reports how it ended. msg carries the program
// error of a buggy run.
func (c *Checker) iterate(ctx context.Context, strat *strategy.Strategy, rt *runtime.Runtime, i int) (Status, string, error) {
	logger := ctxlog.FromContext(ctx)

	for _, rev := range rt.Reset(i) {
		out, err := strat.UpdateEvent(rev)
		if err != nil {
			return 0, "", err
		}
		if !out.IsContinue() {
			return statusOf(out), out.Message, nil
		}
	}

	for {
		active := rt.Active()
		choice, ok := strat.NextTask(active)
		if !ok {
			var halt event.RuntimeEvent
			switch {
			case rt.Done():
				halt = event.RuntimeEvent{Task: 1, Kind: event.RuntimeHalt}
			case len(active) == 0:
				logger.Debug("Run deadlocked.", "tasks", rt.Snapshot())
				halt = event.RuntimeEvent{
					Task:   1,
					Kind:   event.RuntimeAssertFailure,
					Params: map[string]any{event.ParamMessage: "deadlock: no task can make progress"},
				}
			default:
				logger.Debug("Run blocked.", "active", active)
				return StatusBlocked, "", nil
			}
			out, err := strat.UpdateEvent(halt)
			if err != nil {
				return 0, "", err
			}
			return statusOf(out), out.Message, nil
		}

		switch choice.Kind {
		case exgraph.ChoiceBlockTask:
			logger.Debug("Task blocked by the schedule.", "task", choice.Task)
			continue
		case exgraph.ChoiceBlockExecution:
			logger.Debug("Execution blocked by the schedule.")
			return StatusBlocked, "", nil
		case exgraph.ChoiceEnd:
			continue
		}

		if !rt.IsActive(choice.Task) {
			return 0, "", guidedInactive(choice, active)
		}
		evs, err := rt.Step(choice.Task)
		if err != nil {
			return 0, "", err
		}
		for _, rev := range evs {
			out, err := strat.UpdateEvent(rev)
			if err != nil {
				return 0, "", err
			}
			switch out.Kind {
			case algo.OutcomeHaltTask:
				logger.Debug("Task halted.", "task", int64(out.Task)+1)
			case algo.OutcomeHaltExecution, algo.OutcomeHaltChecker:
				return statusOf(out), out.Message, nil
			}
		}
	}
}

func statusOf(out algo.Outcome) Status {
	switch {
	case out.Kind == algo.OutcomeHaltExecution && out.Failed:
		return StatusBug
	case out.Kind == algo.OutcomeHaltExecution:
		return StatusOK
	}
	return StatusBlocked
}
