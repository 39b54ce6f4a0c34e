package runtime

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/program"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Step runs one atomic step of task and returns the events it produced.
//
// A step performs at most one visible operation. Assertions ahead of it run
// in the same step; a failing one ends the step with an assert failure. A
// thread with no operations left finishes in a step of its own. Joining
// takes a request step, which produces no event, and a completion step once
// the target has finished. A lock attempt on a held lock produces the
// acquisition and parks the task; its next step takes the lock and reports
// it as acquired.
func (r *Runtime) Step(task int64) ([]event.RuntimeEvent, error) {
	th, ok := r.thread(task)
	if !ok || !r.canStep(th) {
		return nil, fmt.Errorf("%w: task %d", ErrNotActive, task)
	}

	switch th.state {
	case stateLockWait:
		r.holders[th.waitLock] = th.id
		loc := r.lockLocation(th.waitLock)
		th.state, th.waitLock = stateReady, ""
		th.pc++
		return []event.RuntimeEvent{memoryEvent(th.id, event.RuntimeLockAcquired, loc)}, nil

	case stateJoining:
		target := th.joinTarget
		th.state, th.joinTarget = stateReady, 0
		th.pc++
		return []event.RuntimeEvent{{
			Task:   th.id,
			Kind:   event.RuntimeThreadJoinComplete,
			Params: map[string]any{event.ParamJoinedTask: target},
		}}, nil
	}

	for th.pc < len(th.def.Ops) && !th.def.Ops[th.pc].Kind.IsVisible() {
		op := th.def.Ops[th.pc]
		holds, err := r.evalBool(th, op.Condition)
		if err != nil {
			return nil, err
		}
		if !holds {
			th.state = stateFailed
			r.logger.Debug("Assertion failed.", "task", th.id, "thread", th.def.Name, "pc", th.pc)
			return []event.RuntimeEvent{assertFailure(th.id, r.failureMessage(th, op))}, nil
		}
		th.pc++
	}

	if th.pc == len(th.def.Ops) {
		th.state = stateFinished
		return []event.RuntimeEvent{{Task: th.id, Kind: event.RuntimeThreadFinish}}, nil
	}
	return r.visible(th, th.def.Ops[th.pc])
}

func (r *Runtime) visible(th *thread, op *program.Op) ([]event.RuntimeEvent, error) {
	switch op.Kind {
	case program.OpRead:
		loc := r.varLocation(op.Var)
		th.regs[op.Into] = r.memory[op.Var]
		th.pc++
		return []event.RuntimeEvent{memoryEvent(th.id, event.RuntimeRead, loc)}, nil

	case program.OpWrite:
		val, err := r.eval(th, op.Value)
		if err != nil {
			return nil, err
		}
		loc := r.varLocation(op.Var)
		r.memory[op.Var] = val
		th.pc++
		return []event.RuntimeEvent{memoryEvent(th.id, event.RuntimeWrite, loc)}, nil

	case program.OpFetchAdd:
		delta, err := r.evalNumber(th, op.Value)
		if err != nil {
			return nil, err
		}
		old := r.memory[op.Var]
		if !old.Type().Equals(cty.Number) {
			return nil, fmt.Errorf("%w: %s: fetch_add on %s variable '%s'", ErrEval, r.describe(th), old.Type().FriendlyName(), op.Var)
		}
		loc := r.varLocation(op.Var)
		r.memory[op.Var] = old.Add(delta)
		if op.Into != "" {
			th.regs[op.Into] = old
		}
		th.pc++
		return []event.RuntimeEvent{memoryEvent(th.id, event.RuntimeReadModifyWrite, loc)}, nil

	case program.OpLock:
		loc := r.lockLocation(op.Lock)
		if _, held := r.holders[op.Lock]; held {
			th.state, th.waitLock = stateLockWait, op.Lock
			r.logger.Debug("Task waits for lock.", "task", th.id, "lock", op.Lock)
		} else {
			r.holders[op.Lock] = th.id
			th.pc++
		}
		return []event.RuntimeEvent{memoryEvent(th.id, event.RuntimeLockAcquire, loc)}, nil

	case program.OpUnlock:
		if holder, held := r.holders[op.Lock]; !held || holder != th.id {
			th.state = stateFailed
			return []event.RuntimeEvent{assertFailure(th.id, fmt.Sprintf("%s unlocks '%s' which it does not hold", r.describe(th), op.Lock))}, nil
		}
		loc := r.lockLocation(op.Lock)
		delete(r.holders, op.Lock)
		th.pc++
		return []event.RuntimeEvent{memoryEvent(th.id, event.RuntimeLockRelease, loc)}, nil

	case program.OpSpawn:
		child := r.spawn(r.prog.Threads[op.Thread])
		th.children[op.Thread] = child.id
		th.pc++
		return []event.RuntimeEvent{threadStart(child.id, th.id)}, nil

	case program.OpJoin:
		target, ok := th.children[op.Thread]
		if !ok {
			th.state = stateFailed
			return []event.RuntimeEvent{assertFailure(th.id, fmt.Sprintf("%s joins '%s' which it never spawned", r.describe(th), op.Thread))}, nil
		}
		th.state, th.joinTarget = stateJoining, target
		return nil, nil

	case program.OpAssume:
		holds, err := r.evalBool(th, op.Condition)
		if err != nil {
			return nil, err
		}
		if holds {
			th.pc++
		} else {
			th.state = stateParked
		}
		return []event.RuntimeEvent{{
			Task:   th.id,
			Kind:   event.RuntimeAssume,
			Params: map[string]any{event.ParamResult: holds},
		}}, nil
	}
	return nil, fmt.Errorf("%s: unsupported operation '%s'", r.describe(th), op.Kind)
}

func (r *Runtime) failureMessage(th *thread, op *program.Op) string {
	if op.Message != "" {
		return op.Message
	}
	return fmt.Sprintf("assertion %d of thread '%s' failed", th.pc, th.def.Name)
}

// eval evaluates expr against the registers of th.
func (r *Runtime) eval(th *thread, expr hcl.Expression) (cty.Value, error) {
	ctx := &hcl.EvalContext{Variables: th.regs}
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%w: %s: %s", ErrEval, r.describe(th), diags.Error())
	}
	if val.IsNull() || !val.IsKnown() {
		return cty.NilVal, fmt.Errorf("%w: %s: expression has no value", ErrEval, r.describe(th))
	}
	return val, nil
}

func (r *Runtime) evalNumber(th *thread, expr hcl.Expression) (cty.Value, error) {
	val, err := r.eval(th, expr)
	if err != nil {
		return cty.NilVal, err
	}
	num, err := convert.Convert(val, cty.Number)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: %s: %v", ErrEval, r.describe(th), err)
	}
	return num, nil
}

func (r *Runtime) evalBool(th *thread, expr hcl.Expression) (bool, error) {
	val, err := r.eval(th, expr)
	if err != nil {
		return false, err
	}
	b, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("%w: %s: condition: %v", ErrEval, r.describe(th), err)
	}
	return b.True(), nil
}
