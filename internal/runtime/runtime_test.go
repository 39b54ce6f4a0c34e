// internal/runtime/runtime_test.go
package runtime

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/program"
	"github.com/zclconf/go-cty/cty"
)

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

func newRuntime(t *testing.T, threads map[string][]*program.Op) *Runtime {
	t.Helper()
	p := &program.Program{
		Name: "test",
		Vars: map[string]*program.Var{
			"x":    {Name: "x", Initial: cty.NumberIntVal(0)},
			"flag": {Name: "flag", Initial: cty.False},
		},
		Threads: map[string]*program.Thread{},
	}
	for name, ops := range threads {
		p.Threads[name] = &program.Thread{Name: name, Ops: ops}
	}
	r, err := New(p)
	require.NoError(t, err)
	return r
}

func step(t *testing.T, r *Runtime, task int64) []event.RuntimeEvent {
	t.Helper()
	evs, err := r.Step(task)
	require.NoError(t, err)
	return evs
}

func kinds(evs []event.RuntimeEvent) []event.RuntimeKind {
	out := make([]event.RuntimeKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

func TestRuntime_SpawnJoinAndRead(t *testing.T) {
	r := newRuntime(t, map[string][]*program.Op{
		program.MainThread: {
			{Kind: program.OpSpawn, Thread: "inc"},
			{Kind: program.OpJoin, Thread: "inc"},
			{Kind: program.OpRead, Var: "x", Into: "r"},
			{Kind: program.OpAssert, Condition: expr(t, "r == 1")},
		},
		"inc": {
			{Kind: program.OpLock, Lock: "m"},
			{Kind: program.OpFetchAdd, Var: "x", Value: expr(t, "1"), Into: "old"},
			{Kind: program.OpUnlock, Lock: "m"},
		},
	})

	start := r.Reset(0)
	require.Len(t, start, 1)
	assert.Equal(t, event.RuntimeThreadStart, start[0].Kind)
	assert.Equal(t, int64(1), start[0].Task)
	assert.Equal(t, int64(0), start[0].Params[event.ParamStartedBy])
	assert.Equal(t, []int64{1}, r.Active())

	spawned := step(t, r, 1)
	require.Len(t, spawned, 1)
	assert.Equal(t, int64(2), spawned[0].Task)
	assert.Equal(t, int64(1), spawned[0].Params[event.ParamStartedBy])
	assert.Equal(t, "inc", r.TaskName(2))

	assert.Empty(t, step(t, r, 1), "the join request produces no event")
	assert.Equal(t, []int64{2}, r.Active())

	assert.Equal(t, []event.RuntimeKind{event.RuntimeLockAcquire}, kinds(step(t, r, 2)))
	rmw := step(t, r, 2)
	assert.Equal(t, []event.RuntimeKind{event.RuntimeReadModifyWrite}, kinds(rmw))
	assert.Equal(t, LocationStride+2, rmw[0].Params[event.ParamLocation], "the lock was touched first")
	assert.Equal(t, []event.RuntimeKind{event.RuntimeLockRelease}, kinds(step(t, r, 2)))
	assert.Equal(t, []event.RuntimeKind{event.RuntimeThreadFinish}, kinds(step(t, r, 2)))

	joined := step(t, r, 1)
	require.Len(t, joined, 1)
	assert.Equal(t, event.RuntimeThreadJoinComplete, joined[0].Kind)
	assert.Equal(t, int64(2), joined[0].Params[event.ParamJoinedTask])

	assert.Equal(t, []event.RuntimeKind{event.RuntimeRead}, kinds(step(t, r, 1)))
	got, err := r.RegisterInt(1, "r")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
	old, err := r.RegisterInt(2, "old")
	require.NoError(t, err)
	assert.Equal(t, int64(0), old)

	assert.Equal(t, []event.RuntimeKind{event.RuntimeThreadFinish}, kinds(step(t, r, 1)), "the passing assertion runs with the finish")
	assert.True(t, r.Done())
	assert.Empty(t, r.Active())
	assert.Equal(t, map[string]string{"x": "1", "flag": "false"}, r.Memory())
}

func TestRuntime_LockContention(t *testing.T) {
	r := newRuntime(t, map[string][]*program.Op{
		program.MainThread: {
			{Kind: program.OpSpawn, Thread: "w"},
			{Kind: program.OpSpawn, Thread: "w"},
		},
		"w": {
			{Kind: program.OpLock, Lock: "m"},
			{Kind: program.OpUnlock, Lock: "m"},
		},
	})
	r.Reset(0)
	step(t, r, 1)
	step(t, r, 1)

	first := step(t, r, 2)
	second := step(t, r, 3)
	assert.Equal(t, []event.RuntimeKind{event.RuntimeLockAcquire}, kinds(second), "a blocked attempt still reports the acquisition")
	assert.Equal(t, first[0].Params[event.ParamLocation], second[0].Params[event.ParamLocation])
	assert.False(t, r.IsActive(3))

	_, err := r.Step(3)
	assert.ErrorIs(t, err, ErrNotActive)

	step(t, r, 2)
	assert.True(t, r.IsActive(3))
	acquired := step(t, r, 3)
	assert.Equal(t, []event.RuntimeKind{event.RuntimeLockAcquired}, kinds(acquired))
	assert.Equal(t, first[0].Params[event.ParamLocation], acquired[0].Params[event.ParamLocation])
	assert.Equal(t, []event.RuntimeKind{event.RuntimeLockRelease}, kinds(step(t, r, 3)))
}

func TestRuntime_Failures(t *testing.T) {
	testCases := []struct {
		name    string
		ops     []*program.Op
		steps   int
		wantMsg string
	}{
		{
			name: "assertion with message",
			ops: []*program.Op{
				{Kind: program.OpRead, Var: "x", Into: "r"},
				{Kind: program.OpAssert, Condition: expr(t, "r == 5"), Message: "x is not five"},
			},
			steps:   2,
			wantMsg: "x is not five",
		},
		{
			name:    "assertion without message",
			ops:     []*program.Op{{Kind: program.OpAssert, Condition: expr(t, "false")}},
			steps:   1,
			wantMsg: "assertion 0 of thread 'main' failed",
		},
		{
			name:    "unlock of a free lock",
			ops:     []*program.Op{{Kind: program.OpUnlock, Lock: "m"}},
			steps:   1,
			wantMsg: "unlocks 'm' which it does not hold",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRuntime(t, map[string][]*program.Op{program.MainThread: tc.ops})
			r.Reset(0)
			var last []event.RuntimeEvent
			for range tc.steps {
				last = step(t, r, 1)
			}
			require.Len(t, last, 1)
			assert.Equal(t, event.RuntimeAssertFailure, last[0].Kind)
			assert.Contains(t, last[0].Params[event.ParamMessage], tc.wantMsg)
			assert.Empty(t, r.Active())
		})
	}
}

func TestRuntime_AssumeParksTask(t *testing.T) {
	r := newRuntime(t, map[string][]*program.Op{
		program.MainThread: {
			{Kind: program.OpRead, Var: "flag", Into: "f"},
			{Kind: program.OpAssume, Condition: expr(t, "f")},
			{Kind: program.OpWrite, Var: "x", Value: expr(t, "1")},
		},
	})
	r.Reset(0)
	step(t, r, 1)

	evs := step(t, r, 1)
	require.Len(t, evs, 1)
	assert.Equal(t, event.RuntimeAssume, evs[0].Kind)
	assert.Equal(t, false, evs[0].Params[event.ParamResult])
	assert.True(t, r.Done(), "a parked task counts as terminated")
	assert.False(t, r.Deadlocked())
}

func TestRuntime_Deadlock(t *testing.T) {
	r := newRuntime(t, map[string][]*program.Op{
		program.MainThread: {
			{Kind: program.OpLock, Lock: "m"},
			{Kind: program.OpSpawn, Thread: "w"},
			{Kind: program.OpJoin, Thread: "w"},
			{Kind: program.OpUnlock, Lock: "m"},
		},
		"w": {
			{Kind: program.OpLock, Lock: "m"},
			{Kind: program.OpUnlock, Lock: "m"},
		},
	})
	r.Reset(0)
	step(t, r, 1)
	step(t, r, 1)
	step(t, r, 1)
	step(t, r, 2)

	assert.Empty(t, r.Active())
	assert.True(t, r.Deadlocked())
	assert.Equal(t, []TaskState{
		{Task: 1, Thread: program.MainThread, PC: 2, State: "joining"},
		{Task: 2, Thread: "w", PC: 0, State: "lock_wait"},
	}, r.Snapshot())
}

func TestRuntime_LocationsDifferPerRun(t *testing.T) {
	r := newRuntime(t, map[string][]*program.Op{
		program.MainThread: {{Kind: program.OpWrite, Var: "x", Value: expr(t, "2")}},
	})

	for run := range 3 {
		r.Reset(run)
		evs := step(t, r, 1)
		want := LocationStride*int64(run+1) + 1
		assert.Equal(t, want, evs[0].Params[event.ParamLocation])
		loc, ok := r.VarLocation("x")
		require.True(t, ok)
		assert.Equal(t, want, loc)
		n, err := r.Int("x")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	}
}

func TestRuntime_EvalErrors(t *testing.T) {
	r := newRuntime(t, map[string][]*program.Op{
		program.MainThread: {{Kind: program.OpFetchAdd, Var: "flag", Value: expr(t, "1")}},
	})
	r.Reset(0)
	_, err := r.Step(1)
	assert.ErrorIs(t, err, ErrEval)

	r = newRuntime(t, map[string][]*program.Op{
		program.MainThread: {
			{Kind: program.OpRead, Var: "x", Into: "r"},
			{Kind: program.OpAssume, Condition: expr(t, "r + 1")},
		},
	})
	r.Reset(0)
	step(t, r, 1)
	_, err = r.Step(1)
	assert.ErrorIs(t, err, ErrEval, "a number is not a condition")
}

func TestNew_RejectsInvalidProgram(t *testing.T) {
	_, err := New(&program.Program{Name: "empty"})
	assert.Error(t, err)
}
