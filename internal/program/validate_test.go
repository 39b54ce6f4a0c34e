// internal/program/validate_test.go
package program

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

func program(threads ...*Thread) *Program {
	p := &Program{
		Name:    "test",
		Vars:    map[string]*Var{"x": {Name: "x", Initial: cty.NumberIntVal(0)}},
		Threads: map[string]*Thread{},
	}
	for _, th := range threads {
		p.Threads[th.Name] = th
	}
	return p
}

func TestProgram_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		prog    func(t *testing.T) *Program
		wantErr []string
	}{
		{
			name: "valid program",
			prog: func(t *testing.T) *Program {
				return program(
					&Thread{Name: MainThread, Ops: []*Op{
						{Kind: OpSpawn, Thread: "worker"},
						{Kind: OpJoin, Thread: "worker"},
						{Kind: OpRead, Var: "x", Into: "r"},
						{Kind: OpAssert, Condition: expr(t, "r == 1"), Message: "lost write"},
					}},
					&Thread{Name: "worker", Ops: []*Op{
						{Kind: OpWrite, Var: "x", Value: expr(t, "1")},
						{Kind: OpLock, Lock: "m"},
						{Kind: OpUnlock, Lock: "m"},
					}},
				)
			},
		},
		{
			name: "missing main",
			prog: func(t *testing.T) *Program {
				return program(&Thread{Name: "worker"})
			},
			wantErr: []string{"no 'main' thread"},
		},
		{
			name: "missing operands",
			prog: func(t *testing.T) *Program {
				return program(&Thread{Name: MainThread, Ops: []*Op{
					{Kind: OpRead, Var: "x"},
					{Kind: OpWrite, Var: "y", Value: expr(t, "2")},
					{Kind: OpLock},
					{Kind: OpAssume},
				}})
			},
			wantErr: []string{
				"op 0 (read): missing 'into'",
				"op 1 (write): undeclared variable 'y'",
				"op 2 (lock): missing 'lock'",
				"op 3 (assume): missing 'condition'",
			},
		},
		{
			name: "bad thread references",
			prog: func(t *testing.T) *Program {
				return program(&Thread{Name: MainThread, Ops: []*Op{
					{Kind: OpSpawn, Thread: MainThread},
					{Kind: OpJoin, Thread: "ghost"},
					{Kind: "sleep"},
				}})
			},
			wantErr: []string{
				"the main thread cannot be spawned",
				"unknown thread 'ghost'",
				"unknown operation kind 'sleep'",
			},
		},
		{
			name: "unknown register",
			prog: func(t *testing.T) *Program {
				return program(&Thread{Name: MainThread, Ops: []*Op{
					{Kind: OpWrite, Var: "x", Value: expr(t, "r + 1")},
				}})
			},
			wantErr: []string{"reads unknown register 'r'"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.prog(t).Validate()
			if len(tc.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tc.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestThread_Registers(t *testing.T) {
	th := &Thread{Ops: []*Op{
		{Kind: OpRead, Into: "b"},
		{Kind: OpFetchAdd, Into: "a"},
		{Kind: OpRead, Into: "b"},
		{Kind: OpWrite},
	}}
	assert.Equal(t, []string{"a", "b"}, th.Registers())
}

func TestOpKind_IsVisible(t *testing.T) {
	for _, k := range OpKinds {
		assert.Equal(t, k != OpAssert, k.IsVisible(), string(k))
	}
}
