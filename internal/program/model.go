package program

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// MainThread is the thread that runs as task 1.
const MainThread = "main"

// Loader reads program files and translates them into the model.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Program, error)
}

// Program is a complete subject program.
type Program struct {
	Name     string
	Vars     map[string]*Var
	Threads  map[string]*Thread
	Settings *Settings
}

// Var is a shared memory location.
type Var struct {
	Name    string
	Initial cty.Value
}

// Thread is a named sequence of operations. A thread definition runs once
// per spawn.
type Thread struct {
	Name string
	Ops  []*Op
}

// OpKind names an operation.
type OpKind string

const (
	OpRead     OpKind = "read"
	OpWrite    OpKind = "write"
	OpFetchAdd OpKind = "fetch_add"
	OpLock     OpKind = "lock"
	OpUnlock   OpKind = "unlock"
	OpSpawn    OpKind = "spawn"
	OpJoin     OpKind = "join"
	OpAssert   OpKind = "assert"
	OpAssume   OpKind = "assume"
)

// OpKinds lists every supported kind.
var OpKinds = []OpKind{OpRead, OpWrite, OpFetchAdd, OpLock, OpUnlock, OpSpawn, OpJoin, OpAssert, OpAssume}

// IsVisible reports whether the operation produces an event for the
// checker. Invisible operations run inside the step of the next visible one.
func (k OpKind) IsVisible() bool {
	return k != OpAssert
}

// Op is one operation of a thread. Which fields are set depends on Kind.
type Op struct {
	Kind OpKind
	// Var is the shared variable of read, write and fetch_add.
	Var string
	// Into is the register that receives a loaded value.
	Into string
	// Lock names the mutex of lock and unlock.
	Lock string
	// Thread is the target of spawn and join.
	Thread string

	Value     hcl.Expression
	Condition hcl.Expression
	Message   string
}

// Settings are checker options a program file may carry. Nil fields are
// unset.
type Settings struct {
	MaxIterations *int
	Policy        *string
	Seed          *int64
	StopOnBug     *bool
}
